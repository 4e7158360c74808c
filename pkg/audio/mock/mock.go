// Package mock provides an in-memory [audio.VoicePlayer] for unit tests.
//
// The mock is safe for concurrent use. It records every Play call with its
// start and end time so tests can assert ordering and the absence of
// overlapping playback, and it exposes fields that control connectivity,
// playback duration and errors.
//
//	p := mock.NewPlayer()
//	p.PlayDuration = 5 * time.Millisecond
//	_ = p.Play(ctx, unit)
//	calls := p.Calls()
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/yomiage/pkg/audio"
)

var _ audio.VoicePlayer = (*Player)(nil)

// PlayCall records one Play invocation.
type PlayCall struct {
	// Text and Samples are copied from the unit at call time.
	Text    string
	Samples []byte

	SampleRate int
	Start      time.Time
	End        time.Time
	Err        error
}

// Player is a mock implementation of [audio.VoicePlayer].
type Player struct {
	// play serialises Play like a real voice connection does.
	play sync.Mutex

	mu        sync.Mutex
	connected bool
	playing   bool
	calls     []PlayCall
	overlaps  int

	// PlayDuration is how long each Play blocks. Zero returns immediately.
	PlayDuration time.Duration

	// PlayErr, if set, decides the error returned for each unit.
	PlayErr func(u *audio.Unit) error

	// OnPlay, if set, is called at the start of each Play with the unit.
	OnPlay func(u *audio.Unit)
}

// NewPlayer returns a connected Player.
func NewPlayer() *Player {
	return &Player{connected: true}
}

// SetConnected changes what Connected reports.
func (p *Player) SetConnected(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = v
}

// SetPlayDuration changes PlayDuration while the player is in use.
func (p *Player) SetPlayDuration(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayDuration = d
}

// Connected implements [audio.VoicePlayer].
func (p *Player) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Playing implements [audio.VoicePlayer].
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Play implements [audio.VoicePlayer]. It records the call, blocks for
// PlayDuration (or until ctx ends) and returns the configured error.
func (p *Player) Play(ctx context.Context, u *audio.Unit) error {
	p.play.Lock()
	defer p.play.Unlock()

	p.mu.Lock()
	if p.playing {
		p.overlaps++
	}
	p.playing = true
	onPlay, playErr, d := p.OnPlay, p.PlayErr, p.PlayDuration
	p.mu.Unlock()

	call := PlayCall{
		Text:       u.Text,
		Samples:    append([]byte(nil), u.Samples...),
		SampleRate: u.SampleRate,
		Start:      time.Now(),
	}
	if onPlay != nil {
		onPlay(u)
	}

	var err error
	if d > 0 {
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			err = ctx.Err()
		case <-t.C:
		}
	}
	if err == nil && playErr != nil {
		err = playErr(u)
	}

	p.mu.Lock()
	p.playing = false
	call.End = time.Now()
	call.Err = err
	p.calls = append(p.calls, call)
	p.mu.Unlock()
	return err
}

// Calls returns a copy of all recorded Play calls in order.
func (p *Player) Calls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlayCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// Texts returns the Text of every recorded call in order.
func (p *Player) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	for i, c := range p.calls {
		out[i] = c.Text
	}
	return out
}

// Overlaps returns how many Play calls started while another was playing.
func (p *Player) Overlaps() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overlaps
}

// Reset clears recorded calls.
func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
	p.overlaps = 0
}
