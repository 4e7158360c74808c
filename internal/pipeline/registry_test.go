package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/yomiage/internal/gate"
	"github.com/MrWong99/yomiage/internal/language"
	"github.com/MrWong99/yomiage/internal/observe"
	"github.com/MrWong99/yomiage/internal/segment"
	"github.com/MrWong99/yomiage/pkg/audio"
	audiomock "github.com/MrWong99/yomiage/pkg/audio/mock"
	"github.com/MrWong99/yomiage/pkg/provider/tts"
	ttsmock "github.com/MrWong99/yomiage/pkg/provider/tts/mock"
)

var testVoice = tts.VoiceProfile{Name: "tsumugi", Provider: "sbv2"}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// players hands out one mock player per session and remembers them.
type players struct {
	mu       sync.Mutex
	byID     map[string]*audiomock.Player
	duration time.Duration
}

func (ps *players) factory(id string) audio.VoicePlayer {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.byID == nil {
		ps.byID = make(map[string]*audiomock.Player)
	}
	p := audiomock.NewPlayer()
	p.PlayDuration = ps.duration
	ps.byID[id] = p
	return p
}

func (ps *players) get(id string) *audiomock.Player {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.byID[id]
}

func newTestRegistry(t *testing.T, synth tts.Synthesizer, g *gate.Gate, ps *players) *Registry {
	t.Helper()
	r := NewRegistry(Config{
		Synthesizer: synth,
		Gate:        g,
		Players:     ps.factory,
		Metrics:     testMetrics(t),
	})
	t.Cleanup(r.Close)
	return r
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestRegistry_PlaysInSubmissionOrderWithoutOverlap(t *testing.T) {
	t.Parallel()

	// Later submissions synthesise faster than earlier ones.
	delays := map[string]time.Duration{
		"first":  30 * time.Millisecond,
		"second": 5 * time.Millisecond,
		"third":  15 * time.Millisecond,
		"fourth": 1 * time.Millisecond,
	}
	synth := &ttsmock.Synthesizer{
		DelayFunc: func(r tts.Request) time.Duration { return delays[r.Text] },
	}
	ps := &players{duration: 10 * time.Millisecond}
	r := newTestRegistry(t, synth, gate.New(4), ps)

	want := []string{"first", "second", "third", "fourth"}
	for _, text := range want {
		r.Submit(context.Background(), "g1", text, "", testVoice)
	}

	p := ps.get("g1")
	waitFor(t, "four playbacks", func() bool { return len(p.Calls()) == 4 })

	if got := p.Texts(); !slices.Equal(got, want) {
		t.Errorf("played %v, want %v", got, want)
	}
	calls := p.Calls()
	for i := 1; i < len(calls); i++ {
		if calls[i].Start.Before(calls[i-1].End) {
			t.Errorf("playback %d started at %v before playback %d ended at %v",
				i, calls[i].Start, i-1, calls[i-1].End)
		}
	}
	if n := p.Overlaps(); n != 0 {
		t.Errorf("overlapping plays = %d, want 0", n)
	}
}

func TestRegistry_GateBoundsSynthesisAcrossSessions(t *testing.T) {
	t.Parallel()

	for _, k := range []int{1, 2} {
		t.Run(fmt.Sprintf("K=%d", k), func(t *testing.T) {
			t.Parallel()
			synth := &ttsmock.Synthesizer{
				DelayFunc: func(tts.Request) time.Duration { return 5 * time.Millisecond },
			}
			ps := &players{}
			r := newTestRegistry(t, synth, gate.New(k), ps)

			sessions := []string{"a", "b", "c"}
			var wg sync.WaitGroup
			for _, id := range sessions {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := range 3 {
						r.Submit(context.Background(), id, fmt.Sprintf("%s-%d", id, i), "", testVoice)
					}
				}()
			}
			wg.Wait()

			waitFor(t, "all syntheses", func() bool { return synth.CallCount() == 9 })
			if got := synth.MaxInFlight(); got > k {
				t.Errorf("max in-flight synthesis = %d, want <= %d", got, k)
			}
			for _, id := range sessions {
				p := ps.get(id)
				waitFor(t, "playback of "+id, func() bool { return len(p.Calls()) == 3 })
				want := []string{id + "-0", id + "-1", id + "-2"}
				if got := p.Texts(); !slices.Equal(got, want) {
					t.Errorf("session %s played %v, want %v", id, got, want)
				}
			}
		})
	}
}

func TestRegistry_SynthesisFailureIsIsolated(t *testing.T) {
	t.Parallel()

	synth := &ttsmock.Synthesizer{
		ErrFunc: func(r tts.Request) error {
			if r.Text == "two" {
				return errors.New("model exploded")
			}
			return nil
		},
	}
	ps := &players{}
	r := newTestRegistry(t, synth, nil, ps)

	for _, text := range []string{"one", "two", "three"} {
		r.Submit(context.Background(), "g1", text, "", testVoice)
	}

	p := ps.get("g1")
	waitFor(t, "two playbacks", func() bool { return len(p.Calls()) == 2 })
	if got := p.Texts(); !slices.Equal(got, []string{"one", "three"}) {
		t.Errorf("played %v, want [one three]", got)
	}
	st, ok := r.Stats("g1")
	if !ok {
		t.Fatal("Stats: session missing")
	}
	waitFor(t, "spoken count", func() bool { st, _ = r.Stats("g1"); return st.Spoken == 2 })
	if st.Failed != 1 {
		t.Errorf("failed = %d, want 1", st.Failed)
	}
}

func TestRegistry_EmptyAudioIsSkipped(t *testing.T) {
	t.Parallel()

	empty := &tts.Result{SampleRate: 24000, Channels: 1}
	synth := &ttsmock.Synthesizer{}
	ps := &players{}
	r := newTestRegistry(t, tts.SynthesizerFunc(func(ctx context.Context, req tts.Request) (*tts.Result, error) {
		if req.Text == "silent" {
			return empty, nil
		}
		return synth.Synthesize(ctx, req)
	}), nil, ps)

	r.Submit(context.Background(), "g1", "silent", "", testVoice)
	r.Submit(context.Background(), "g1", "loud", "", testVoice)

	p := ps.get("g1")
	waitFor(t, "one playback", func() bool { return len(p.Calls()) == 1 })
	if got := p.Texts(); !slices.Equal(got, []string{"loud"}) {
		t.Errorf("played %v, want [loud]", got)
	}
}

func TestRegistry_DisconnectedPlayerDropsAudio(t *testing.T) {
	t.Parallel()

	synth := &ttsmock.Synthesizer{}
	ps := &players{}
	r := newTestRegistry(t, synth, nil, ps)

	r.Ensure("g1")
	p := ps.get("g1")
	p.SetConnected(false)

	r.Submit(context.Background(), "g1", "nobody hears this", "", testVoice)
	waitFor(t, "drop", func() bool { st, _ := r.Stats("g1"); return st.Dropped == 1 })
	if n := len(p.Calls()); n != 0 {
		t.Errorf("play calls = %d, want 0", n)
	}

	// The pipeline survives the disconnect.
	p.SetConnected(true)
	r.Submit(context.Background(), "g1", "back again", "", testVoice)
	waitFor(t, "playback after reconnect", func() bool { return len(p.Calls()) == 1 })
	if got := p.Texts()[0]; got != "back again" {
		t.Errorf("played %q, want %q", got, "back again")
	}
}

func TestRegistry_PlaybackErrorDoesNotStopPlayer(t *testing.T) {
	t.Parallel()

	ps := &players{}
	r := newTestRegistry(t, &ttsmock.Synthesizer{}, nil, ps)
	r.Ensure("g1")
	p := ps.get("g1")
	p.PlayErr = func(u *audio.Unit) error {
		if u.Text == "bad" {
			return errors.New("udp write failed")
		}
		return nil
	}

	for _, text := range []string{"bad", "good"} {
		r.Submit(context.Background(), "g1", text, "", testVoice)
	}
	waitFor(t, "two play calls", func() bool { return len(p.Calls()) == 2 })
	calls := p.Calls()
	if calls[0].Err == nil || calls[1].Err != nil {
		t.Errorf("errors = [%v %v], want [error nil]", calls[0].Err, calls[1].Err)
	}
}

func TestRegistry_Submit(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("あ", 60) + "。" + strings.Repeat("い", 60) + "、" + strings.Repeat("う", 40)

	tests := []struct {
		name     string
		text     string
		hint     tts.Language
		wantText []string
		wantLang []tts.Language
	}{
		{
			name:     "ascii",
			text:     "hello world",
			wantText: []string{"hello world"},
			wantLang: []tts.Language{tts.LanguageEN},
		},
		{
			name:     "japanese",
			text:     "こんにちは",
			wantText: []string{"こんにちは"},
			wantLang: []tts.Language{tts.LanguageJP},
		},
		{
			name:     "hint wins",
			text:     "hello world",
			hint:     tts.LanguageZH,
			wantText: []string{"hello world"},
			wantLang: []tts.Language{tts.LanguageZH},
		},
		{
			name:     "url overrides hint",
			text:     "see https://example.com now",
			hint:     tts.LanguageEN,
			wantText: []string{segment.Placeholder},
			wantLang: []tts.Language{tts.LanguageJP},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			synth := &ttsmock.Synthesizer{}
			ps := &players{}
			r := newTestRegistry(t, synth, nil, ps)

			r.Submit(context.Background(), "g1", tc.text, tc.hint, testVoice)
			waitFor(t, "synthesis", func() bool { return synth.CallCount() == len(tc.wantText) })

			calls := synth.Calls()
			for i, c := range calls {
				if c.Request.Text != tc.wantText[i] {
					t.Errorf("request %d text = %q, want %q", i, c.Request.Text, tc.wantText[i])
				}
				if c.Request.Language != tc.wantLang[i] {
					t.Errorf("request %d language = %q, want %q", i, c.Request.Language, tc.wantLang[i])
				}
				if c.Request.Voice != testVoice {
					t.Errorf("request %d voice = %+v", i, c.Request.Voice)
				}
			}
		})
	}

	t.Run("truncated appends omission marker", func(t *testing.T) {
		t.Parallel()
		synth := &ttsmock.Synthesizer{}
		ps := &players{}
		r := newTestRegistry(t, synth, nil, ps)

		segs, truncated := segment.Split(long)
		if !truncated {
			t.Fatal("test input is not long enough to truncate")
		}
		r.Submit(context.Background(), "g1", long, tts.LanguageEN, testVoice)
		waitFor(t, "synthesis", func() bool { return synth.CallCount() == len(segs)+1 })

		calls := synth.Calls()
		last := calls[len(calls)-1].Request
		if last.Text != segment.OmissionMarker || last.Language != tts.LanguageJP {
			t.Errorf("last request = %+v, want omission marker in JP", last)
		}
		for i, seg := range segs {
			if calls[i].Request.Text != seg {
				t.Errorf("segment %d = %q, want %q", i, calls[i].Request.Text, seg)
			}
		}
	})

	t.Run("blank text is dropped", func(t *testing.T) {
		t.Parallel()
		r := newTestRegistry(t, &ttsmock.Synthesizer{}, nil, &players{})
		r.Submit(context.Background(), "g1", " \n\t ", "", testVoice)
		if ids := r.Sessions(); len(ids) != 0 {
			t.Errorf("Sessions = %v, want none", ids)
		}
	})
}

type fakeDict struct{ words []string }

func (d fakeDict) ContainsSubstring(_ context.Context, normalized string) (bool, error) {
	for _, w := range d.words {
		if strings.Contains(normalized, w) {
			return true, nil
		}
	}
	return false, nil
}

func TestRegistry_SubmitUsesDictionary(t *testing.T) {
	t.Parallel()
	synth := &ttsmock.Synthesizer{}
	r := NewRegistry(Config{
		Synthesizer: synth,
		Selector:    language.New(fakeDict{words: []string{language.Fullwidth("Discord")}}),
		Players:     (&players{}).factory,
		Metrics:     testMetrics(t),
	})
	t.Cleanup(r.Close)

	r.Submit(context.Background(), "g1", "I love Discord", "", testVoice)
	waitFor(t, "synthesis", func() bool { return synth.CallCount() == 1 })
	if got := synth.Calls()[0].Request.Language; got != tts.LanguageJP {
		t.Errorf("language = %q, want JP", got)
	}
}

func TestRegistry_Lifecycle(t *testing.T) {
	t.Parallel()
	ps := &players{}
	r := newTestRegistry(t, &ttsmock.Synthesizer{}, nil, ps)

	a := r.Ensure("b")
	if again := r.Ensure("b"); again != a {
		t.Error("Ensure is not idempotent")
	}
	r.Ensure("a")
	r.Ensure("c")
	if got := r.Sessions(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("Sessions = %v, want [a b c]", got)
	}
	if !r.Remove("b") {
		t.Error("Remove(b) = false, want true")
	}
	if r.Remove("b") {
		t.Error("second Remove(b) = true, want false")
	}
	if _, ok := r.Stats("b"); ok {
		t.Error("Stats(b) found a removed session")
	}
	r.Close()
	if got := r.Sessions(); len(got) != 0 {
		t.Errorf("Sessions after Close = %v", got)
	}
}

func TestRegistry_RemoveReleasesQueuedAudio(t *testing.T) {
	t.Parallel()

	ps := &players{duration: time.Hour}
	r := newTestRegistry(t, &ttsmock.Synthesizer{}, nil, ps)
	p := r.Ensure("g1")
	player := ps.get("g1")

	// Occupy the player, then queue audio behind it.
	r.Submit(context.Background(), "g1", "blocking", "", testVoice)
	waitFor(t, "player busy", player.Playing)

	var released atomic.Int32
	units := make([]*audio.Unit, 3)
	for i := range units {
		units[i] = audio.NewUnit(make([]byte, 64), 24000, 1, func() { released.Add(1) })
		p.playQ.Push(units[i])
	}

	done := make(chan struct{})
	go func() {
		r.Remove("g1")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Remove did not return while a unit was playing")
	}

	if got := released.Load(); got != 3 {
		t.Errorf("released = %d, want 3", got)
	}
	for i, u := range units {
		if u.Samples != nil {
			t.Errorf("unit %d still holds samples", i)
		}
	}
}

func TestRegistry_Skip(t *testing.T) {
	t.Parallel()

	ps := &players{duration: time.Hour}
	synth := &ttsmock.Synthesizer{}
	r := newTestRegistry(t, synth, nil, ps)
	r.Ensure("g1")
	player := ps.get("g1")

	for _, text := range []string{"one", "two", "three"} {
		r.Submit(context.Background(), "g1", text, "", testVoice)
	}
	waitFor(t, "first playback", player.Playing)
	waitFor(t, "audio queued", func() bool { st, _ := r.Stats("g1"); return st.Ready == 2 })

	// Two queued units plus the one being played.
	if n := r.Skip("g1"); n != 3 {
		t.Errorf("Skip discarded %d items, want 3", n)
	}
	waitFor(t, "interrupted playback", func() bool { return len(player.Calls()) == 1 })
	if err := player.Calls()[0].Err; !errors.Is(err, context.Canceled) {
		t.Errorf("interrupted play err = %v, want context.Canceled", err)
	}

	// The workers keep running after a skip.
	player.SetPlayDuration(0)
	r.Submit(context.Background(), "g1", "four", "", testVoice)
	waitFor(t, "playback after skip", func() bool { return len(player.Calls()) == 2 })
	if got := player.Texts()[1]; got != "four" {
		t.Errorf("played %q, want four", got)
	}
	if r.Skip("missing") != 0 {
		t.Error("Skip on unknown session discarded items")
	}
}

func TestRegistry_SkipOnlyPlayingUnit(t *testing.T) {
	t.Parallel()

	ps := &players{duration: time.Hour}
	r := newTestRegistry(t, &ttsmock.Synthesizer{}, nil, ps)
	r.Ensure("g1")
	player := ps.get("g1")

	r.Submit(context.Background(), "g1", "long", "", testVoice)
	waitFor(t, "playback", player.Playing)

	if n := r.Skip("g1"); n != 1 {
		t.Errorf("Skip = %d, want 1 for the interrupted unit", n)
	}
	waitFor(t, "interrupted playback", func() bool { return len(player.Calls()) == 1 })
	if n := r.Skip("g1"); n != 0 {
		t.Errorf("second Skip = %d, want 0", n)
	}
}

func TestRegistry_PlaybackCutOffThenRejoin(t *testing.T) {
	t.Parallel()

	ps := &players{}
	r := newTestRegistry(t, &ttsmock.Synthesizer{}, nil, ps)
	r.Ensure("g1")
	p := ps.get("g1")
	p.OnPlay = func(u *audio.Unit) {
		if u.Text == "cut off" {
			p.SetConnected(false)
		}
	}
	p.PlayErr = func(u *audio.Unit) error {
		if u.Text == "cut off" {
			return audio.ErrNotConnected
		}
		return nil
	}

	r.Submit(context.Background(), "g1", "cut off", "", testVoice)
	waitFor(t, "failed playback", func() bool { st, _ := r.Stats("g1"); return st.Dropped == 1 })

	p.SetConnected(true)
	r.Submit(context.Background(), "g1", "after rejoin", "", testVoice)
	waitFor(t, "playback after rejoin", func() bool { return len(p.Calls()) == 2 })
	calls := p.Calls()
	if !errors.Is(calls[0].Err, audio.ErrNotConnected) || calls[1].Err != nil {
		t.Errorf("errors = [%v %v], want [ErrNotConnected nil]", calls[0].Err, calls[1].Err)
	}
	if calls[1].Text != "after rejoin" {
		t.Errorf("played %q, want %q", calls[1].Text, "after rejoin")
	}
}
