package audio

import (
	"sync"
	"time"
)

// Unit is one synthesised utterance queued for playback. Samples are
// little-endian signed 16-bit PCM, interleaved when Channels > 1.
//
// A Unit is owned by exactly one holder at a time and must be released once
// it has been played or discarded.
type Unit struct {
	Samples    []byte
	SampleRate int
	Channels   int

	// Text is the segment the audio was synthesised from. Used for logging.
	Text string

	releaseOnce sync.Once
	released    bool
	onRelease   func()
}

// NewUnit returns a Unit that calls onRelease exactly once when released.
// onRelease may be nil.
func NewUnit(samples []byte, sampleRate, channels int, onRelease func()) *Unit {
	return &Unit{Samples: samples, SampleRate: sampleRate, Channels: channels, onRelease: onRelease}
}

// Format returns the unit's sample format.
func (u *Unit) Format() Format {
	ch := u.Channels
	if ch <= 0 {
		ch = 1
	}
	return Format{SampleRate: u.SampleRate, Channels: ch}
}

// Duration returns the playback length of the unit.
func (u *Unit) Duration() time.Duration {
	f := u.Format()
	if f.SampleRate <= 0 {
		return 0
	}
	frames := len(u.Samples) / (2 * f.Channels)
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Release drops the sample buffer. It is safe to call more than once; only
// the first call has an effect.
func (u *Unit) Release() {
	u.releaseOnce.Do(func() {
		u.Samples = nil
		u.released = true
		if u.onRelease != nil {
			u.onRelease()
		}
	})
}

// Released reports whether Release has been called. It must only be called
// by the unit's current owner.
func (u *Unit) Released() bool {
	return u.released
}
