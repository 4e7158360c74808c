package tts

import (
	"encoding/binary"
	"time"
)

// Language is a spoken language tag understood by synthesizer backends.
type Language string

const (
	// LanguageJP is Japanese, the default for non-Latin text.
	LanguageJP Language = "JP"

	// LanguageEN is English, the default for Latin-script text.
	LanguageEN Language = "EN"

	// LanguageZH is Mandarin Chinese. It is only chosen when a voice pins it.
	LanguageZH Language = "ZH"
)

// VoiceProfile describes one selectable voice.
type VoiceProfile struct {
	// Name is the user-facing voice name.
	Name string

	// Provider is the key of the backend that serves this voice.
	Provider string

	// ID is the provider-specific voice or model identifier.
	ID string

	// Style is the provider-specific speaking style. May be empty.
	Style string

	// Language pins the spoken language. Empty lets the caller resolve it
	// per segment.
	Language Language

	// Speed scales speech length; 1.0 is normal.
	Speed float64
}

// Result is one synthesised utterance. Exactly one of PCM and Float is set.
type Result struct {
	// PCM holds signed 16-bit samples, interleaved when Channels > 1.
	PCM []int16

	// Float holds samples in [-1, 1], interleaved when Channels > 1.
	Float []float32

	// SampleRate in Hz.
	SampleRate int

	// Channels is 1 for mono, 2 for stereo. Zero is treated as mono.
	Channels int
}

// PCM16 returns the samples as signed 16-bit integers.
//
// Float samples are scaled by 32767 and truncated toward zero. Values are not
// clamped: samples outside [-1, 1] wrap around through the int32 conversion,
// which is audible as a click on clipped input.
func (r *Result) PCM16() []int16 {
	if r.PCM != nil || r.Float == nil {
		return r.PCM
	}
	out := make([]int16, len(r.Float))
	for i, f := range r.Float {
		out[i] = int16(int32(f * 32767))
	}
	return out
}

// Bytes returns the samples as little-endian s16 bytes. This is the layout
// audio players consume.
func (r *Result) Bytes() []byte {
	pcm := r.PCM16()
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

// NumChannels returns Channels, treating zero as mono.
func (r *Result) NumChannels() int {
	if r.Channels <= 0 {
		return 1
	}
	return r.Channels
}

// Len returns the number of samples per channel.
func (r *Result) Len() int {
	n := len(r.PCM)
	if r.PCM == nil {
		n = len(r.Float)
	}
	return n / r.NumChannels()
}

// Duration returns the playback length of the result.
func (r *Result) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(r.Len()) * time.Second / time.Duration(r.SampleRate)
}
