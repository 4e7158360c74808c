// Package tts defines the batch speech synthesis contract shared by every
// synthesizer backend.
//
// A [Synthesizer] turns one short segment of text into a complete PCM buffer.
// Backends never stream partial audio: the pipeline plays whole segments in
// order, so a result is only useful once it is complete.
//
// Implementations may return floating-point or 16-bit samples; [Result.PCM16]
// normalises both to signed 16-bit integers.
package tts

import "context"

// Request is one synthesis call.
type Request struct {
	// Text is the segment to speak. It is non-empty after trimming.
	Text string

	// Language is the resolved spoken language of Text.
	Language Language

	// Voice selects the backend voice and its parameters.
	Voice VoiceProfile
}

// Synthesizer converts text into audio.
//
// Synthesize may be slow; callers run it on their own goroutine and bound
// concurrency externally. Implementations must be safe for concurrent use and
// must honour ctx cancellation where the underlying transport allows.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*Result, error)
}

// SynthesizerFunc adapts a plain function to [Synthesizer].
type SynthesizerFunc func(ctx context.Context, req Request) (*Result, error)

// Synthesize calls f(ctx, req).
func (f SynthesizerFunc) Synthesize(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}
