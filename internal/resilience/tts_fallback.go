package resilience

import (
	"context"

	"github.com/MrWong99/yomiage/pkg/provider/tts"
)

// SynthesizerFallback implements [tts.Synthesizer] with failover across
// several backends.
type SynthesizerFallback struct {
	group *FallbackGroup[tts.Synthesizer]
}

var _ tts.Synthesizer = (*SynthesizerFallback)(nil)

// NewSynthesizerFallback creates a [SynthesizerFallback] with primary as the
// preferred backend.
func NewSynthesizerFallback(primary tts.Synthesizer, primaryName string, cfg FallbackConfig) *SynthesizerFallback {
	return &SynthesizerFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// NewSynthesizerGroup wraps an already assembled group.
func NewSynthesizerGroup(group *FallbackGroup[tts.Synthesizer]) *SynthesizerFallback {
	return &SynthesizerFallback{group: group}
}

// AddFallback registers an additional backend.
func (f *SynthesizerFallback) AddFallback(name string, s tts.Synthesizer) {
	f.group.AddFallback(name, s)
}

// Providers returns the backend names in the order they are tried.
func (f *SynthesizerFallback) Providers() []string {
	return f.group.Names()
}

// Synthesize returns the result of the first healthy backend that succeeds.
func (f *SynthesizerFallback) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, s tts.Synthesizer) (*tts.Result, error) {
		return s.Synthesize(ctx, req)
	})
}
