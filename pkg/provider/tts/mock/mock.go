// Package mock provides a test double for the tts.Synthesizer interface.
//
// Use Synthesizer to return controlled audio, inject per-request failures and
// delays, and verify which requests reached the backend.
//
// Example:
//
//	s := &mock.Synthesizer{
//	    Result: &tts.Result{PCM: []int16{1, 2, 3}, SampleRate: 24000},
//	    DelayFunc: func(r tts.Request) time.Duration { return 10 * time.Millisecond },
//	}
//	res, _ := s.Synthesize(ctx, tts.Request{Text: "hello"})
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/yomiage/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Request is the request passed to Synthesize.
	Request tts.Request

	// Start and End bracket the call.
	Start time.Time
	End   time.Time
}

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Result is returned by Synthesize. When nil, a 10-sample mono result at
	// 24 kHz carrying the request text length as sample values is returned.
	Result *tts.Result

	// Err, if non-nil, is returned from every call.
	Err error

	// ErrFunc, if set, decides the error per request. It takes precedence
	// over Err.
	ErrFunc func(tts.Request) error

	// DelayFunc, if set, returns how long each call blocks before returning.
	// Blocking honours ctx cancellation.
	DelayFunc func(tts.Request) time.Duration

	// --- Call records ---

	calls    []SynthesizeCall
	inFlight int
	maxSeen  int
}

// Synthesize records the call, waits for the configured delay and returns the
// configured result or error.
func (s *Synthesizer) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	start := time.Now()
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	delayFn, errFn, err, res := s.DelayFunc, s.ErrFunc, s.Err, s.Result
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.calls = append(s.calls, SynthesizeCall{Request: req, Start: start, End: time.Now()})
		s.mu.Unlock()
	}()

	if delayFn != nil {
		if d := delayFn(req); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
	}
	if errFn != nil {
		err = errFn(req)
	}
	if err != nil {
		return nil, err
	}
	if res != nil {
		return res, nil
	}
	pcm := make([]int16, 10)
	for i := range pcm {
		pcm[i] = int16(len([]rune(req.Text)))
	}
	return &tts.Result{PCM: pcm, SampleRate: 24000, Channels: 1}, nil
}

// Calls returns a copy of all recorded calls in completion order.
func (s *Synthesizer) Calls() []SynthesizeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SynthesizeCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of completed calls.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// MaxInFlight returns the highest number of simultaneous calls observed.
func (s *Synthesizer) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSeen
}

// Reset clears all recorded calls and counters.
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
	s.inFlight = 0
	s.maxSeen = 0
}
