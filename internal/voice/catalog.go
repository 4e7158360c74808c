// Package voice maps user-facing voice names to synthesizer backends.
//
// A [Catalog] is built from the configured voices. Every voice is served by
// its primary provider and then by its fallbacks, each behind a circuit
// breaker shared by all voices on the same provider. The catalog itself
// implements [tts.Synthesizer], so the pipeline only ever talks to one
// synthesizer.
package voice

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/yomiage/internal/config"
	"github.com/MrWong99/yomiage/internal/observe"
	"github.com/MrWong99/yomiage/internal/resilience"
	"github.com/MrWong99/yomiage/pkg/provider/tts"
)

// ErrUnknownVoice is returned by [Catalog.Synthesize] for a request whose
// voice is not in the catalog.
var ErrUnknownVoice = errors.New("voice: unknown voice")

// suggestThreshold is the minimum Jaro-Winkler similarity of a suggestion.
const suggestThreshold = 0.75

// Options tunes how a catalog wraps its backends.
type Options struct {
	// CircuitBreaker is applied per provider.
	CircuitBreaker resilience.CircuitBreakerConfig

	// Metrics receives provider request counts. May be nil.
	Metrics *observe.Metrics
}

// Catalog is the set of selectable voices. It is immutable after
// construction and safe for concurrent use.
type Catalog struct {
	voices []tts.VoiceProfile
	byName map[string]int
	synths map[string]*resilience.SynthesizerFallback
}

var _ tts.Synthesizer = (*Catalog)(nil)

// New builds a catalog from voice definitions and the instantiated
// providers keyed by [config.ProviderEntry.Key]. The first voice is the
// default.
func New(voices []config.VoiceConfig, providers map[string]tts.Synthesizer, opts Options) (*Catalog, error) {
	if len(voices) == 0 {
		return nil, errors.New("voice: no voices configured")
	}

	breakers := make(map[string]*resilience.CircuitBreaker, len(providers))
	breakerFor := func(key string) *resilience.CircuitBreaker {
		if b, ok := breakers[key]; ok {
			return b
		}
		cbCfg := opts.CircuitBreaker
		cbCfg.Name = key
		b := resilience.NewCircuitBreaker(cbCfg)
		breakers[key] = b
		return b
	}

	fbCfg := resilience.FallbackConfig{CircuitBreaker: opts.CircuitBreaker}
	if opts.Metrics != nil {
		fbCfg.OnAttempt = func(ctx context.Context, name string, err error) {
			opts.Metrics.RecordProviderRequest(ctx, name, attemptStatus(err))
		}
	}

	c := &Catalog{
		byName: make(map[string]int, len(voices)),
		synths: make(map[string]*resilience.SynthesizerFallback, len(voices)),
	}
	for _, v := range voices {
		if _, dup := c.byName[v.Name]; dup {
			return nil, fmt.Errorf("voice: duplicate voice %q", v.Name)
		}
		group := resilience.NewGroup[tts.Synthesizer](fbCfg)
		for _, key := range append([]string{v.Provider}, v.Fallback...) {
			s, ok := providers[key]
			if !ok {
				return nil, fmt.Errorf("voice: voice %q references unknown provider %q", v.Name, key)
			}
			group.AddWithBreaker(key, s, breakerFor(key))
		}

		c.byName[v.Name] = len(c.voices)
		c.voices = append(c.voices, Profile(v))
		c.synths[v.Name] = resilience.NewSynthesizerGroup(group)
	}
	return c, nil
}

// Profile converts a voice definition into the profile carried by requests.
func Profile(v config.VoiceConfig) tts.VoiceProfile {
	speed := v.Speed
	if speed == 0 {
		speed = 1
	}
	return tts.VoiceProfile{
		Name:     v.Name,
		Provider: v.Provider,
		ID:       v.VoiceID,
		Style:    v.Style,
		Language: tts.Language(v.Language),
		Speed:    speed,
	}
}

func attemptStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// Default returns the first configured voice.
func (c *Catalog) Default() tts.VoiceProfile {
	return c.voices[0]
}

// Lookup returns the voice called name.
func (c *Catalog) Lookup(name string) (tts.VoiceProfile, bool) {
	i, ok := c.byName[name]
	if !ok {
		return tts.VoiceProfile{}, false
	}
	return c.voices[i], true
}

// Resolve returns the voice called name, or the default voice when name is
// empty or no longer configured.
func (c *Catalog) Resolve(name string) tts.VoiceProfile {
	if v, ok := c.Lookup(name); ok {
		return v
	}
	return c.Default()
}

// Names returns the voice names in configuration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.voices))
	for i, v := range c.voices {
		names[i] = v.Name
	}
	return names
}

// Suggest returns up to three voice names similar to name, best first.
func (c *Catalog) Suggest(name string) []string {
	type scored struct {
		name  string
		score float64
	}
	query := strings.ToLower(name)
	var hits []scored
	for _, v := range c.voices {
		candidate := strings.ToLower(v.Name)
		score := matchr.JaroWinkler(query, candidate, false)
		if strings.Contains(candidate, query) && query != "" {
			score = max(score, suggestThreshold)
		}
		if score >= suggestThreshold {
			hits = append(hits, scored{v.Name, score})
		}
	}
	slices.SortStableFunc(hits, func(a, b scored) int { return cmp.Compare(b.score, a.score) })
	out := make([]string, 0, 3)
	for _, h := range hits[:min(3, len(hits))] {
		out = append(out, h.name)
	}
	return out
}

// Providers returns the provider keys tried for the voice, in order.
func (c *Catalog) Providers(voiceName string) []string {
	s, ok := c.synths[voiceName]
	if !ok {
		return nil
	}
	return s.Providers()
}

// Synthesize dispatches req to the backends of req.Voice.
func (c *Catalog) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	s, ok := c.synths[req.Voice.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVoice, req.Voice.Name)
	}
	return s.Synthesize(ctx, req)
}

// FromConfig instantiates every configured provider through reg and builds a
// catalog over cfg.Voices.
func FromConfig(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*Catalog, error) {
	providers := make(map[string]tts.Synthesizer, len(cfg.Providers.TTS))
	for _, entry := range cfg.Providers.TTS {
		s, err := reg.CreateTTS(entry)
		if err != nil {
			return nil, fmt.Errorf("voice: create provider %q: %w", entry.Key(), err)
		}
		providers[entry.Key()] = s
	}
	cb := cfg.Synthesis.CircuitBreaker
	return New(cfg.Voices, providers, Options{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cb.MaxFailures,
			ResetTimeout: cb.ResetTimeout,
		},
		Metrics: metrics,
	})
}
