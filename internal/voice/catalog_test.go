package voice

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/yomiage/internal/config"
	"github.com/MrWong99/yomiage/internal/resilience"
	"github.com/MrWong99/yomiage/pkg/provider/tts"
	"github.com/MrWong99/yomiage/pkg/provider/tts/mock"
)

var errBackend = errors.New("backend down")

func testVoices() []config.VoiceConfig {
	return []config.VoiceConfig{
		{Name: "tsumugi", Provider: "sbv2", Fallback: []string{"openai"}, VoiceID: "0", Style: "Neutral"},
		{Name: "zundamon", Provider: "sbv2", VoiceID: "1"},
		{Name: "alloy", Provider: "openai", VoiceID: "alloy", Language: config.LanguageEN, Speed: 1.25},
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	providers := map[string]tts.Synthesizer{"sbv2": &mock.Synthesizer{}}

	tests := []struct {
		name   string
		voices []config.VoiceConfig
	}{
		{name: "empty", voices: nil},
		{name: "unknown provider", voices: []config.VoiceConfig{{Name: "a", Provider: "coqui"}}},
		{name: "unknown fallback", voices: []config.VoiceConfig{{Name: "a", Provider: "sbv2", Fallback: []string{"x"}}}},
		{name: "duplicate", voices: []config.VoiceConfig{{Name: "a", Provider: "sbv2"}, {Name: "a", Provider: "sbv2"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.voices, providers, Options{}); err == nil {
				t.Fatal("New: expected error")
			}
		})
	}
}

func TestCatalog_LookupResolve(t *testing.T) {
	t.Parallel()
	c, err := New(testVoices(), map[string]tts.Synthesizer{
		"sbv2":   &mock.Synthesizer{},
		"openai": &mock.Synthesizer{},
	}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := c.Default().Name; got != "tsumugi" {
		t.Errorf("Default = %q, want tsumugi", got)
	}
	v, ok := c.Lookup("alloy")
	if !ok {
		t.Fatal("Lookup(alloy) not found")
	}
	want := tts.VoiceProfile{Name: "alloy", Provider: "openai", ID: "alloy", Language: tts.LanguageEN, Speed: 1.25}
	if v != want {
		t.Errorf("Lookup(alloy) = %+v, want %+v", v, want)
	}
	if v, _ := c.Lookup("zundamon"); v.Speed != 1 {
		t.Errorf("zero speed = %v, want 1", v.Speed)
	}
	if got := c.Resolve("gone").Name; got != "tsumugi" {
		t.Errorf("Resolve(gone) = %q, want default", got)
	}
	if got := c.Names(); !slices.Equal(got, []string{"tsumugi", "zundamon", "alloy"}) {
		t.Errorf("Names = %v", got)
	}
	if got := c.Providers("tsumugi"); !slices.Equal(got, []string{"sbv2", "openai"}) {
		t.Errorf("Providers(tsumugi) = %v", got)
	}
}

func TestCatalog_Suggest(t *testing.T) {
	t.Parallel()
	c, err := New(testVoices(), map[string]tts.Synthesizer{
		"sbv2":   &mock.Synthesizer{},
		"openai": &mock.Synthesizer{},
	}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		query string
		want  string
	}{
		{query: "tsumugj", want: "tsumugi"},
		{query: "Zundamon", want: "zundamon"},
		{query: "zunda", want: "zundamon"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()
			got := c.Suggest(tt.query)
			if len(got) == 0 || got[0] != tt.want {
				t.Errorf("Suggest(%q) = %v, want %q first", tt.query, got, tt.want)
			}
		})
	}
	if got := c.Suggest("qqqqqqqq"); len(got) != 0 {
		t.Errorf("Suggest(nonsense) = %v, want none", got)
	}
}

func TestCatalog_Synthesize(t *testing.T) {
	t.Parallel()
	sbv2 := &mock.Synthesizer{}
	openai := &mock.Synthesizer{}
	c, err := New(testVoices(), map[string]tts.Synthesizer{"sbv2": sbv2, "openai": openai}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if _, err := c.Synthesize(ctx, tts.Request{Text: "hi", Voice: c.Resolve("alloy")}); err != nil {
		t.Fatalf("Synthesize(alloy): %v", err)
	}
	if sbv2.CallCount() != 0 || openai.CallCount() != 1 {
		t.Errorf("calls sbv2=%d openai=%d, want 0/1", sbv2.CallCount(), openai.CallCount())
	}

	_, err = c.Synthesize(ctx, tts.Request{Text: "hi", Voice: tts.VoiceProfile{Name: "nobody"}})
	if !errors.Is(err, ErrUnknownVoice) {
		t.Errorf("err = %v, want ErrUnknownVoice", err)
	}
}

func TestCatalog_FallbackAndSharedBreaker(t *testing.T) {
	t.Parallel()
	sbv2 := &mock.Synthesizer{Err: errBackend}
	openai := &mock.Synthesizer{}
	c, err := New(testVoices(), map[string]tts.Synthesizer{"sbv2": sbv2, "openai": openai}, Options{
		CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	// tsumugi falls back to openai and opens the sbv2 breaker.
	if _, err := c.Synthesize(ctx, tts.Request{Text: "a", Voice: c.Resolve("tsumugi")}); err != nil {
		t.Fatalf("Synthesize(tsumugi): %v", err)
	}
	if openai.CallCount() != 1 {
		t.Errorf("openai calls = %d, want 1", openai.CallCount())
	}

	// zundamon only has sbv2, whose breaker is now open.
	_, err = c.Synthesize(ctx, tts.Request{Text: "b", Voice: c.Resolve("zundamon")})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if sbv2.CallCount() != 1 {
		t.Errorf("sbv2 calls = %d, want 1", sbv2.CallCount())
	}
}

func TestFromConfig(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	var created []string
	reg.RegisterTTS("sbv2", func(e config.ProviderEntry) (tts.Synthesizer, error) {
		created = append(created, e.Key())
		return &mock.Synthesizer{}, nil
	})

	cfg := &config.Config{
		Providers: config.ProvidersConfig{TTS: []config.ProviderEntry{
			{ID: "local", Name: "sbv2"},
			{ID: "remote", Name: "sbv2"},
		}},
		Voices: []config.VoiceConfig{{Name: "a", Provider: "local", Fallback: []string{"remote"}}},
	}
	c, err := FromConfig(cfg, reg, nil)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if !slices.Equal(created, []string{"local", "remote"}) {
		t.Errorf("created = %v", created)
	}
	if got := c.Providers("a"); !slices.Equal(got, []string{"local", "remote"}) {
		t.Errorf("Providers = %v", got)
	}

	cfg.Providers.TTS = append(cfg.Providers.TTS, config.ProviderEntry{Name: "coqui"})
	if _, err := FromConfig(cfg, reg, nil); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}
