package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known synthesizer implementations.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"sbv2", "coqui", "elevenlabs", "openai"}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr    = ":9090"
	DefaultTextChannel   = "vc-text"
	DefaultCommandPrefix = "!"
	DefaultIgnorePrefix  = ";"
	DefaultUserPath      = "user_info.json"
	DefaultServerPath    = "server_info.json"
	DefaultRateBurst     = 5
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// against the environment, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	switch cfg.Server.ListenAddr {
	case "":
		cfg.Server.ListenAddr = DefaultListenAddr
	case "off":
		cfg.Server.ListenAddr = ""
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Discord.Token == "" {
		cfg.Discord.Token = os.Getenv("DISCORD_TOKEN")
	}
	if cfg.Discord.TextChannel == "" {
		cfg.Discord.TextChannel = DefaultTextChannel
	}
	if cfg.Discord.CommandPrefix == "" {
		cfg.Discord.CommandPrefix = DefaultCommandPrefix
	}
	if cfg.Discord.IgnorePrefix == "" {
		cfg.Discord.IgnorePrefix = DefaultIgnorePrefix
	}
	if cfg.Synthesis.MaxConcurrent == 0 {
		cfg.Synthesis.MaxConcurrent = 1
	}
	if cfg.Synthesis.RateLimit > 0 && cfg.Synthesis.RateBurst == 0 {
		cfg.Synthesis.RateBurst = DefaultRateBurst
	}
	if cfg.Synthesis.CircuitBreaker.MaxFailures == 0 {
		cfg.Synthesis.CircuitBreaker.MaxFailures = 5
	}
	if cfg.Synthesis.CircuitBreaker.ResetTimeout == 0 {
		cfg.Synthesis.CircuitBreaker.ResetTimeout = 30 * time.Second
	}
	if cfg.Prefs.Backend == "" {
		cfg.Prefs.Backend = PrefsJSON
	}
	if cfg.Prefs.UserPath == "" {
		cfg.Prefs.UserPath = DefaultUserPath
	}
	if cfg.Prefs.ServerPath == "" {
		cfg.Prefs.ServerPath = DefaultServerPath
	}
	for i := range cfg.Voices {
		if cfg.Voices[i].Speed == 0 {
			cfg.Voices[i].Speed = 1.0
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Discord
	if cfg.Discord.Token == "" {
		slog.Warn("discord.token is empty and DISCORD_TOKEN is unset; the bot cannot log in")
	}
	if cfg.Discord.CommandPrefix == cfg.Discord.IgnorePrefix && cfg.Discord.CommandPrefix != "" {
		errs = append(errs, fmt.Errorf("discord.command_prefix and discord.ignore_prefix must differ (both %q)", cfg.Discord.CommandPrefix))
	}

	// Synthesis
	if cfg.Synthesis.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("synthesis.max_concurrent %d must be positive", cfg.Synthesis.MaxConcurrent))
	}
	if cfg.Synthesis.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("synthesis.rate_limit %.2f must not be negative", cfg.Synthesis.RateLimit))
	}

	// Providers
	providerKeys := make(map[string]int, len(cfg.Providers.TTS))
	for i, p := range cfg.Providers.TTS {
		prefix := fmt.Sprintf("providers.tts[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName(p.Name)
		if prev, ok := providerKeys[p.Key()]; ok {
			errs = append(errs, fmt.Errorf("%s key %q is a duplicate of providers.tts[%d]", prefix, p.Key(), prev))
		}
		providerKeys[p.Key()] = i
	}

	// Voices
	if len(cfg.Voices) == 0 {
		errs = append(errs, errors.New("voices: at least one voice is required"))
	}
	voiceNamesSeen := make(map[string]int, len(cfg.Voices))
	for i, v := range cfg.Voices {
		prefix := fmt.Sprintf("voices[%d]", i)
		if v.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := voiceNamesSeen[v.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of voices[%d]", prefix, v.Name, prev))
			}
			voiceNamesSeen[v.Name] = i
		}
		if _, ok := providerKeys[v.Provider]; !ok {
			errs = append(errs, fmt.Errorf("%s.provider %q does not match any providers.tts entry", prefix, v.Provider))
		}
		for _, fb := range v.Fallback {
			if _, ok := providerKeys[fb]; !ok {
				errs = append(errs, fmt.Errorf("%s.fallback %q does not match any providers.tts entry", prefix, fb))
			}
		}
		if !v.Language.IsValid() {
			errs = append(errs, fmt.Errorf("%s.language %q is invalid; valid values: JP, EN, ZH or empty", prefix, v.Language))
		}
		if v.Speed != 0 && (v.Speed < 0.25 || v.Speed > 4.0) {
			errs = append(errs, fmt.Errorf("%s.speed %.2f is out of range [0.25, 4.0]", prefix, v.Speed))
		}
	}

	// Prefs
	if !cfg.Prefs.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("prefs.backend %q is invalid; valid values: json, postgres", cfg.Prefs.Backend))
	}
	if cfg.Prefs.Backend == PrefsPostgres && cfg.Prefs.PostgresDSN == "" {
		errs = append(errs, errors.New("prefs.postgres_dsn is required when prefs.backend is postgres"))
	}

	if cfg.Dictionary.Path == "" {
		slog.Warn("dictionary.path is empty; dictionary-based language detection and \"set dict\" are disabled")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not found in
// [ValidProviderNames].
func validateProviderName(name string) {
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown tts provider name; may be a typo or third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}
