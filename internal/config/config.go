// Package config provides the configuration schema, loader, and provider registry
// for the yomiage text-to-speech bot.
package config

import "time"

// LogLevel controls log verbosity for the yomiage process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Language is the fixed spoken language a voice may declare. An empty value
// lets the language selector decide per segment.
type Language string

const (
	LanguageAuto Language = ""
	LanguageJP   Language = "JP"
	LanguageEN   Language = "EN"
	LanguageZH   Language = "ZH"
)

// IsValid reports whether l is a recognised language (including auto).
func (l Language) IsValid() bool {
	switch l {
	case LanguageAuto, LanguageJP, LanguageEN, LanguageZH:
		return true
	}
	return false
}

// PrefsBackend selects where user and server preferences are persisted.
type PrefsBackend string

const (
	PrefsJSON     PrefsBackend = "json"
	PrefsPostgres PrefsBackend = "postgres"
)

// IsValid reports whether b is a recognised preference backend.
func (b PrefsBackend) IsValid() bool {
	return b == PrefsJSON || b == PrefsPostgres
}

// Config is the root configuration structure for yomiage.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Discord    DiscordConfig    `yaml:"discord"`
	Synthesis  SynthesisConfig  `yaml:"synthesis"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Voices     []VoiceConfig    `yaml:"voices"`
	Dictionary DictionaryConfig `yaml:"dictionary"`
	Prefs      PrefsConfig      `yaml:"prefs"`
}

// ServerConfig holds the health/metrics listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for /healthz, /readyz and /metrics.
	// Defaults to ":9090"; "off" disables the HTTP listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DiscordConfig holds the bot credentials and the channel conventions the
// bot follows inside every guild.
type DiscordConfig struct {
	// Token is the bot token. When empty, the DISCORD_TOKEN environment
	// variable is used.
	Token string `yaml:"token"`

	// TextChannel is the name of the text channel whose messages are read
	// aloud. Defaults to "vc-text".
	TextChannel string `yaml:"text_channel"`

	// AutoJoinChannel is the name of the voice channel the bot follows users
	// into. Empty means any voice channel.
	AutoJoinChannel string `yaml:"auto_join_channel"`

	// CommandPrefix marks a message as a bot command. Defaults to "!".
	CommandPrefix string `yaml:"command_prefix"`

	// IgnorePrefix marks a message that must never be read aloud.
	// Defaults to ";".
	IgnorePrefix string `yaml:"ignore_prefix"`
}

// SynthesisConfig bounds how much synthesis work the process admits.
type SynthesisConfig struct {
	// MaxConcurrent is the number of synthesis calls allowed in flight across
	// all guilds. Defaults to 1.
	MaxConcurrent int `yaml:"max_concurrent"`

	// RateLimit is the sustained number of messages per second accepted per
	// guild. Zero disables rate limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the number of messages a guild may send in a burst before
	// the rate limit applies. Defaults to 5 when RateLimit is set.
	RateBurst int `yaml:"rate_burst"`

	// CircuitBreaker configures the breaker wrapped around every provider.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig mirrors resilience.CircuitBreakerConfig in YAML form.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures that open the circuit.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long the circuit stays open before a probe.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ProvidersConfig declares the synthesizer backends voices can reference.
type ProvidersConfig struct {
	TTS []ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the configuration block of one synthesizer backend.
type ProviderEntry struct {
	// ID is the name voices use to reference this backend. Defaults to Name.
	ID string `yaml:"id"`

	// Name selects the registered provider implementation (e.g., "sbv2", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "tts-1").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// Key returns the identifier voices use to reference this backend.
func (e ProviderEntry) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Name
}

// VoiceConfig declares one selectable voice. The first entry is the default
// voice for users without a preference.
type VoiceConfig struct {
	// Name is the user-facing voice name used by "set voice".
	Name string `yaml:"name"`

	// Provider references a [ProviderEntry] by its key.
	Provider string `yaml:"provider"`

	// Fallback lists further provider keys tried when Provider fails.
	Fallback []string `yaml:"fallback"`

	// VoiceID is the provider-specific voice or model identifier.
	VoiceID string `yaml:"voice_id"`

	// Style is the provider-specific speaking style (e.g., "Neutral").
	Style string `yaml:"style"`

	// Language pins the spoken language. Empty selects it per segment.
	Language Language `yaml:"language"`

	// Speed scales speech length. 1.0 is normal; zero means 1.0.
	Speed float64 `yaml:"speed"`
}

// DictionaryConfig points at the pronunciation dictionary CSV.
type DictionaryConfig struct {
	// Path is the OpenJTalk user dictionary CSV. Empty disables the
	// dictionary and the "set dict" command.
	Path string `yaml:"path"`

	// Watch reloads the dictionary when the file changes on disk.
	Watch bool `yaml:"watch"`
}

// PrefsConfig selects the preference store.
type PrefsConfig struct {
	// Backend is "json" (default) or "postgres".
	Backend PrefsBackend `yaml:"backend"`

	// UserPath is the user preference JSON file. Defaults to "user_info.json".
	UserPath string `yaml:"user_path"`

	// ServerPath is the server preference JSON file. Defaults to "server_info.json".
	ServerPath string `yaml:"server_path"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`
}
