package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; everything else is
// reported through RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	TextChannelChanged bool
	NewTextChannel     string

	RateLimitChanged bool
	NewRateLimit     float64
	NewRateBurst     int

	// RestartRequired names the top-level sections that changed but can
	// only take effect after a restart.
	RestartRequired []string
}

// Empty reports whether d contains no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.TextChannelChanged && !d.RateLimitChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Discord.TextChannel != new.Discord.TextChannel {
		d.TextChannelChanged = true
		d.NewTextChannel = new.Discord.TextChannel
	}
	if old.Synthesis.RateLimit != new.Synthesis.RateLimit || old.Synthesis.RateBurst != new.Synthesis.RateBurst {
		d.RateLimitChanged = true
		d.NewRateLimit = new.Synthesis.RateLimit
		d.NewRateBurst = new.Synthesis.RateBurst
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Discord.Token != new.Discord.Token ||
		old.Discord.AutoJoinChannel != new.Discord.AutoJoinChannel ||
		old.Discord.CommandPrefix != new.Discord.CommandPrefix ||
		old.Discord.IgnorePrefix != new.Discord.IgnorePrefix {
		d.RestartRequired = append(d.RestartRequired, "discord")
	}
	if old.Synthesis.MaxConcurrent != new.Synthesis.MaxConcurrent || old.Synthesis.CircuitBreaker != new.Synthesis.CircuitBreaker {
		d.RestartRequired = append(d.RestartRequired, "synthesis")
	}
	if !providersEqual(old.Providers.TTS, new.Providers.TTS) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if !slices.EqualFunc(old.Voices, new.Voices, voicesEqual) {
		d.RestartRequired = append(d.RestartRequired, "voices")
	}
	if old.Dictionary != new.Dictionary {
		d.RestartRequired = append(d.RestartRequired, "dictionary")
	}
	if old.Prefs != new.Prefs {
		d.RestartRequired = append(d.RestartRequired, "prefs")
	}

	return d
}

func voicesEqual(a, b VoiceConfig) bool {
	return a.Name == b.Name &&
		a.Provider == b.Provider &&
		slices.Equal(a.Fallback, b.Fallback) &&
		a.VoiceID == b.VoiceID &&
		a.Style == b.Style &&
		a.Language == b.Language &&
		a.Speed == b.Speed
}

// providersEqual compares entries field by field. Options maps are compared
// by key set and formatted value.
func providersEqual(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.Name != y.Name || x.APIKey != y.APIKey || x.BaseURL != y.BaseURL || x.Model != y.Model {
			return false
		}
		if len(x.Options) != len(y.Options) {
			return false
		}
		for k, v := range x.Options {
			w, ok := y.Options[k]
			if !ok || fmtAny(v) != fmtAny(w) {
				return false
			}
		}
	}
	return true
}
