package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/yomiage/internal/discord"
	"github.com/MrWong99/yomiage/internal/observe"
	"github.com/MrWong99/yomiage/internal/pipeline"
	"github.com/MrWong99/yomiage/internal/prefs"
	"github.com/MrWong99/yomiage/pkg/provider/tts"
)

// Announcement suffixes read after a user's name.
const (
	joinedSuffix = "が入室しました。"
	leftSuffix   = "が退室しました。"
)

// VoiceResolver maps a stored voice name to a profile, falling back to the
// default voice.
type VoiceResolver interface {
	Resolve(name string) tts.VoiceProfile
}

// Settings are the channel conventions the [Speaker] follows.
type Settings struct {
	// TextChannel is the name of the channel whose messages are read.
	TextChannel string

	// AutoJoinChannel restricts auto-join to voice channels with this name.
	// Empty allows any channel.
	AutoJoinChannel string

	CommandPrefix string
	IgnorePrefix  string
}

// Speaker turns Discord events into speech. It implements
// [discord.EventHandler].
type Speaker struct {
	registry *pipeline.Registry
	voices   VoiceResolver
	prefs    prefs.Store
	sessions *SessionManager
	router   *discord.CommandRouter
	limiter  *Limiter
	metrics  *observe.Metrics

	mu       sync.RWMutex
	settings Settings
}

var _ discord.EventHandler = (*Speaker)(nil)

// SpeakerConfig holds the dependencies of a [Speaker].
type SpeakerConfig struct {
	Settings Settings
	Registry *pipeline.Registry
	Voices   VoiceResolver
	Prefs    prefs.Store
	Sessions *SessionManager
	Router   *discord.CommandRouter
	Limiter  *Limiter         // nil disables rate limiting
	Metrics  *observe.Metrics // nil uses observe.DefaultMetrics
}

// NewSpeaker creates a Speaker.
func NewSpeaker(cfg SpeakerConfig) *Speaker {
	if cfg.Limiter == nil {
		cfg.Limiter = NewLimiter(0, 0)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Speaker{
		registry: cfg.Registry,
		voices:   cfg.Voices,
		prefs:    cfg.Prefs,
		sessions: cfg.Sessions,
		router:   cfg.Router,
		limiter:  cfg.Limiter,
		metrics:  cfg.Metrics,
		settings: cfg.Settings,
	}
}

// Settings returns the current channel conventions.
func (s *Speaker) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetTextChannel changes the channel whose messages are read.
func (s *Speaker) SetTextChannel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.TextChannel = name
}

// HandleGuildAvailable prepares the guild's pipeline.
func (s *Speaker) HandleGuildAvailable(_ context.Context, guildID string) {
	s.registry.Ensure(guildID)
}

// HandleGuildRemoved ends the guild's session: the bot leaves voice, stops
// retrying joins and the guild's pipeline is stopped with its queued audio
// discarded.
func (s *Speaker) HandleGuildRemoved(ctx context.Context, guildID string) {
	if _, err := s.sessions.Leave(ctx, guildID); err != nil {
		slog.Warn("leave on guild removal failed", "guild_id", guildID, "err", err)
	}
	s.limiter.Forget(guildID)
	if s.registry.Remove(guildID) {
		slog.Info("guild removed, session ended", "guild_id", guildID)
	}
}

// HandleMessage reads m aloud or dispatches it as a command.
func (s *Speaker) HandleMessage(ctx context.Context, m discord.Message) {
	if m.AuthorBot {
		return
	}
	set := s.Settings()
	content := strings.TrimSpace(m.Content)

	switch {
	case content == "":
		return
	case set.IgnorePrefix != "" && strings.HasPrefix(content, set.IgnorePrefix):
		s.metrics.RecordMessage(ctx, observe.OutcomeIgnored)
		return
	case set.CommandPrefix != "" && strings.HasPrefix(content, set.CommandPrefix):
		s.metrics.RecordMessage(ctx, observe.OutcomeCommand)
		s.router.Handle(ctx, m, strings.TrimPrefix(content, set.CommandPrefix))
		return
	case m.ChannelName != set.TextChannel:
		return
	}

	log := slog.With("guild_id", m.GuildID, "user_id", m.AuthorID)
	server, err := s.prefs.Server(ctx, m.GuildID)
	if err != nil {
		log.Warn("failed to load server prefs, using defaults", "err", err)
		server = prefs.Server{AutoJoin: true, Talking: true}
	}
	if !server.Talking || !s.sessions.Connected(m.GuildID) {
		s.metrics.RecordMessage(ctx, observe.OutcomeIgnored)
		return
	}
	if !s.limiter.Allow(m.GuildID) {
		log.Debug("message dropped by rate limit")
		s.metrics.RecordMessage(ctx, observe.OutcomeRateLimited)
		return
	}

	user := s.userPrefs(ctx, m.AuthorID)
	voice := s.voices.Resolve(user.Voice)
	if user.Call {
		s.registry.Submit(ctx, m.GuildID, spokenName(user, m.AuthorName), voice.Language, voice)
	}
	s.registry.Submit(ctx, m.GuildID, content, voice.Language, voice)
	s.metrics.RecordMessage(ctx, observe.OutcomeSpoken)
}

// HandleVoiceState follows users into voice, leaves empty channels and
// announces arrivals and departures in the bot's channel.
func (s *Speaker) HandleVoiceState(ctx context.Context, c discord.VoiceStateChange) {
	if c.Bot {
		return
	}
	log := slog.With("guild_id", c.GuildID, "user_id", c.UserID)

	if c.Before.ID != "" && c.Before.ID != c.After.ID && c.Before.Humans == 0 {
		if err := s.sessions.channelEmptied(ctx, c.GuildID, c.Before.ID); err != nil {
			log.Warn("failed to handle empty channel", "err", err)
		}
	}

	server, err := s.prefs.Server(ctx, c.GuildID)
	if err != nil {
		log.Warn("failed to load server prefs, using defaults", "err", err)
		server = prefs.Server{AutoJoin: true, Talking: true}
	}

	if server.AutoJoin && c.After.ID != "" && c.After.Humans > 0 && !s.sessions.Connected(c.GuildID) {
		if want := s.Settings().AutoJoinChannel; want == "" || want == c.After.Name {
			log.Info("auto-joining voice channel", "channel", c.After.Name)
			if err := s.sessions.Join(ctx, c.GuildID, c.After.ID); err != nil {
				log.Warn("auto-join failed", "err", err)
			}
		}
	}

	if !server.Talking || !s.sessions.Connected(c.GuildID) {
		return
	}
	botChannel := s.sessions.ChannelID(c.GuildID)
	var suffix string
	switch {
	case c.Joined(botChannel):
		suffix = joinedSuffix
	case c.Left(botChannel):
		suffix = leftSuffix
	default:
		return
	}

	user := s.userPrefs(ctx, c.UserID)
	voice := s.voices.Resolve(user.Voice)
	s.registry.Submit(ctx, c.GuildID, spokenName(user, c.UserName), voice.Language, voice)
	s.registry.Submit(ctx, c.GuildID, suffix, voice.Language, voice)
}

func (s *Speaker) userPrefs(ctx context.Context, userID string) prefs.User {
	u, err := s.prefs.User(ctx, userID)
	if err != nil {
		slog.Warn("failed to load user prefs, using defaults", "user_id", userID, "err", err)
		return prefs.User{Call: true}
	}
	return u
}

func spokenName(u prefs.User, displayName string) string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return displayName
}
