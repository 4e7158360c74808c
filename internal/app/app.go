// Package app wires the yomiage subsystems into a running bot.
//
// The App struct owns the lifecycle: New builds the speech pipeline registry,
// the voice session manager, the command router and the [Speaker]; Shutdown
// tears them down in order. Providers, stores and the Discord transport are
// created by main and passed in as [Deps], so tests can inject doubles.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/MrWong99/yomiage/internal/config"
	"github.com/MrWong99/yomiage/internal/discord"
	"github.com/MrWong99/yomiage/internal/gate"
	"github.com/MrWong99/yomiage/internal/language"
	"github.com/MrWong99/yomiage/internal/observe"
	"github.com/MrWong99/yomiage/internal/pipeline"
	"github.com/MrWong99/yomiage/internal/prefs"
	"github.com/MrWong99/yomiage/internal/session"
	"github.com/MrWong99/yomiage/pkg/provider/tts"
)

// Deps holds the externally created collaborators of an [App].
type Deps struct {
	// Synthesizer produces speech for every guild. Required.
	Synthesizer tts.Synthesizer

	// Voices resolves users' voice preferences. Required.
	Voices VoiceResolver

	// Dictionary feeds the language selector. May be nil.
	Dictionary language.DictionaryLookup

	// Prefs stores user and server preferences. Required.
	Prefs prefs.Store

	// Voice controls voice channel presence. Required.
	Voice Voice

	// Players supplies each guild's voice player. Required.
	Players pipeline.PlayerFactory

	// Sender posts command replies. Required.
	Sender discord.Sender

	// Metrics may be nil, in which case [observe.DefaultMetrics] is used.
	Metrics *observe.Metrics
}

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	gate     *gate.Gate
	registry *pipeline.Registry
	sessions *SessionManager
	router   *discord.CommandRouter
	limiter  *Limiter
	speaker  *Speaker

	reconnect session.ReconnectorConfig

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithReconnect overrides the voice reconnection policy.
func WithReconnect(cfg session.ReconnectorConfig) Option {
	return func(a *App) { a.reconnect = cfg }
}

// WithCloser registers fn to run during Shutdown after the built-in
// subsystems stopped. Closers run in registration order.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New creates an App from cfg and deps.
func New(cfg *config.Config, deps Deps, opts ...Option) (*App, error) {
	var errs []error
	if deps.Synthesizer == nil {
		errs = append(errs, errors.New("app: synthesizer is required"))
	}
	if deps.Voices == nil {
		errs = append(errs, errors.New("app: voices are required"))
	}
	if deps.Prefs == nil {
		errs = append(errs, errors.New("app: prefs store is required"))
	}
	if deps.Voice == nil || deps.Players == nil {
		errs = append(errs, errors.New("app: voice platform is required"))
	}
	if deps.Sender == nil {
		errs = append(errs, errors.New("app: sender is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}

	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	a.gate = gate.New(cfg.Synthesis.MaxConcurrent)
	a.registry = pipeline.NewRegistry(pipeline.Config{
		Synthesizer: deps.Synthesizer,
		Gate:        a.gate,
		Selector:    language.New(deps.Dictionary),
		Players:     deps.Players,
		Metrics:     deps.Metrics,
	})
	a.sessions = NewSessionManager(SessionManagerConfig{
		Voice:     deps.Voice,
		Prefs:     deps.Prefs,
		Reconnect: a.reconnect,
	})
	a.router = discord.NewCommandRouter(deps.Sender)
	a.limiter = NewLimiter(cfg.Synthesis.RateLimit, cfg.Synthesis.RateBurst)
	a.speaker = NewSpeaker(SpeakerConfig{
		Settings: Settings{
			TextChannel:     cfg.Discord.TextChannel,
			AutoJoinChannel: cfg.Discord.AutoJoinChannel,
			CommandPrefix:   cfg.Discord.CommandPrefix,
			IgnorePrefix:    cfg.Discord.IgnorePrefix,
		},
		Registry: a.registry,
		Voices:   deps.Voices,
		Prefs:    deps.Prefs,
		Sessions: a.sessions,
		Router:   a.router,
		Limiter:  a.limiter,
		Metrics:  deps.Metrics,
	})
	return a, nil
}

// Registry returns the speech pipeline registry.
func (a *App) Registry() *pipeline.Registry { return a.registry }

// Sessions returns the voice session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Router returns the command router for registering handlers.
func (a *App) Router() *discord.CommandRouter { return a.router }

// Speaker returns the event handler to attach to the bot.
func (a *App) Speaker() *Speaker { return a.speaker }

// Gate returns the synthesis gate shared by all guilds.
func (a *App) Gate() *gate.Gate { return a.gate }

// ApplyDiff applies the hot-reloadable parts of a configuration change.
func (a *App) ApplyDiff(diff config.ConfigDiff) {
	if diff.TextChannelChanged {
		a.speaker.SetTextChannel(diff.NewTextChannel)
		slog.Info("text channel changed", "channel", diff.NewTextChannel)
	}
	if diff.RateLimitChanged {
		a.limiter.SetLimit(diff.NewRateLimit, diff.NewRateBurst)
		slog.Info("rate limit changed", "per_second", diff.NewRateLimit, "burst", diff.NewRateBurst)
	}
}

// Shutdown tears down all subsystems: voice retries stop, every guild's
// pipeline is drained, then registered closers run. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", len(a.registry.Sessions()), "closers", len(a.closers))

		a.sessions.Close()
		a.registry.Close()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
