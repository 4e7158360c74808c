// Command yomiage is the main entry point for the yomiage Discord
// text-to-speech bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/yomiage/internal/app"
	"github.com/MrWong99/yomiage/internal/config"
	"github.com/MrWong99/yomiage/internal/dictionary"
	"github.com/MrWong99/yomiage/internal/discord"
	"github.com/MrWong99/yomiage/internal/discord/commands"
	"github.com/MrWong99/yomiage/internal/health"
	"github.com/MrWong99/yomiage/internal/observe"
	"github.com/MrWong99/yomiage/internal/prefs"
	"github.com/MrWong99/yomiage/internal/session"
	"github.com/MrWong99/yomiage/internal/voice"
	audiodiscord "github.com/MrWong99/yomiage/pkg/audio/discord"
	"github.com/MrWong99/yomiage/pkg/provider/tts"
	"github.com/MrWong99/yomiage/pkg/provider/tts/coqui"
	"github.com/MrWong99/yomiage/pkg/provider/tts/elevenlabs"
	oaitts "github.com/MrWong99/yomiage/pkg/provider/tts/openai"
	"github.com/MrWong99/yomiage/pkg/provider/tts/sbv2"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watchConfig := flag.Bool("watch-config", true, "reload hot-reloadable settings when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "yomiage: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "yomiage: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var logLevel slog.LevelVar
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel})))

	slog.Info("yomiage starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	otelProvider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Voices and providers ──────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	catalog, err := voice.FromConfig(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build voices", "err", err)
		return 1
	}

	// ── Dictionary ────────────────────────────────────────────────────────────
	var dict *dictionary.Dictionary
	if cfg.Dictionary.Path != "" {
		dict, err = dictionary.Open(cfg.Dictionary.Path)
		if err != nil {
			slog.Error("failed to load dictionary", "path", cfg.Dictionary.Path, "err", err)
			return 1
		}
		slog.Info("dictionary loaded", "path", dict.Path(), "rows", dict.Len())
	}

	// ── Preferences ───────────────────────────────────────────────────────────
	store, err := prefs.Open(ctx, cfg.Prefs)
	if err != nil {
		slog.Error("failed to open preference store", "backend", cfg.Prefs.Backend, "err", err)
		return 1
	}

	// ── Discord ───────────────────────────────────────────────────────────────
	bot, err := discord.New(discord.Config{Token: cfg.Discord.Token})
	if err != nil {
		slog.Error("failed to create Discord bot", "err", err)
		store.Close()
		return 1
	}

	var application *app.App
	platform := audiodiscord.New(bot.Session(), audiodiscord.WithOnDisconnect(func(guildID string) {
		application.Sessions().NotifyDisconnect(guildID)
	}))
	bot.OnSelfVoiceState(platform.HandleVoiceStateUpdate)

	deps := app.Deps{
		Synthesizer: catalog,
		Voices:      catalog,
		Prefs:       store,
		Voice:       platform,
		Players:     platform.Player,
		Sender:      bot.Session(),
		Metrics:     metrics,
	}
	if dict != nil {
		deps.Dictionary = dict
	}
	application, err = app.New(cfg, deps,
		app.WithReconnect(session.ReconnectorConfig{
			OnJoined: func(guildID, channelID string) {
				slog.Info("voice connection restored", "guild_id", guildID, "channel_id", channelID)
			},
		}),
		app.WithCloser(store.Close),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		store.Close()
		return 1
	}

	commands.RegisterAll(application.Router(), commands.Deps{
		Prefix:     cfg.Discord.CommandPrefix,
		Sessions:   application.Sessions(),
		Prefs:      store,
		Voices:     catalog,
		Pipelines:  application.Registry(),
		Dictionary: dict,
	})
	bot.SetHandler(application.Speaker())

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watchConfig {
		watcher, err := config.NewWatcher(*configPath, func(diff config.ConfigDiff, _ *config.Config) {
			if diff.LogLevelChanged {
				logLevel.Set(slogLevel(diff.NewLogLevel))
				slog.Info("log level changed", "level", diff.NewLogLevel)
			}
			application.ApplyDiff(diff)
			if len(diff.RestartRequired) > 0 {
				slog.Warn("config changes require a restart", "sections", diff.RestartRequired)
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer watcher.Stop()
		}
	}

	printStartupSummary(cfg, catalog, dict)

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := bot.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if dict != nil && cfg.Dictionary.Watch {
		g.Go(func() error { return dict.Watch(gctx) })
	}

	if cfg.Server.ListenAddr != "" {
		checks := health.New(
			health.Checker{Name: "discord", Check: func(context.Context) error {
				if !bot.Connected() {
					return errors.New("gateway not ready")
				}
				return nil
			}},
			health.Checker{Name: "prefs", Check: store.Ping},
		)
		if dict != nil {
			checks.Add(health.Checker{Name: "dictionary", Check: func(context.Context) error { return dict.Err() }})
		}

		mux := http.NewServeMux()
		checks.Register(mux)
		mux.Handle("GET /metrics", otelProvider.MetricsHandler())
		srv := &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           observe.Middleware(metrics, "/healthz", "/readyz", "/metrics")(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("health server listening", "addr", cfg.Server.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	slog.Info("bot ready; press Ctrl+C to shut down")

	runErr := g.Wait()
	if runErr != nil {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := bot.Close(); err != nil {
		slog.Warn("discord bot close error", "err", err)
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if err := otelProvider.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in synthesizer factories into reg.
// Each factory receives a config.ProviderEntry and constructs the backend
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterTTS("sbv2", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []sbv2.Option
		if w := entry.OptFloat("style_weight", 0); w > 0 {
			opts = append(opts, sbv2.WithStyleWeight(w))
		}
		if s := entry.OptFloat("timeout_seconds", 0); s > 0 {
			opts = append(opts, sbv2.WithTimeout(time.Duration(s*float64(time.Second))))
		}
		return sbv2.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []coqui.Option
		if mode := entry.OptString("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if entry.OptString("send_language") == "false" {
			opts = append(opts, coqui.WithSendLanguage(false))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := entry.OptString("output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []oaitts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		return oaitts.New(entry.APIKey, entry.Model, opts...)
	})
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, catalog *voice.Catalog, dict *dictionary.Dictionary) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        yomiage startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Voices", fmt.Sprintf("%d (default %s)", len(catalog.Names()), catalog.Default().Name))
	printRow("Providers", fmt.Sprintf("%d", len(cfg.Providers.TTS)))
	printRow("Text channel", cfg.Discord.TextChannel)
	printRow("Max synthesis", fmt.Sprintf("%d", cfg.Synthesis.MaxConcurrent))
	printRow("Prefs", string(cfg.Prefs.Backend))
	if dict != nil {
		printRow("Dictionary", fmt.Sprintf("%d rows", dict.Len()))
	} else {
		printRow("Dictionary", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-13s   : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
