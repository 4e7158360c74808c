// Package session keeps the bot's voice presence alive across transient
// failures.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Joiner connects the bot to a voice channel.
type Joiner interface {
	JoinVoice(ctx context.Context, guildID, channelID string) error
}

// JoinerFunc adapts a function to [Joiner].
type JoinerFunc func(ctx context.Context, guildID, channelID string) error

// JoinVoice calls f.
func (f JoinerFunc) JoinVoice(ctx context.Context, guildID, channelID string) error {
	return f(ctx, guildID, channelID)
}

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// Joiner establishes voice connections. Required.
	Joiner Joiner

	// MaxRetries is the number of background attempts before giving up.
	// Defaults to 10 if zero.
	MaxRetries int

	// Backoff is the wait before the first retry. It doubles each attempt up
	// to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff caps the wait between retries. Defaults to 30s if zero.
	MaxBackoff time.Duration

	// OnJoined is called after a background retry succeeded. May be nil.
	OnJoined func(guildID, channelID string)
}

// Reconnector remembers which voice channel the bot should be in for each
// guild and rejoins it with exponential backoff when a join fails or the
// connection drops.
//
// All methods are safe for concurrent use.
type Reconnector struct {
	joiner     Joiner
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	onJoined   func(guildID, channelID string)

	mu       sync.Mutex
	desired  map[string]string
	retrying map[string]context.CancelFunc
	stopped  bool

	wg sync.WaitGroup
}

// NewReconnector creates a [Reconnector].
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	r := &Reconnector{
		joiner:     cfg.Joiner,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		maxBackoff: cfg.MaxBackoff,
		onJoined:   cfg.OnJoined,
		desired:    make(map[string]string),
		retrying:   make(map[string]context.CancelFunc),
	}
	if r.maxRetries <= 0 {
		r.maxRetries = defaultMaxRetries
	}
	if r.backoff <= 0 {
		r.backoff = defaultBackoff
	}
	if r.maxBackoff <= 0 {
		r.maxBackoff = defaultMaxBackoff
	}
	return r
}

// Connect joins channelID in guildID and remembers it as the guild's voice
// channel. If the join fails the error is returned and retries continue in
// the background.
func (r *Reconnector) Connect(ctx context.Context, guildID, channelID string) error {
	r.mu.Lock()
	r.desired[guildID] = channelID
	if cancel, ok := r.retrying[guildID]; ok {
		cancel()
		delete(r.retrying, guildID)
	}
	r.mu.Unlock()

	if err := r.joiner.JoinVoice(ctx, guildID, channelID); err != nil {
		r.NotifyDisconnect(guildID)
		return fmt.Errorf("session: join voice channel %s: %w", channelID, err)
	}
	return nil
}

// NotifyDisconnect reports that the voice connection of guildID was lost.
// If the guild has a remembered channel and no retry is running, one is
// started. Further calls during a running retry have no effect.
func (r *Reconnector) NotifyDisconnect(guildID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	channelID, ok := r.desired[guildID]
	if !ok || r.stopped {
		return
	}
	if _, running := r.retrying[guildID]; running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.retrying[guildID] = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.attemptReconnect(ctx, guildID, channelID)
		r.mu.Lock()
		if ctx.Err() == nil {
			delete(r.retrying, guildID)
		}
		r.mu.Unlock()
		cancel()
	}()
}

// Forget stops retrying guildID and drops its remembered channel. Call it
// when the bot leaves on purpose.
func (r *Reconnector) Forget(guildID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.desired, guildID)
	if cancel, ok := r.retrying[guildID]; ok {
		cancel()
		delete(r.retrying, guildID)
	}
}

// Channel returns the remembered voice channel of guildID.
func (r *Reconnector) Channel(guildID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.desired[guildID]
	return ch, ok
}

// Retrying reports whether a background retry is running for guildID.
func (r *Reconnector) Retrying(guildID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.retrying[guildID]
	return ok
}

// Stop cancels all retries and waits for them to exit. Safe to call more
// than once.
func (r *Reconnector) Stop() {
	r.mu.Lock()
	r.stopped = true
	for id, cancel := range r.retrying {
		cancel()
		delete(r.retrying, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Reconnector) attemptReconnect(ctx context.Context, guildID, channelID string) {
	wait := r.backoff
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		slog.Info("attempting voice reconnection",
			"guild_id", guildID,
			"channel_id", channelID,
			"attempt", attempt,
			"max_retries", r.maxRetries,
		)
		err := r.joiner.JoinVoice(ctx, guildID, channelID)
		if err == nil {
			slog.Info("voice reconnection successful", "guild_id", guildID, "attempt", attempt)
			if r.onJoined != nil {
				r.onJoined(guildID, channelID)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		slog.Warn("voice reconnection attempt failed",
			"guild_id", guildID,
			"attempt", attempt,
			"err", err,
		)
		wait = min(wait*2, r.maxBackoff)
	}

	slog.Error("voice reconnection failed after max retries",
		"guild_id", guildID,
		"channel_id", channelID,
		"max_retries", r.maxRetries,
	)
}
