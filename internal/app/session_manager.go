package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/yomiage/internal/prefs"
	"github.com/MrWong99/yomiage/internal/session"
)

// Voice controls the bot's presence in voice channels.
type Voice interface {
	JoinVoice(ctx context.Context, guildID, channelID string) error
	Leave(guildID string) (bool, error)
	Connected(guildID string) bool
	ChannelID(guildID string) string
}

// SessionManager decides when the bot is in which voice channel. Explicit
// joins are remembered so dropped connections are retried; leaving keeps the
// guild's speech pipeline so queued audio resumes after the next join.
//
// All exported methods are safe for concurrent use.
type SessionManager struct {
	voice       Voice
	prefs       prefs.Store
	reconnector *session.Reconnector
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Voice Voice
	Prefs prefs.Store

	// Reconnect tunes retries of failed joins. Its Joiner is ignored; the
	// Voice is used.
	Reconnect session.ReconnectorConfig
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	rc := cfg.Reconnect
	rc.Joiner = cfg.Voice
	return &SessionManager{
		voice:       cfg.Voice,
		prefs:       cfg.Prefs,
		reconnector: session.NewReconnector(rc),
	}
}

// Join connects to channelID. Failed joins are retried in the background
// and the first error is returned.
func (sm *SessionManager) Join(ctx context.Context, guildID, channelID string) error {
	if err := sm.reconnector.Connect(ctx, guildID, channelID); err != nil {
		return err
	}
	slog.Info("joined voice", "guild_id", guildID, "channel_id", channelID)
	return nil
}

// Leave disconnects from the guild's voice channel and stops any retries.
// It reports whether the bot was connected.
func (sm *SessionManager) Leave(_ context.Context, guildID string) (bool, error) {
	sm.reconnector.Forget(guildID)
	left, err := sm.voice.Leave(guildID)
	if err != nil {
		return left, fmt.Errorf("app: leave voice: %w", err)
	}
	return left, nil
}

// Connected reports whether the bot is in a voice channel of guildID.
func (sm *SessionManager) Connected(guildID string) bool {
	return sm.voice.Connected(guildID)
}

// ChannelID returns the voice channel the bot is in, or "".
func (sm *SessionManager) ChannelID(guildID string) string {
	return sm.voice.ChannelID(guildID)
}

// SetAutoJoin stores whether the bot follows users into voice in guildID.
func (sm *SessionManager) SetAutoJoin(ctx context.Context, guildID string, on bool) error {
	return sm.prefs.UpdateServer(ctx, guildID, prefs.ServerUpdate{AutoJoin: prefs.Bool(on)})
}

// NotifyDisconnect reports that Discord dropped the guild's voice
// connection. A remembered channel is rejoined in the background.
func (sm *SessionManager) NotifyDisconnect(guildID string) {
	sm.reconnector.NotifyDisconnect(guildID)
}

// channelEmptied handles the last human leaving channelID. The guild's
// auto-join and talking flags are reset to on, and the bot leaves if it was
// in that channel.
func (sm *SessionManager) channelEmptied(ctx context.Context, guildID, channelID string) error {
	err := sm.prefs.UpdateServer(ctx, guildID, prefs.ServerUpdate{
		AutoJoin: prefs.Bool(true),
		Talking:  prefs.Bool(true),
	})
	if sm.voice.ChannelID(guildID) != channelID {
		return err
	}
	slog.Info("last user left, disconnecting", "guild_id", guildID, "channel_id", channelID)
	_, leaveErr := sm.Leave(ctx, guildID)
	return errors.Join(err, leaveErr)
}

// Close stops all reconnection attempts.
func (sm *SessionManager) Close() {
	sm.reconnector.Stop()
}
