// Package discord connects the speech pipeline to Discord voice channels via
// the bwmarrin/discordgo library.
//
// A [Platform] owns one [Connection] per guild. Connections implement
// [audio.VoicePlayer] and stay valid across voice joins and leaves; the
// platform attaches and detaches the underlying discordgo voice connection.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/yomiage/pkg/audio"
)

// Platform manages voice connections for every guild the bot is in. It
// requires an active *discordgo.Session (owned by the bot layer).
//
// Platform is safe for concurrent use.
type Platform struct {
	session *discordgo.Session
	join    func(guildID, channelID string) (voiceLink, error)

	mu    sync.Mutex
	conns map[string]*Connection

	onDisconnect func(guildID string)
}

// Option configures a [Platform].
type Option func(*Platform)

// WithOnDisconnect registers fn to be called when Discord drops the bot's
// voice connection without a [Platform.Leave].
func WithOnDisconnect(fn func(guildID string)) Option {
	return func(p *Platform) { p.onDisconnect = fn }
}

// New creates a Platform for the given session.
func New(session *discordgo.Session, opts ...Option) *Platform {
	p := &Platform{
		session: session,
		conns:   make(map[string]*Connection),
	}
	p.join = func(guildID, channelID string) (voiceLink, error) {
		// mute=false (we send audio), deaf=true (we never listen).
		vc, err := p.session.ChannelVoiceJoin(guildID, channelID, false, true)
		if err != nil {
			return nil, err
		}
		return discordLink{vc: vc}, nil
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Player returns the connection of guildID, creating it on first use. Its
// signature matches the pipeline's player factory.
func (p *Platform) Player(guildID string) audio.VoicePlayer {
	return p.Connection(guildID)
}

// Connection returns the connection of guildID, creating it on first use.
func (p *Platform) Connection(guildID string) *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[guildID]
	if !ok {
		c = newConnection(guildID)
		p.conns[guildID] = c
	}
	return c
}

// JoinVoice joins channelID in guildID, or moves there when already in
// another channel of the guild. The ctx governs nothing beyond the call;
// discordgo's join has its own timeout.
func (p *Platform) JoinVoice(ctx context.Context, guildID, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := p.Connection(guildID)
	if c.Connected() && c.ChannelID() == channelID {
		return nil
	}
	l, err := p.join(guildID, channelID)
	if err != nil {
		return fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}
	c.attach(l)
	slog.Info("discord: joined voice channel", "guild_id", guildID, "channel_id", channelID)
	return nil
}

// Leave disconnects from the guild's voice channel. Queued audio is kept.
// It returns false when the bot was not connected.
func (p *Platform) Leave(guildID string) (bool, error) {
	p.mu.Lock()
	c, ok := p.conns[guildID]
	p.mu.Unlock()
	if !ok {
		return false, nil
	}
	l := c.detach()
	if l == nil {
		return false, nil
	}
	if err := l.disconnect(); err != nil {
		return true, fmt.Errorf("discord: leave voice: %w", err)
	}
	slog.Info("discord: left voice channel", "guild_id", guildID)
	return true, nil
}

// Connected reports whether the bot is in a voice channel of guildID.
func (p *Platform) Connected(guildID string) bool {
	p.mu.Lock()
	c, ok := p.conns[guildID]
	p.mu.Unlock()
	return ok && c.Connected()
}

// ChannelID returns the voice channel the bot is in for guildID, or "".
func (p *Platform) ChannelID(guildID string) string {
	p.mu.Lock()
	c, ok := p.conns[guildID]
	p.mu.Unlock()
	if !ok {
		return ""
	}
	return c.ChannelID()
}

// HandleVoiceStateUpdate detaches a guild's connection when the bot itself
// was removed from voice. botUserID is the bot's own user ID.
func (p *Platform) HandleVoiceStateUpdate(botUserID string, vsu *discordgo.VoiceStateUpdate) {
	if vsu.VoiceState == nil || vsu.UserID != botUserID || vsu.ChannelID != "" {
		return
	}
	p.mu.Lock()
	c, ok := p.conns[vsu.GuildID]
	p.mu.Unlock()
	if !ok || c.detach() == nil {
		return
	}
	slog.Warn("discord: voice connection dropped", "guild_id", vsu.GuildID)
	if p.onDisconnect != nil {
		p.onDisconnect(vsu.GuildID)
	}
}
