// Package discord provides the Discord bot layer for yomiage. It owns the
// discordgo.Session lifecycle, turns gateway events into [Message] and
// [VoiceStateChange] values for an [EventHandler], and routes prefix
// commands through a [CommandRouter].
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token without the "Bot " prefix.
	Token string
}

// Bot owns the Discord gateway connection and forwards events to its
// handler.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	handler   EventHandler
	onSelf    []func(botUserID string, vsu *discordgo.VoiceStateUpdate)
	ctx       context.Context
	closeOnce sync.Once
}

// New creates a Bot and registers its gateway handlers. The gateway is not
// connected until [Bot.Run].
func New(cfg Config) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: token is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	b := &Bot{session: session, ctx: context.Background()}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onGuildCreate)
	session.AddHandler(b.onGuildDelete)
	session.AddHandler(b.onMessageCreate)
	session.AddHandler(b.onVoiceStateUpdate)
	return b, nil
}

// Session returns the underlying discordgo session.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// SetHandler sets the receiver of converted gateway events. Call it before
// [Bot.Run].
func (b *Bot) SetHandler(h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

// OnSelfVoiceState registers fn for voice state updates of the bot itself.
// The voice platform uses it to notice dropped connections.
func (b *Bot) OnSelfVoiceState(fn func(botUserID string, vsu *discordgo.VoiceStateUpdate)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onSelf = append(b.onSelf, fn)
}

// Connected reports whether the gateway session is up and has received its
// initial state.
func (b *Bot) Connected() bool {
	b.session.RLock()
	defer b.session.RUnlock()
	return b.session.DataReady
}

// Run connects to the gateway and blocks until ctx is cancelled. Event
// handlers receive ctx.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from Discord.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		slog.Info("discord bot closed")
	})
	return closeErr
}

func (b *Bot) current() (context.Context, EventHandler) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ctx, b.handler
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	slog.Info("discord: logged in", "user", r.User.Username, "user_id", r.User.ID, "guilds", len(r.Guilds))
}

func (b *Bot) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	ctx, h := b.current()
	if h != nil {
		h.HandleGuildAvailable(ctx, g.ID)
	}
}

// onGuildDelete forwards removals only. An unavailable guild is an outage
// and comes back through GUILD_CREATE.
func (b *Bot) onGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	ctx, h := b.current()
	if h != nil {
		h.HandleGuildRemoved(ctx, g.ID)
	}
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	msg, ok := messageFromEvent(s, m)
	if !ok {
		return
	}
	ctx, h := b.current()
	if h != nil {
		h.HandleMessage(ctx, msg)
	}
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.VoiceState == nil || s.State == nil || s.State.User == nil {
		return
	}
	botID := s.State.User.ID
	if vsu.UserID == botID {
		b.mu.RLock()
		hooks := b.onSelf
		b.mu.RUnlock()
		for _, fn := range hooks {
			fn(botID, vsu)
		}
		return
	}
	ctx, h := b.current()
	if h != nil {
		h.HandleVoiceState(ctx, voiceChangeFromEvent(s.State, vsu))
	}
}

// messageFromEvent resolves a gateway message against the session state.
// Direct messages report false.
func messageFromEvent(s *discordgo.Session, m *discordgo.MessageCreate) (Message, bool) {
	if m.Message == nil || m.GuildID == "" || m.Author == nil {
		return Message{}, false
	}
	msg := Message{
		GuildID:    m.GuildID,
		ChannelID:  m.ChannelID,
		AuthorID:   m.Author.ID,
		AuthorName: displayName(m.Author, m.Member),
		AuthorBot:  m.Author.Bot,
		Content:    m.Content,
	}
	if ch, err := s.State.Channel(m.ChannelID); err == nil {
		msg.ChannelName = ch.Name
	} else if ch, err := s.Channel(m.ChannelID); err == nil {
		msg.ChannelName = ch.Name
	}
	if vs, err := s.State.VoiceState(m.GuildID, m.Author.ID); err == nil {
		msg.AuthorVoiceChannelID = vs.ChannelID
	}
	return msg, true
}

// voiceChangeFromEvent describes vsu with channel names and occupancy taken
// from st, which discordgo has already updated for this event.
func voiceChangeFromEvent(st *discordgo.State, vsu *discordgo.VoiceStateUpdate) VoiceStateChange {
	c := VoiceStateChange{
		GuildID: vsu.GuildID,
		UserID:  vsu.UserID,
		After:   voiceChannel(st, vsu.GuildID, vsu.ChannelID),
	}
	if vsu.BeforeUpdate != nil {
		c.Before = voiceChannel(st, vsu.GuildID, vsu.BeforeUpdate.ChannelID)
	}

	member := vsu.Member
	if member == nil {
		member, _ = st.Member(vsu.GuildID, vsu.UserID)
	}
	if member != nil && member.User != nil {
		c.UserName = displayName(member.User, member)
		c.Bot = member.User.Bot
	}
	return c
}

func voiceChannel(st *discordgo.State, guildID, channelID string) VoiceChannel {
	if channelID == "" {
		return VoiceChannel{}
	}
	vc := VoiceChannel{ID: channelID}
	if ch, err := st.Channel(channelID); err == nil {
		vc.Name = ch.Name
	}

	guild, err := st.Guild(guildID)
	if err != nil {
		return vc
	}
	// Collect first: State.Member takes the state lock itself.
	st.RLock()
	var users []string
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID == channelID {
			users = append(users, vs.UserID)
		}
	}
	st.RUnlock()

	for _, id := range users {
		if m, err := st.Member(guildID, id); err == nil && m.User != nil && m.User.Bot {
			continue
		}
		vc.Humans++
	}
	return vc
}

// displayName picks the name a guild shows for a user.
func displayName(u *discordgo.User, m *discordgo.Member) string {
	if m != nil && m.Nick != "" {
		return m.Nick
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
