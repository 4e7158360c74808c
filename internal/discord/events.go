package discord

import "context"

// Message is a guild text message, resolved against the gateway state.
type Message struct {
	GuildID     string
	ChannelID   string
	ChannelName string

	AuthorID   string
	AuthorName string // server nickname, global name or username
	AuthorBot  bool

	// AuthorVoiceChannelID is the voice channel the author is in, or "".
	AuthorVoiceChannelID string

	Content string
}

// VoiceChannel describes one side of a voice state change.
type VoiceChannel struct {
	// ID is empty when the user was not in voice on this side.
	ID   string
	Name string

	// Humans is the number of non-bot users in the channel after the
	// update was applied.
	Humans int
}

// VoiceStateChange is a user joining, leaving or moving between voice
// channels. Updates of the bot's own voice state are not reported.
type VoiceStateChange struct {
	GuildID  string
	UserID   string
	UserName string
	Bot      bool

	Before VoiceChannel
	After  VoiceChannel
}

// Joined reports whether the user entered channelID with this change.
func (c VoiceStateChange) Joined(channelID string) bool {
	return channelID != "" && c.After.ID == channelID && c.Before.ID != channelID
}

// Left reports whether the user left channelID with this change.
func (c VoiceStateChange) Left(channelID string) bool {
	return channelID != "" && c.Before.ID == channelID && c.After.ID != channelID
}

// EventHandler receives the gateway events the bot reacts to.
type EventHandler interface {
	HandleGuildAvailable(ctx context.Context, guildID string)
	HandleMessage(ctx context.Context, m Message)
	HandleVoiceState(ctx context.Context, c VoiceStateChange)

	// HandleGuildRemoved is called when the bot was kicked from or left a
	// guild. Guild outages are not reported.
	HandleGuildRemoved(ctx context.Context, guildID string)
}
