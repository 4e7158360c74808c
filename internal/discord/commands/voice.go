package commands

import (
	"context"
	"log/slog"

	"github.com/MrWong99/yomiage/internal/discord"
)

// VoiceCommands holds the dependencies for the join and leave commands.
type VoiceCommands struct {
	sessions Sessions
	prefix   string
}

// NewVoiceCommands creates a VoiceCommands.
func NewVoiceCommands(sessions Sessions, prefix string) *VoiceCommands {
	return &VoiceCommands{sessions: sessions, prefix: prefix}
}

// Register registers the join and leave commands with the router.
func (vc *VoiceCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("join", "join: 自分のいるボイスチャンネルに参加", vc.handleJoin)
	router.RegisterCommand("leave", "leave: ボイスチャンネルから退出", vc.handleLeave)
}

// handleJoin moves the bot into the caller's voice channel and turns
// auto-join back on.
func (vc *VoiceCommands) handleJoin(ctx context.Context, r *discord.Request) {
	guildID := r.Message.GuildID
	channelID := r.Message.AuthorVoiceChannelID
	if channelID == "" {
		r.Reply("ボイスチャンネルに参加してからコマンドを実行してください。")
		return
	}

	if err := vc.sessions.SetAutoJoin(ctx, guildID, true); err != nil {
		slog.Warn("commands: failed to enable auto join", "guild_id", guildID, "err", err)
	}

	current := vc.sessions.ChannelID(guildID)
	if current == channelID {
		r.Replyf("既にボイスチャンネル <#%s> に参加しています。", channelID)
		return
	}
	if err := vc.sessions.Join(ctx, guildID, channelID); err != nil {
		r.Replyf("ボイスチャンネルへの参加に失敗しました: %v", err)
		return
	}
	if current != "" {
		r.Replyf("ボイスチャンネル <#%s> に移動しました。", channelID)
		return
	}
	r.Replyf("ボイスチャンネル <#%s> に参加しました。", channelID)
}

// handleLeave disconnects and disables auto-join until the next join.
func (vc *VoiceCommands) handleLeave(ctx context.Context, r *discord.Request) {
	guildID := r.Message.GuildID
	if err := vc.sessions.SetAutoJoin(ctx, guildID, false); err != nil {
		slog.Warn("commands: failed to disable auto join", "guild_id", guildID, "err", err)
	}
	left, err := vc.sessions.Leave(ctx, guildID)
	switch {
	case err != nil:
		r.Replyf("ボイスチャンネルからの退出に失敗しました: %v", err)
	case left:
		r.Reply("ボイスチャンネルから退出しました。")
	default:
		r.Reply("ボイスチャンネルに参加していません。")
	}
}
