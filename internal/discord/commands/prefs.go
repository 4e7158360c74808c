package commands

import (
	"context"
	"log/slog"
	"strings"

	"github.com/MrWong99/yomiage/internal/discord"
	"github.com/MrWong99/yomiage/internal/prefs"
)

// PrefsCommands holds the dependencies for the per-user and per-guild
// preference commands.
type PrefsCommands struct {
	store  prefs.Store
	voices Voices
	prefix string
}

// NewPrefsCommands creates a PrefsCommands.
func NewPrefsCommands(store prefs.Store, voices Voices, prefix string) *PrefsCommands {
	return &PrefsCommands{store: store, voices: voices, prefix: prefix}
}

// Register registers the set, get and voices handlers with the router.
func (pc *PrefsCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("set/voice", "set voice <モデル名>: 読み上げボイスを変更", pc.handleSetVoice)
	router.RegisterCommand("set/call", "set call <true|false>: 名前の読み上げを切り替え", pc.handleSetCall)
	router.RegisterCommand("set/nickname", "set nickname <名前>: 読み上げる名前を設定", pc.handleSetNickname)
	router.RegisterCommand("set/talking", "set talking <true|false>: サーバーの読み上げを切り替え", pc.handleSetTalking)
	router.RegisterCommand("get/voice", "get voice: 自分のボイスモデルを表示", pc.handleGetVoice)
	router.RegisterCommand("get/nickname", "get nickname: 自分のニックネームを表示", pc.handleGetNickname)
	router.RegisterCommand("voices", "voices: 利用可能なボイスモデルを一覧表示", pc.handleVoices)
}

func (pc *PrefsCommands) handleSetVoice(ctx context.Context, r *discord.Request) {
	name := r.Arg(0)
	if name == "" {
		r.Replyf(";`%sset voice` コマンドにはモデル名が必要です。", pc.prefix)
		return
	}
	if _, ok := pc.voices.Lookup(name); !ok {
		names := pc.voices.Names()
		if len(names) == 0 {
			r.Reply(";現在利用可能なボイスモデルがありません。")
			return
		}
		var b strings.Builder
		b.WriteString(";指定されたモデルが見つかりません。\n")
		if s := pc.voices.Suggest(name); len(s) > 0 {
			b.WriteString(";もしかして: `" + strings.Join(s, "`, `") + "`\n")
		}
		b.WriteString(listing(";利用可能なボイスモデル:", names))
		r.Reply(b.String())
		return
	}
	if err := pc.store.UpdateUser(ctx, r.Message.AuthorID, prefs.UserUpdate{Voice: prefs.String(name)}); err != nil {
		pc.failed(r, err)
		return
	}
	r.Replyf(";あなたのボイスモデルを `%s` に設定しました。", name)
}

func (pc *PrefsCommands) handleSetCall(ctx context.Context, r *discord.Request) {
	on, ok := pc.boolArg(r, "set call")
	if !ok {
		return
	}
	if err := pc.store.UpdateUser(ctx, r.Message.AuthorID, prefs.UserUpdate{Call: prefs.Bool(on)}); err != nil {
		pc.failed(r, err)
		return
	}
	r.Replyf(";あなたの名前の読み上げ設定を `%t` に設定しました。", on)
}

func (pc *PrefsCommands) handleSetNickname(ctx context.Context, r *discord.Request) {
	nickname := strings.Join(r.Args, " ")
	if nickname == "" {
		r.Replyf(";`%sset nickname` コマンドにはニックネームが必要です。", pc.prefix)
		return
	}
	if err := pc.store.UpdateUser(ctx, r.Message.AuthorID, prefs.UserUpdate{Nickname: prefs.String(nickname)}); err != nil {
		pc.failed(r, err)
		return
	}
	r.Replyf(";あなたのニックネームを `%s` に設定しました。", nickname)
}

func (pc *PrefsCommands) handleSetTalking(ctx context.Context, r *discord.Request) {
	on, ok := pc.boolArg(r, "set talking")
	if !ok {
		return
	}
	if err := pc.store.UpdateServer(ctx, r.Message.GuildID, prefs.ServerUpdate{Talking: prefs.Bool(on)}); err != nil {
		pc.failed(r, err)
		return
	}
	r.Replyf(";発話設定を `%t` に設定しました。", on)
}

func (pc *PrefsCommands) handleGetVoice(ctx context.Context, r *discord.Request) {
	u, err := pc.store.User(ctx, r.Message.AuthorID)
	if err != nil {
		pc.failed(r, err)
		return
	}
	r.Replyf(";あなたのボイスモデルは `%s` です。", pc.voices.Resolve(u.Voice).Name)
}

func (pc *PrefsCommands) handleGetNickname(ctx context.Context, r *discord.Request) {
	u, err := pc.store.User(ctx, r.Message.AuthorID)
	if err != nil {
		pc.failed(r, err)
		return
	}
	if u.Nickname == "" {
		r.Reply(";現在あなたのニックネームは設定されていません。")
		return
	}
	r.Replyf(";あなたのニックネームは `%s` です。", u.Nickname)
}

func (pc *PrefsCommands) handleVoices(_ context.Context, r *discord.Request) {
	names := pc.voices.Names()
	if len(names) == 0 {
		r.Reply(";現在利用可能なボイスモデルはありません。")
		return
	}
	r.Reply(listing(";利用可能なボイスモデル:", names))
}

// boolArg parses the first argument as true or false, replying with usage
// help when it is missing or invalid.
func (pc *PrefsCommands) boolArg(r *discord.Request, command string) (bool, bool) {
	arg := r.Arg(0)
	if arg == "" {
		r.Replyf(";`%s%s` コマンドには true または false が必要です。", pc.prefix, command)
		return false, false
	}
	on, ok := parseBool(arg)
	if !ok {
		r.Replyf(";`%s%s` コマンドには true または false を指定してください。", pc.prefix, command)
	}
	return on, ok
}

func (pc *PrefsCommands) failed(r *discord.Request, err error) {
	slog.Warn("commands: prefs update failed", "key", r.Key, "guild_id", r.Message.GuildID, "err", err)
	r.Replyf(";設定の保存中にエラーが発生しました: %v", err)
}
