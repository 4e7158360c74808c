package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/yomiage/internal/dictionary"
	"github.com/MrWong99/yomiage/internal/discord"
)

// DictCommands holds the dependencies for the pronunciation dictionary
// commands. A nil dictionary makes both commands reply that it is disabled.
type DictCommands struct {
	dict   *dictionary.Dictionary
	prefix string
}

// NewDictCommands creates a DictCommands.
func NewDictCommands(dict *dictionary.Dictionary, prefix string) *DictCommands {
	return &DictCommands{dict: dict, prefix: prefix}
}

// Register registers set dict and get dict with the router.
func (dc *DictCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("set/dict", "set dict <単語> <ヨミ>: 辞書に読みを登録", dc.handleSet)
	router.RegisterCommand("get/dict", "get dict: 辞書の内容を表示", dc.handleGet)
}

func (dc *DictCommands) handleSet(_ context.Context, r *discord.Request) {
	if dc.dict == nil {
		r.Reply(";辞書は設定されていません。")
		return
	}
	word, reading := r.Arg(0), strings.Join(r.Args[min(1, len(r.Args)):], " ")
	if word == "" || reading == "" {
		r.Replyf(";キーとバリューを両方指定してください。(例: %sset dict 単語 ヨミ)", dc.prefix)
		return
	}
	e, err := dc.dict.Add(word, reading)
	switch {
	case errors.Is(err, dictionary.ErrInvalidReading):
		r.Reply(";バリューは全角カタカナで入力してください。")
	case err != nil:
		slog.Error("commands: dictionary update failed", "path", dc.dict.Path(), "err", err)
		r.Replyf(";辞書への追加中にエラーが発生しました: %v", err)
	default:
		slog.Info("dictionary entry added", "surface", e.Surface, "reading", e.Reading, "user_id", r.Message.AuthorID)
		r.Replyf(";辞書に `%s`: `%s` を追加しました。", e.Surface, e.Reading)
	}
}

func (dc *DictCommands) handleGet(_ context.Context, r *discord.Request) {
	if dc.dict == nil {
		r.Reply(";辞書は設定されていません。")
		return
	}
	entries := dc.dict.Entries()
	if len(entries) == 0 {
		r.Reply(";辞書は空です。")
		return
	}
	var b strings.Builder
	b.WriteString(";現在の辞書内容:")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n;  `%s`: `%s`", e.Surface, e.Reading)
	}
	r.Reply(b.String())
}
