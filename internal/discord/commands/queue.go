package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/yomiage/internal/discord"
	"github.com/MrWong99/yomiage/internal/pipeline"
)

// QueueCommands holds the dependencies for stats and skip.
type QueueCommands struct {
	pipelines Pipelines
}

// NewQueueCommands creates a QueueCommands.
func NewQueueCommands(pipelines Pipelines) *QueueCommands {
	return &QueueCommands{pipelines: pipelines}
}

// Register registers stats and skip with the router.
func (qc *QueueCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("stats", "stats: 読み上げキューの状況を表示", qc.handleStats)
	router.RegisterCommand("skip", "skip: 待機中の読み上げをすべて破棄", qc.handleSkip)
}

func (qc *QueueCommands) handleStats(_ context.Context, r *discord.Request) {
	st, ok := qc.pipelines.Stats(r.Message.GuildID)
	if !ok {
		r.Reply(";このサーバーの読み上げキューはまだありません。")
		return
	}
	r.Reply(formatStats(st))
}

func (qc *QueueCommands) handleSkip(_ context.Context, r *discord.Request) {
	n := qc.pipelines.Skip(r.Message.GuildID)
	if n == 0 {
		r.Reply(";スキップする読み上げはありません。")
		return
	}
	r.Replyf(";%d 件の読み上げをスキップしました。", n)
}

func formatStats(st pipeline.SessionStats) string {
	playing := "いいえ"
	if st.Playing {
		playing = "はい"
	}
	var b strings.Builder
	b.WriteString(";読み上げ状況:\n")
	fmt.Fprintf(&b, ";  合成待ち: %d 件 / 再生待ち: %d 件 / 再生中: %s\n", st.Pending, st.Ready, playing)
	fmt.Fprintf(&b, ";  合成時間: p50 %s / p95 %s\n", ms(st.Synthesis.P50), ms(st.Synthesis.P95))
	fmt.Fprintf(&b, ";  再生時間: p50 %s / p95 %s\n", ms(st.Playback.P50), ms(st.Playback.P95))
	fmt.Fprintf(&b, ";  読み上げ済み: %d / 失敗: %d / 破棄: %d", st.Spoken, st.Failed, st.Dropped)
	return b.String()
}

func ms(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
