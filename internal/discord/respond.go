package discord

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

// MaxMessageLength is Discord's limit for one message, in characters.
const MaxMessageLength = 2000

// Sender posts messages to a text channel. *discordgo.Session satisfies it.
type Sender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Send posts content to channelID, split into as many messages as the
// length limit requires. Errors are logged.
func Send(s Sender, channelID, content string) {
	for _, part := range SplitMessage(content) {
		if _, err := s.ChannelMessageSend(channelID, part); err != nil {
			slog.Warn("discord: failed to send message", "channel_id", channelID, "err", err)
			return
		}
	}
}

// SplitMessage breaks content into chunks of at most [MaxMessageLength]
// runes. Chunks end at line breaks where possible; a single line longer than
// the limit is cut hard.
func SplitMessage(content string) []string {
	if utf8.RuneCountInString(content) <= MaxMessageLength {
		if content == "" {
			return nil
		}
		return []string{content}
	}

	var (
		parts []string
		cur   strings.Builder
		n     int
	)
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
			n = 0
		}
	}
	for line := range strings.SplitAfterSeq(content, "\n") {
		ln := utf8.RuneCountInString(line)
		if n+ln > MaxMessageLength {
			flush()
		}
		for ln > MaxMessageLength {
			head, tail := splitRunes(line, MaxMessageLength)
			parts = append(parts, head)
			line, ln = tail, ln-MaxMessageLength
		}
		cur.WriteString(line)
		n += ln
	}
	flush()
	return parts
}

func splitRunes(s string, n int) (string, string) {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], s[pos:]
		}
		i++
	}
	return s, ""
}
