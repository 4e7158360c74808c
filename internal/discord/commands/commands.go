// Package commands implements the prefix commands of yomiage.
//
// Each command group is a struct holding its dependencies with a Register
// method that adds its handlers to a [discord.CommandRouter]. [RegisterAll]
// wires every group at once. Replies start with the ignore prefix ";" so the
// bot never reads its own answers aloud.
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/yomiage/internal/dictionary"
	"github.com/MrWong99/yomiage/internal/discord"
	"github.com/MrWong99/yomiage/internal/pipeline"
	"github.com/MrWong99/yomiage/internal/prefs"
	"github.com/MrWong99/yomiage/pkg/provider/tts"
)

// Sessions controls the bot's voice channel presence.
// *app.SessionManager implements it.
type Sessions interface {
	Join(ctx context.Context, guildID, channelID string) error
	Leave(ctx context.Context, guildID string) (bool, error)
	ChannelID(guildID string) string
	SetAutoJoin(ctx context.Context, guildID string, on bool) error
}

// Voices is the selectable voice catalogue. *voice.Catalog implements it.
type Voices interface {
	Lookup(name string) (tts.VoiceProfile, bool)
	Resolve(name string) tts.VoiceProfile
	Names() []string
	Suggest(name string) []string
}

// Pipelines exposes the per-guild speech queues.
// *pipeline.Registry implements it.
type Pipelines interface {
	Stats(sessionID string) (pipeline.SessionStats, bool)
	Skip(sessionID string) int
}

// Deps holds the dependencies of all command groups.
type Deps struct {
	// Prefix is the command prefix shown in replies, e.g. "!".
	Prefix string

	Sessions  Sessions
	Prefs     prefs.Store
	Voices    Voices
	Pipelines Pipelines

	// Dictionary may be nil, which disables the dictionary commands.
	Dictionary *dictionary.Dictionary
}

// RegisterAll registers every command group with router.
func RegisterAll(router *discord.CommandRouter, deps Deps) {
	NewVoiceCommands(deps.Sessions, deps.Prefix).Register(router)
	NewPrefsCommands(deps.Prefs, deps.Voices, deps.Prefix).Register(router)
	NewDictCommands(deps.Dictionary, deps.Prefix).Register(router)
	NewQueueCommands(deps.Pipelines).Register(router)
	NewHelpCommand(router, deps.Prefix).Register(router)
}

// parseBool accepts "true" and "false" in any case.
func parseBool(s string) (value, ok bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// listing renders a header followed by one indented line per item.
func listing(header string, items []string) string {
	var b strings.Builder
	b.WriteString(header)
	for _, it := range items {
		fmt.Fprintf(&b, "\n;  `%s`", it)
	}
	return b.String()
}
