// Package prefs persists per-user and per-guild preferences.
//
// Two backends exist: a pair of JSON files in the layout the bot has always
// used ({"<id>": {...}}), and PostgreSQL tables. Unset fields read as their
// defaults, so a user or guild with no record behaves like a fresh one.
package prefs

import (
	"context"
	"fmt"

	"github.com/MrWong99/yomiage/internal/config"
)

// User holds the preferences of one Discord user.
type User struct {
	// Voice is the selected voice name. Empty means the catalog default.
	Voice string

	// Call reports whether the user's name is read before each message.
	// Default: true.
	Call bool

	// Nickname replaces the display name when the name is read. Empty means
	// the display name is used.
	Nickname string
}

// Server holds the preferences of one guild.
type Server struct {
	// AutoJoin lets the bot follow users into the auto-join channel.
	// Default: true.
	AutoJoin bool

	// Talking enables reading messages aloud. Default: true.
	Talking bool
}

// UserUpdate is a partial update. Nil fields are left unchanged.
type UserUpdate struct {
	Voice    *string
	Call     *bool
	Nickname *string
}

// ServerUpdate is a partial update. Nil fields are left unchanged.
type ServerUpdate struct {
	AutoJoin *bool
	Talking  *bool
}

// Store reads and writes preferences. Implementations are safe for
// concurrent use.
type Store interface {
	User(ctx context.Context, userID string) (User, error)
	UpdateUser(ctx context.Context, userID string, u UserUpdate) error
	Server(ctx context.Context, guildID string) (Server, error)
	UpdateServer(ctx context.Context, guildID string, u ServerUpdate) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Bool returns a pointer to b for use in updates.
func Bool(b bool) *bool { return &b }

// String returns a pointer to s for use in updates.
func String(s string) *string { return &s }

// Open creates the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.PrefsConfig) (Store, error) {
	switch cfg.Backend {
	case config.PrefsJSON, "":
		return OpenJSON(cfg.UserPath, cfg.ServerPath)
	case config.PrefsPostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("prefs: unknown backend %q", cfg.Backend)
	}
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
