package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the preference tables. NULL columns read as defaults.
const Schema = `
CREATE TABLE IF NOT EXISTS yomiage_user_prefs (
    user_id    TEXT        PRIMARY KEY,
    model      TEXT,
    call       BOOLEAN,
    nickname   TEXT,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS yomiage_server_prefs (
    guild_id   TEXT        PRIMARY KEY,
    auto_join  BOOLEAN,
    talking    BOOLEAN,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore keeps preferences in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects to dsn, verifies the connection and runs [Migrate].
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("prefs: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("prefs: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("prefs: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate applies [Schema]. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("prefs: migrate: %w", err)
	}
	return nil
}

// User implements [Store].
func (s *PostgresStore) User(ctx context.Context, userID string) (User, error) {
	const q = `SELECT model, call, nickname FROM yomiage_user_prefs WHERE user_id = $1`

	var (
		voice, nickname *string
		call            *bool
	)
	err := s.pool.QueryRow(ctx, q, userID).Scan(&voice, &call, &nickname)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("prefs: get user: %w", err)
	}
	return User{
		Voice:    deref(voice, ""),
		Call:     deref(call, true),
		Nickname: deref(nickname, ""),
	}, nil
}

// UpdateUser implements [Store].
func (s *PostgresStore) UpdateUser(ctx context.Context, userID string, u UserUpdate) error {
	const q = `
		INSERT INTO yomiage_user_prefs (user_id, model, call, nickname)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
		    model      = COALESCE(EXCLUDED.model,    yomiage_user_prefs.model),
		    call       = COALESCE(EXCLUDED.call,     yomiage_user_prefs.call),
		    nickname   = COALESCE(EXCLUDED.nickname, yomiage_user_prefs.nickname),
		    updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, userID, u.Voice, u.Call, u.Nickname); err != nil {
		return fmt.Errorf("prefs: update user: %w", err)
	}
	return nil
}

// Server implements [Store].
func (s *PostgresStore) Server(ctx context.Context, guildID string) (Server, error) {
	const q = `SELECT auto_join, talking FROM yomiage_server_prefs WHERE guild_id = $1`

	var autoJoin, talking *bool
	err := s.pool.QueryRow(ctx, q, guildID).Scan(&autoJoin, &talking)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Server{}, fmt.Errorf("prefs: get server: %w", err)
	}
	return Server{
		AutoJoin: deref(autoJoin, true),
		Talking:  deref(talking, true),
	}, nil
}

// UpdateServer implements [Store].
func (s *PostgresStore) UpdateServer(ctx context.Context, guildID string, u ServerUpdate) error {
	const q = `
		INSERT INTO yomiage_server_prefs (guild_id, auto_join, talking)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id) DO UPDATE SET
		    auto_join  = COALESCE(EXCLUDED.auto_join, yomiage_server_prefs.auto_join),
		    talking    = COALESCE(EXCLUDED.talking,   yomiage_server_prefs.talking),
		    updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, guildID, u.AutoJoin, u.Talking); err != nil {
		return fmt.Errorf("prefs: update server: %w", err)
	}
	return nil
}

// Ping implements [Store].
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements [Store].
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
