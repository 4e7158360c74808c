package prefs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

type userRecord struct {
	Voice    *string `json:"model,omitempty"`
	Call     *bool   `json:"call,omitempty"`
	Nickname *string `json:"nickname,omitempty"`
}

type serverRecord struct {
	AutoJoin *bool `json:"auto_join,omitempty"`
	Talking  *bool `json:"talking,omitempty"`
}

// JSONStore keeps preferences in two JSON files. The files are read once on
// open and rewritten atomically after every update.
type JSONStore struct {
	mu         sync.Mutex
	userPath   string
	serverPath string
	users      map[string]userRecord
	servers    map[string]serverRecord
}

var _ Store = (*JSONStore)(nil)

// OpenJSON loads the user and server files. Missing files start empty. A
// file that does not parse is logged and treated as empty; it is replaced on
// the next update.
func OpenJSON(userPath, serverPath string) (*JSONStore, error) {
	s := &JSONStore{userPath: userPath, serverPath: serverPath}
	var err error
	if s.users, err = readJSON[userRecord](userPath); err != nil {
		return nil, err
	}
	if s.servers, err = readJSON[serverRecord](serverPath); err != nil {
		return nil, err
	}
	return s, nil
}

func readJSON[T any](path string) (map[string]T, error) {
	out := make(map[string]T)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("prefs: read %q: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		slog.Warn("prefs: ignoring unreadable preference file", "path", path, "err", err)
		return make(map[string]T), nil
	}
	return out, nil
}

// writeJSON replaces path with the encoding of v via a temp file and rename.
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("prefs: encode %q: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prefs: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("prefs: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("prefs: write %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("prefs: write %q: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("prefs: replace %q: %w", path, err)
	}
	return nil
}

// User implements [Store].
func (s *JSONStore) User(_ context.Context, userID string) (User, error) {
	s.mu.Lock()
	r := s.users[userID]
	s.mu.Unlock()
	return User{
		Voice:    deref(r.Voice, ""),
		Call:     deref(r.Call, true),
		Nickname: deref(r.Nickname, ""),
	}, nil
}

// UpdateUser implements [Store].
func (s *JSONStore) UpdateUser(_ context.Context, userID string, u UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.users[userID]
	if u.Voice != nil {
		r.Voice = u.Voice
	}
	if u.Call != nil {
		r.Call = u.Call
	}
	if u.Nickname != nil {
		r.Nickname = u.Nickname
	}
	s.users[userID] = r
	return writeJSON(s.userPath, s.users)
}

// Server implements [Store].
func (s *JSONStore) Server(_ context.Context, guildID string) (Server, error) {
	s.mu.Lock()
	r := s.servers[guildID]
	s.mu.Unlock()
	return Server{
		AutoJoin: deref(r.AutoJoin, true),
		Talking:  deref(r.Talking, true),
	}, nil
}

// UpdateServer implements [Store].
func (s *JSONStore) UpdateServer(_ context.Context, guildID string, u ServerUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.servers[guildID]
	if u.AutoJoin != nil {
		r.AutoJoin = u.AutoJoin
	}
	if u.Talking != nil {
		r.Talking = u.Talking
	}
	s.servers[guildID] = r
	return writeJSON(s.serverPath, s.servers)
}

// Ping implements [Store]. The files are held in memory, so it always
// succeeds.
func (s *JSONStore) Ping(context.Context) error { return nil }

// Close implements [Store].
func (s *JSONStore) Close() error { return nil }
