package discord

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Request is one parsed prefix command.
type Request struct {
	Message Message

	// Key is the matched command key, e.g. "set/voice".
	Key string

	// Args are the whitespace-separated words after the key.
	Args []string

	sender Sender
}

// Arg returns the i-th argument, or "".
func (r *Request) Arg(i int) string {
	if i < len(r.Args) {
		return r.Args[i]
	}
	return ""
}

// Reply posts content to the channel the command came from.
func (r *Request) Reply(content string) {
	Send(r.sender, r.Message.ChannelID, content)
}

// Replyf formats and posts a reply.
func (r *Request) Replyf(format string, args ...any) {
	r.Reply(fmt.Sprintf(format, args...))
}

// HandlerFunc is the signature for prefix command handlers.
type HandlerFunc func(ctx context.Context, r *Request)

// commandEntry stores a handler along with its usage line.
type commandEntry struct {
	usage   string
	handler HandlerFunc
}

// CommandRouter dispatches prefix commands ("!set voice tsumugi") to
// registered handlers.
type CommandRouter struct {
	mu       sync.RWMutex
	sender   Sender
	commands map[string]commandEntry // "command" or "command/subcommand" → entry
}

// NewCommandRouter creates an empty router that replies through sender.
func NewCommandRouter(sender Sender) *CommandRouter {
	return &CommandRouter{
		sender:   sender,
		commands: make(map[string]commandEntry),
	}
}

// RegisterCommand registers a handler under key. The key format is
// "command" or "command/subcommand" (e.g., "set/voice"); keys are matched
// case-insensitively. usage is shown by "help".
func (r *CommandRouter) RegisterCommand(key, usage string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[strings.ToLower(key)] = commandEntry{usage: usage, handler: handler}
}

// Usage returns the usage lines of all commands, sorted by key.
func (r *CommandRouter) Usage() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.commands))
	for k := range r.commands {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		if u := r.commands[k].usage; u != "" {
			lines = append(lines, u)
		}
	}
	return lines
}

// subcommands returns the sorted subcommand names registered under name.
func (r *CommandRouter) subcommands(name string) []string {
	var subs []string
	for k := range r.commands {
		if sub, ok := strings.CutPrefix(k, name+"/"); ok {
			subs = append(subs, sub)
		}
	}
	slices.Sort(subs)
	return subs
}

// Handle dispatches commandString, the message content without its prefix.
func (r *CommandRouter) Handle(ctx context.Context, m Message, commandString string) {
	fields := strings.Fields(commandString)
	if len(fields) == 0 {
		return
	}
	name := strings.ToLower(fields[0])
	req := &Request{Message: m, sender: r.sender}

	r.mu.RLock()
	var (
		entry commandEntry
		ok    bool
	)
	if len(fields) > 1 {
		req.Key = name + "/" + strings.ToLower(fields[1])
		entry, ok = r.commands[req.Key]
		req.Args = fields[2:]
	}
	if !ok {
		req.Key = name
		entry, ok = r.commands[name]
		req.Args = fields[1:]
	}
	subs := r.subcommands(name)
	r.mu.RUnlock()

	switch {
	case ok:
		slog.Debug("discord: command", "key", req.Key, "guild_id", m.GuildID, "user_id", m.AuthorID)
		entry.handler(ctx, req)
	case len(subs) > 0 && len(fields) == 1:
		req.Replyf(";`%s` コマンドにはターゲットを指定してください (%s)。", name, strings.Join(subs, ", "))
	case len(subs) > 0:
		req.Replyf(";不明なターゲット `%s` です。", fields[1])
	default:
		slog.Debug("discord: unknown command", "name", name)
		req.Replyf(";不明なコマンド `%s` です。", name)
	}
}
