package pipeline

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/yomiage/internal/gate"
	"github.com/MrWong99/yomiage/internal/language"
	"github.com/MrWong99/yomiage/internal/observe"
	"github.com/MrWong99/yomiage/internal/segment"
	"github.com/MrWong99/yomiage/pkg/audio"
	"github.com/MrWong99/yomiage/pkg/provider/tts"
)

// DefaultLanguage is spoken for placeholders and the omission marker.
const DefaultLanguage = tts.LanguageJP

// PlayerFactory returns the voice player of a session. It is called once,
// when the session's pipeline is created, so the returned player must track
// connection changes of the session itself.
type PlayerFactory func(sessionID string) audio.VoicePlayer

// Config holds the collaborators shared by every pipeline.
type Config struct {
	// Synthesizer produces audio for every session. Required.
	Synthesizer tts.Synthesizer

	// Gate bounds concurrent synthesis. Defaults to a gate of capacity 1.
	Gate *gate.Gate

	// Selector chooses the language of each segment. Defaults to a selector
	// without a dictionary.
	Selector *language.Selector

	// Players supplies each session's voice player. Required.
	Players PlayerFactory

	// Metrics receives pipeline metrics. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// StatsWindow is the number of latency samples kept per session.
	StatsWindow int
}

// Registry maps session identifiers to their pipelines. It is safe for
// concurrent use.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Pipeline
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Gate == nil {
		cfg.Gate = gate.New(1)
	}
	if cfg.Selector == nil {
		cfg.Selector = language.New(nil)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Registry{cfg: cfg, sessions: make(map[string]*Pipeline)}
}

// Ensure returns the pipeline of sessionID, creating and starting it on first
// use.
func (r *Registry) Ensure(sessionID string) *Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.sessions[sessionID]; ok {
		return p
	}
	var player audio.VoicePlayer
	if r.cfg.Players != nil {
		player = r.cfg.Players(sessionID)
	}
	p := newPipeline(sessionID, &r.cfg, player)
	p.start()
	r.sessions[sessionID] = p
	r.cfg.Metrics.ActiveSessions.Add(context.Background(), 1)
	slog.Debug("session pipeline started", "guild_id", sessionID)
	return p
}

// Get returns the pipeline of sessionID without creating one.
func (r *Registry) Get(sessionID string) (*Pipeline, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.sessions[sessionID]
	return p, ok
}

// Remove stops the pipeline of sessionID, waits for its workers to exit and
// discards queued work. It reports whether a pipeline existed.
func (r *Registry) Remove(sessionID string) bool {
	r.mu.Lock()
	p, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	if !ok {
		return false
	}
	p.stop()
	r.cfg.Metrics.ActiveSessions.Add(context.Background(), -1)
	slog.Debug("session pipeline stopped", "guild_id", sessionID)
	return true
}

// Close removes every session.
func (r *Registry) Close() {
	for _, id := range r.Sessions() {
		r.Remove(id)
	}
}

// Sessions returns the identifiers of all live sessions, sorted.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// Stats returns the statistics of sessionID.
func (r *Registry) Stats(sessionID string) (SessionStats, bool) {
	p, ok := r.Get(sessionID)
	if !ok {
		return SessionStats{}, false
	}
	return p.Stats(), true
}

// Submit splits text into segments, resolves the language of each and
// enqueues them on the session's pipeline. It never blocks on synthesis or
// playback. Text that is blank after trimming is dropped.
//
// A non-empty hint pins the language of every segment. Text containing a
// URL is spoken as a single placeholder in [DefaultLanguage]. When the
// text had to be truncated an omission marker is spoken last.
func (r *Registry) Submit(ctx context.Context, sessionID, text string, hint tts.Language, voice tts.VoiceProfile) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	p := r.Ensure(sessionID)

	if segment.ContainsURL(text) {
		p.Enqueue(SpeechRequest{Text: segment.Placeholder, Language: DefaultLanguage, Voice: voice})
		return
	}

	segs, truncated := segment.Split(text)
	for _, s := range segs {
		p.Enqueue(SpeechRequest{
			Text:     s,
			Language: r.cfg.Selector.Resolve(ctx, s, hint),
			Voice:    voice,
		})
	}
	if truncated {
		p.Enqueue(SpeechRequest{Text: segment.OmissionMarker, Language: DefaultLanguage, Voice: voice})
	}
}

// Skip discards pending speech of sessionID and interrupts the current
// playback. It returns how many queued items were discarded.
func (r *Registry) Skip(sessionID string) int {
	p, ok := r.Get(sessionID)
	if !ok {
		return 0
	}
	return p.Skip()
}
