// Package pipeline turns submitted text into ordered speech, one pipeline
// per voice session.
//
// Every session owns two FIFO queues and two goroutines. The generator pops
// [SpeechRequest] values from the generation queue, synthesises them through
// the process-wide [gate.Gate] and pushes the audio onto the playback queue.
// The player pops audio units and hands them to the session's
// [audio.VoicePlayer], waiting for each to finish before starting the next.
// Synthesis of one session therefore never blocks playback of another, and
// audio within a session always plays in submission order.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/yomiage/internal/gate"
	"github.com/MrWong99/yomiage/internal/observe"
	"github.com/MrWong99/yomiage/pkg/audio"
	"github.com/MrWong99/yomiage/pkg/provider/tts"
)

// SpeechRequest is one segment waiting to be synthesised.
type SpeechRequest struct {
	Text     string
	Language tts.Language
	Voice    tts.VoiceProfile
}

// Pipeline is the generator and player pair of one session. Obtain one
// through [Registry.Ensure]; the zero value is not usable.
type Pipeline struct {
	id      string
	synth   tts.Synthesizer
	gate    *gate.Gate
	player  audio.VoicePlayer
	metrics *observe.Metrics
	stats   *Stats
	log     *slog.Logger

	genQ  *Queue[SpeechRequest]
	playQ *Queue[*audio.Unit]

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	skipActive context.CancelFunc
}

func newPipeline(id string, cfg *Config, player audio.VoicePlayer) *Pipeline {
	return &Pipeline{
		id:      id,
		synth:   cfg.Synthesizer,
		gate:    cfg.Gate,
		player:  player,
		metrics: cfg.Metrics,
		stats:   NewStats(cfg.StatsWindow),
		log:     slog.With("guild_id", id),
		genQ:    NewQueue[SpeechRequest](),
		playQ:   NewQueue[*audio.Unit](),
	}
}

// start launches the generator and the player. It is called once by the
// registry.
func (p *Pipeline) start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		p.runGenerator(ctx)
	}()
	go func() {
		defer p.wg.Done()
		p.runPlayer(ctx)
	}()
}

// stop cancels both workers, waits for them to exit and then releases every
// unit still queued.
func (p *Pipeline) stop() {
	p.cancel()
	p.wg.Wait()
	p.drain()
}

// ID returns the session identifier.
func (p *Pipeline) ID() string { return p.id }

// Enqueue appends req to the generation queue.
func (p *Pipeline) Enqueue(req SpeechRequest) {
	p.genQ.Push(req)
	p.metrics.AddQueueDepth(context.Background(), observe.QueueGeneration, 1)
}

// Skip discards everything waiting in both queues and interrupts the unit
// that is currently playing. It returns the number of discarded items,
// counting an interrupted unit. The workers keep running.
func (p *Pipeline) Skip() int {
	n := p.drain()
	p.mu.Lock()
	if p.skipActive != nil {
		p.skipActive()
		p.skipActive = nil
		n++
	}
	p.mu.Unlock()
	return n
}

// drain empties both queues, releasing audio units, and returns how many
// items were removed.
func (p *Pipeline) drain() int {
	reqs := p.genQ.Drain()
	units := p.playQ.Drain()
	for _, u := range units {
		u.Release()
	}
	ctx := context.Background()
	p.metrics.AddQueueDepth(ctx, observe.QueueGeneration, -int64(len(reqs)))
	p.metrics.AddQueueDepth(ctx, observe.QueuePlayback, -int64(len(units)))
	return len(reqs) + len(units)
}

// SessionStats describes a session for the stats command.
type SessionStats struct {
	ID      string
	Pending int // requests waiting for synthesis
	Ready   int // audio units waiting for playback
	Playing bool
	StatsSnapshot
}

// Stats returns queue depths and latency percentiles.
func (p *Pipeline) Stats() SessionStats {
	return SessionStats{
		ID:            p.id,
		Pending:       p.genQ.Len(),
		Ready:         p.playQ.Len(),
		Playing:       p.player != nil && p.player.Playing(),
		StatsSnapshot: p.stats.Snapshot(),
	}
}

func (p *Pipeline) runGenerator(ctx context.Context) {
	for {
		req, err := p.genQ.Pop(ctx)
		if err != nil {
			return
		}
		p.metrics.AddQueueDepth(ctx, observe.QueueGeneration, -1)

		u, err := p.synthesize(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.stats.IncrFailed()
			p.log.Warn("synthesis failed", "voice", req.Voice.Name, "text", req.Text, "err", err)
			continue
		}
		if u == nil {
			p.log.Debug("synthesis returned no audio", "voice", req.Voice.Name, "text", req.Text)
			continue
		}
		p.playQ.Push(u)
		p.metrics.AddQueueDepth(ctx, observe.QueuePlayback, 1)
	}
}

// synthesize runs req through the gate and converts the result to a
// playback unit. A nil unit with a nil error means the backend returned no
// samples.
func (p *Pipeline) synthesize(ctx context.Context, req SpeechRequest) (*audio.Unit, error) {
	ctx, span := observe.StartSpan(ctx, "tts.synthesize", observe.SessionAttrs(p.id, req.Voice.Name))
	start := time.Now()

	var res *tts.Result
	err := p.gate.Do(ctx, func(ctx context.Context) error {
		p.metrics.SynthesisInFlight.Add(ctx, 1)
		defer p.metrics.SynthesisInFlight.Add(context.Background(), -1)

		var err error
		res, err = p.synth.Synthesize(ctx, tts.Request{
			Text:     req.Text,
			Language: req.Language,
			Voice:    req.Voice,
		})
		return err
	})
	elapsed := time.Since(start)

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		span.End()
		return nil, err
	}
	p.metrics.RecordSynthesis(ctx, req.Voice.Name, elapsed, err)
	observe.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Len() == 0 {
		return nil, nil
	}
	p.stats.RecordSynthesis(elapsed)

	u := audio.NewUnit(res.Bytes(), res.SampleRate, res.NumChannels(), nil)
	u.Text = req.Text
	return u, nil
}

func (p *Pipeline) runPlayer(ctx context.Context) {
	for {
		var (
			playCtx context.Context
			cancel  context.CancelFunc
		)
		// The unit becomes skippable before it leaves the queue lock, so a
		// Skip racing with this pop either drains it or interrupts it.
		u, err := p.playQ.PopFunc(ctx, func(*audio.Unit) {
			playCtx, cancel = context.WithCancel(ctx)
			p.mu.Lock()
			p.skipActive = cancel
			p.mu.Unlock()
		})
		if err != nil {
			return
		}
		p.metrics.AddQueueDepth(ctx, observe.QueuePlayback, -1)
		p.play(ctx, playCtx, u)

		p.mu.Lock()
		p.skipActive = nil
		p.mu.Unlock()
		cancel()
	}
}

// play hands u to the voice player and releases it on every path. playCtx
// is cancelled by [Pipeline.Skip].
func (p *Pipeline) play(ctx, playCtx context.Context, u *audio.Unit) {
	defer u.Release()

	if playCtx.Err() != nil {
		p.log.Debug("playback skipped", "text", u.Text)
		return
	}
	if p.player == nil || !p.player.Connected() {
		p.stats.IncrDropped()
		p.metrics.PlaybackDropped.Add(ctx, 1)
		p.log.Debug("no voice connection, dropping audio", "text", u.Text)
		return
	}

	start := time.Now()
	err := p.player.Play(playCtx, u)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		p.stats.RecordPlayback(elapsed)
		p.metrics.PlaybackDuration.Record(ctx, elapsed.Seconds())
	case ctx.Err() != nil:
		// Session teardown.
	case playCtx.Err() != nil:
		p.log.Debug("playback skipped", "text", u.Text)
	default:
		p.stats.IncrDropped()
		p.metrics.PlaybackDropped.Add(ctx, 1)
		p.log.Warn("playback failed", "text", u.Text, "err", err)
	}
}
