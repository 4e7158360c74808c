package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/yomiage/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.VoicePlayer = (*Connection)(nil)

// voiceLink is the part of a discordgo voice connection the player needs.
type voiceLink interface {
	ready() bool
	send() chan<- []byte
	speaking(b bool) error
	channelID() string
	disconnect() error
}

type discordLink struct {
	vc *discordgo.VoiceConnection
}

func (l discordLink) ready() bool {
	l.vc.RLock()
	defer l.vc.RUnlock()
	return l.vc.Ready
}

func (l discordLink) send() chan<- []byte   { return l.vc.OpusSend }
func (l discordLink) speaking(b bool) error { return l.vc.Speaking(b) }
func (l discordLink) disconnect() error     { return l.vc.Disconnect() }
func (l discordLink) channelID() string {
	l.vc.RLock()
	defer l.vc.RUnlock()
	return l.vc.ChannelID
}

// Connection is the voice output of one guild. It outlives individual voice
// connections: [Platform] attaches a link when the bot joins a channel and
// detaches it on leave, and queued audio simply waits in between.
//
// Connection is safe for concurrent use. Play calls are serialised.
type Connection struct {
	guildID string

	mu   sync.RWMutex
	link voiceLink
	// done is closed when link is detached or replaced. discordgo never
	// closes OpusSend, so a send loop selects on done instead.
	done chan struct{}

	play    sync.Mutex
	playing atomic.Bool
	enc     *opusEncoder
}

func newConnection(guildID string) *Connection {
	return &Connection{guildID: guildID}
}

// GuildID returns the guild this connection plays into.
func (c *Connection) GuildID() string { return c.guildID }

func (c *Connection) attach(l voiceLink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		close(c.done)
	}
	c.link = l
	c.done = make(chan struct{})
}

func (c *Connection) detach() voiceLink {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.link
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	c.link = nil
	return l
}

func (c *Connection) current() voiceLink {
	l, _ := c.currentWithDone()
	return l
}

func (c *Connection) currentWithDone() (voiceLink, <-chan struct{}) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.link, c.done
}

// ChannelID returns the voice channel currently joined, or "".
func (c *Connection) ChannelID() string {
	if l := c.current(); l != nil {
		return l.channelID()
	}
	return ""
}

// Connected reports whether a ready voice connection is attached.
func (c *Connection) Connected() bool {
	l := c.current()
	return l != nil && l.ready()
}

// Playing reports whether a unit is being sent right now.
func (c *Connection) Playing() bool {
	return c.playing.Load()
}

// Play converts u to 48 kHz stereo, encodes it into 20 ms Opus frames and
// sends them. It returns after the last frame was handed to the voice
// connection. Sending is paced by discordgo, so Play takes roughly as long
// as the audio lasts. When the link is detached or replaced mid-play, Play
// stops and returns [audio.ErrNotConnected].
func (c *Connection) Play(ctx context.Context, u *audio.Unit) error {
	c.play.Lock()
	defer c.play.Unlock()

	l, done := c.currentWithDone()
	if l == nil || !l.ready() {
		return audio.ErrNotConnected
	}
	if c.enc == nil {
		enc, err := newOpusEncoder()
		if err != nil {
			return err
		}
		c.enc = enc
	}

	pcm := audio.Convert(u.Samples, u.Format(), audio.Format{SampleRate: opusSampleRate, Channels: opusChannels})
	if len(pcm) == 0 {
		return nil
	}

	c.playing.Store(true)
	defer c.playing.Store(false)
	c.setSpeaking(l, true)
	defer c.setSpeaking(l, false)

	out := l.send()
	for i, frame := range frames(pcm) {
		packet, err := c.enc.encode(frame)
		if err != nil {
			return fmt.Errorf("discord: frame %d: %w", i, err)
		}
		select {
		case out <- packet:
		case <-done:
			return audio.ErrNotConnected
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for range trailingSilenceFrames {
		select {
		case out <- silenceFrame:
		case <-done:
			return audio.ErrNotConnected
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (c *Connection) setSpeaking(l voiceLink, b bool) {
	if err := l.speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "guild_id", c.guildID, "speaking", b, "err", err)
	}
}
