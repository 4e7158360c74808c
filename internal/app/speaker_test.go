package app

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/yomiage/internal/discord"
	discordmock "github.com/MrWong99/yomiage/internal/discord/mock"
	"github.com/MrWong99/yomiage/internal/pipeline"
	"github.com/MrWong99/yomiage/internal/prefs"
	"github.com/MrWong99/yomiage/internal/session"
	ttsmock "github.com/MrWong99/yomiage/pkg/provider/tts/mock"
)

type speakerHarness struct {
	speaker  *Speaker
	registry *pipeline.Registry
	voice    *fakeVoice
	prefs    *prefs.JSONStore
	players  *players
	synth    *ttsmock.Synthesizer
	sender   *discordmock.Sender
	limiter  *Limiter
}

func newSpeakerHarness(t *testing.T, settings Settings) *speakerHarness {
	t.Helper()
	h := &speakerHarness{
		voice:   newFakeVoice(),
		prefs:   testPrefs(t),
		players: &players{},
		synth:   &ttsmock.Synthesizer{},
		sender:  &discordmock.Sender{},
		limiter: NewLimiter(0, 0),
	}
	reg := pipeline.NewRegistry(pipeline.Config{
		Synthesizer: h.synth,
		Players:     h.players.factory,
		Metrics:     testMetrics(t),
	})
	t.Cleanup(reg.Close)
	sm := NewSessionManager(SessionManagerConfig{
		Voice:     h.voice,
		Prefs:     h.prefs,
		Reconnect: session.ReconnectorConfig{Backoff: time.Millisecond},
	})
	t.Cleanup(sm.Close)
	router := discord.NewCommandRouter(h.sender)
	router.RegisterCommand("ping", "`ping`", func(_ context.Context, r *discord.Request) {
		r.Reply("pong")
	})
	if settings.TextChannel == "" {
		settings.TextChannel = "vc-text"
	}
	if settings.CommandPrefix == "" {
		settings.CommandPrefix = "!"
	}
	if settings.IgnorePrefix == "" {
		settings.IgnorePrefix = ";"
	}
	h.speaker = NewSpeaker(SpeakerConfig{
		Settings: settings,
		Registry: reg,
		Voices:   testVoices,
		Prefs:    h.prefs,
		Sessions: sm,
		Router:   router,
		Limiter:  h.limiter,
		Metrics:  testMetrics(t),
	})
	h.registry = reg
	return h
}

func (h *speakerHarness) waitPlayed(t *testing.T, guildID string, want ...string) {
	t.Helper()
	waitFor(t, "playback", func() bool { return len(h.players.texts(guildID)) >= len(want) })
	if got := h.players.texts(guildID); !slices.Equal(got, want) {
		t.Errorf("played %q, want %q", got, want)
	}
}

func textMessage(content string) discord.Message {
	return discord.Message{
		GuildID:     "g1",
		ChannelID:   "tc1",
		ChannelName: "vc-text",
		AuthorID:    "u1",
		AuthorName:  "alice",
		Content:     content,
	}
}

func TestSpeaker_ReadsMessageWithName(t *testing.T) {
	t.Parallel()
	h := newSpeakerHarness(t, Settings{})
	h.voice.setChannel("g1", "vc1")

	h.speaker.HandleMessage(context.Background(), textMessage("こんにちは"))
	h.waitPlayed(t, "g1", "alice", "こんにちは")
}

func TestSpeaker_UserPreferences(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name   string
		update prefs.UserUpdate
		want   []string
	}{
		{name: "nickname", update: prefs.UserUpdate{Nickname: prefs.String("ありす")}, want: []string{"ありす", "hello"}},
		{name: "call off", update: prefs.UserUpdate{Call: prefs.Bool(false)}, want: []string{"hello"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newSpeakerHarness(t, Settings{})
			h.voice.setChannel("g1", "vc1")
			if err := h.prefs.UpdateUser(ctx, "u1", tt.update); err != nil {
				t.Fatalf("UpdateUser: %v", err)
			}
			h.speaker.HandleMessage(ctx, textMessage("hello"))
			h.waitPlayed(t, "g1", tt.want...)
		})
	}
}

func TestSpeaker_VoicePreference(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newSpeakerHarness(t, Settings{})
	h.voice.setChannel("g1", "vc1")
	h.prefs.UpdateUser(ctx, "u1", prefs.UserUpdate{Voice: prefs.String("zundamon"), Call: prefs.Bool(false)})

	h.speaker.HandleMessage(ctx, textMessage("hello"))
	h.waitPlayed(t, "g1", "hello")
	calls := h.synth.Calls()
	if len(calls) != 1 || calls[0].Request.Voice.Name != "zundamon" {
		t.Errorf("synthesis calls = %+v, want one with voice zundamon", calls)
	}
}

func TestSpeaker_SkipsUnreadableMessages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(h *speakerHarness)
		msg   discord.Message
	}{
		{name: "bot author", msg: func() discord.Message { m := textMessage("beep"); m.AuthorBot = true; return m }()},
		{name: "ignore prefix", msg: textMessage(";secret")},
		{name: "blank", msg: textMessage("   ")},
		{name: "other channel", msg: func() discord.Message { m := textMessage("hi"); m.ChannelName = "general"; return m }()},
		{name: "talking off", msg: textMessage("hi"), setup: func(h *speakerHarness) {
			h.prefs.UpdateServer(ctx, "g1", prefs.ServerUpdate{Talking: prefs.Bool(false)})
		}},
		{name: "not in voice", msg: textMessage("hi"), setup: func(h *speakerHarness) {
			h.voice.Leave("g1")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newSpeakerHarness(t, Settings{})
			h.voice.setChannel("g1", "vc1")
			if tt.setup != nil {
				tt.setup(h)
			}
			h.speaker.HandleMessage(ctx, tt.msg)

			// Restore a readable state; only the marker may be spoken.
			h.voice.setChannel("g1", "vc1")
			h.prefs.UpdateServer(ctx, "g1", prefs.ServerUpdate{Talking: prefs.Bool(true)})
			h.prefs.UpdateUser(ctx, "u1", prefs.UserUpdate{Call: prefs.Bool(false)})
			h.speaker.HandleMessage(ctx, textMessage("marker"))
			h.waitPlayed(t, "g1", "marker")
		})
	}
}

func TestSpeaker_DispatchesCommands(t *testing.T) {
	t.Parallel()
	h := newSpeakerHarness(t, Settings{})

	m := textMessage("!ping")
	m.ChannelName = "general"
	h.speaker.HandleMessage(context.Background(), m)

	if got := h.sender.Last(); got != "pong" {
		t.Errorf("reply = %q, want pong", got)
	}
	if n := h.synth.CallCount(); n != 0 {
		t.Errorf("command was synthesised %d times", n)
	}
}

func TestSpeaker_RateLimitDropsMessages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newSpeakerHarness(t, Settings{})
	h.voice.setChannel("g1", "vc1")
	h.prefs.UpdateUser(ctx, "u1", prefs.UserUpdate{Call: prefs.Bool(false)})
	h.limiter.SetLimit(0.001, 1)

	h.speaker.HandleMessage(ctx, textMessage("one"))
	h.speaker.HandleMessage(ctx, textMessage("two"))
	h.limiter.SetLimit(0, 0)
	h.speaker.HandleMessage(ctx, textMessage("three"))

	h.waitPlayed(t, "g1", "one", "three")
}

func TestSpeaker_SetTextChannel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newSpeakerHarness(t, Settings{})
	h.voice.setChannel("g1", "vc1")
	h.prefs.UpdateUser(ctx, "u1", prefs.UserUpdate{Call: prefs.Bool(false)})

	h.speaker.SetTextChannel("yomiage")
	h.speaker.HandleMessage(ctx, textMessage("old channel"))
	m := textMessage("new channel")
	m.ChannelName = "yomiage"
	h.speaker.HandleMessage(ctx, m)

	h.waitPlayed(t, "g1", "new channel")
	if got := h.speaker.Settings().TextChannel; got != "yomiage" {
		t.Errorf("TextChannel = %q, want yomiage", got)
	}
}

func TestSpeaker_AutoJoin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name     string
		settings Settings
		autoJoin bool
		after    discord.VoiceChannel
		wantJoin bool
	}{
		{name: "any channel", autoJoin: true, after: discord.VoiceChannel{ID: "vc1", Name: "General", Humans: 1}, wantJoin: true},
		{name: "matching channel", settings: Settings{AutoJoinChannel: "yomiage"}, autoJoin: true, after: discord.VoiceChannel{ID: "vc1", Name: "yomiage", Humans: 1}, wantJoin: true},
		{name: "other channel", settings: Settings{AutoJoinChannel: "yomiage"}, autoJoin: true, after: discord.VoiceChannel{ID: "vc1", Name: "General", Humans: 1}},
		{name: "auto join off", autoJoin: false, after: discord.VoiceChannel{ID: "vc1", Name: "General", Humans: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newSpeakerHarness(t, tt.settings)
			h.prefs.UpdateServer(ctx, "g1", prefs.ServerUpdate{AutoJoin: prefs.Bool(tt.autoJoin)})

			h.speaker.HandleVoiceState(ctx, discord.VoiceStateChange{
				GuildID: "g1", UserID: "u1", UserName: "alice", After: tt.after,
			})
			if got := h.voice.ChannelID("g1") == tt.after.ID; got != tt.wantJoin {
				t.Errorf("joined = %v, want %v", got, tt.wantJoin)
			}
		})
	}
}

func TestSpeaker_AnnouncesJoinAndLeave(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newSpeakerHarness(t, Settings{})
	h.voice.setChannel("g1", "vc1")

	h.speaker.HandleVoiceState(ctx, discord.VoiceStateChange{
		GuildID: "g1", UserID: "u1", UserName: "alice",
		After: discord.VoiceChannel{ID: "vc1", Name: "General", Humans: 2},
	})
	h.speaker.HandleVoiceState(ctx, discord.VoiceStateChange{
		GuildID: "g1", UserID: "u2", UserName: "bob",
		Before: discord.VoiceChannel{ID: "vc2", Name: "Other", Humans: 1},
	})
	h.speaker.HandleVoiceState(ctx, discord.VoiceStateChange{
		GuildID: "g1", UserID: "u1", UserName: "alice",
		Before: discord.VoiceChannel{ID: "vc1", Name: "General", Humans: 1},
	})

	h.waitPlayed(t, "g1", "alice", joinedSuffix, "alice", leftSuffix)
}

func TestSpeaker_LeavesEmptyChannel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newSpeakerHarness(t, Settings{})
	h.voice.setChannel("g1", "vc1")
	h.prefs.UpdateServer(ctx, "g1", prefs.ServerUpdate{AutoJoin: prefs.Bool(false), Talking: prefs.Bool(false)})

	h.speaker.HandleVoiceState(ctx, discord.VoiceStateChange{
		GuildID: "g1", UserID: "u1", UserName: "alice",
		Before: discord.VoiceChannel{ID: "vc1", Name: "General", Humans: 0},
	})

	if h.voice.Connected("g1") {
		t.Error("still connected after the last user left")
	}
	srv, _ := h.prefs.Server(ctx, "g1")
	if !srv.AutoJoin || !srv.Talking {
		t.Errorf("server prefs = %+v, want both flags reset", srv)
	}
	if n := h.synth.CallCount(); n != 0 {
		t.Errorf("synthesised %d times after leaving", n)
	}
}

func TestSpeaker_IgnoresBotVoiceChanges(t *testing.T) {
	t.Parallel()
	h := newSpeakerHarness(t, Settings{})
	h.speaker.HandleVoiceState(context.Background(), discord.VoiceStateChange{
		GuildID: "g1", UserID: "b1", Bot: true,
		After: discord.VoiceChannel{ID: "vc1", Name: "General", Humans: 1},
	})
	if h.voice.joinCount() != 0 {
		t.Error("followed a bot into voice")
	}
}

func TestSpeaker_GuildRemovedEndsSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newSpeakerHarness(t, Settings{})
	h.voice.setChannel("g1", "vc1")
	h.speaker.HandleGuildAvailable(ctx, "g1")
	h.speaker.HandleGuildAvailable(ctx, "g2")

	h.speaker.HandleGuildRemoved(ctx, "g1")

	if h.voice.Connected("g1") {
		t.Error("still in voice after guild removal")
	}
	if got := h.registry.Sessions(); !slices.Equal(got, []string{"g2"}) {
		t.Errorf("sessions = %v, want [g2]", got)
	}
	// A second removal is a no-op.
	h.speaker.HandleGuildRemoved(ctx, "g1")
}
