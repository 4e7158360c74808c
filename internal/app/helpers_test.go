package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/yomiage/internal/observe"
	"github.com/MrWong99/yomiage/internal/prefs"
	"github.com/MrWong99/yomiage/pkg/audio"
	audiomock "github.com/MrWong99/yomiage/pkg/audio/mock"
	"github.com/MrWong99/yomiage/pkg/provider/tts"
)

// fakeVoice is an in-memory [Voice].
type fakeVoice struct {
	mu       sync.Mutex
	channels map[string]string
	joins    []string
	// failJoins is the number of upcoming JoinVoice calls that fail.
	failJoins int
}

func newFakeVoice() *fakeVoice {
	return &fakeVoice{channels: make(map[string]string)}
}

func (f *fakeVoice) JoinVoice(_ context.Context, guildID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, guildID+"/"+channelID)
	if f.failJoins > 0 {
		f.failJoins--
		return errors.New("voice gateway timeout")
	}
	f.channels[guildID] = channelID
	return nil
}

func (f *fakeVoice) Leave(guildID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.channels[guildID]
	delete(f.channels, guildID)
	return ok, nil
}

func (f *fakeVoice) Connected(guildID string) bool {
	return f.ChannelID(guildID) != ""
}

func (f *fakeVoice) ChannelID(guildID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[guildID]
}

func (f *fakeVoice) setChannel(guildID, channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[guildID] = channelID
}

func (f *fakeVoice) joinCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.joins)
}

// players hands out one mock player per guild.
type players struct {
	mu   sync.Mutex
	byID map[string]*audiomock.Player
}

func (ps *players) factory(id string) audio.VoicePlayer {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.byID == nil {
		ps.byID = make(map[string]*audiomock.Player)
	}
	p := audiomock.NewPlayer()
	ps.byID[id] = p
	return p
}

func (ps *players) texts(id string) []string {
	ps.mu.Lock()
	p := ps.byID[id]
	ps.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Texts()
}

type resolverFunc func(name string) tts.VoiceProfile

func (f resolverFunc) Resolve(name string) tts.VoiceProfile { return f(name) }

var testVoices = resolverFunc(func(name string) tts.VoiceProfile {
	if name == "" {
		name = "tsumugi"
	}
	return tts.VoiceProfile{Name: name, Provider: "sbv2", Speed: 1}
})

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func testPrefs(t *testing.T) *prefs.JSONStore {
	t.Helper()
	dir := t.TempDir()
	s, err := prefs.OpenJSON(dir+"/user_info.json", dir+"/server_info.json")
	if err != nil {
		t.Fatalf("OpenJSON: %v", err)
	}
	return s
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
