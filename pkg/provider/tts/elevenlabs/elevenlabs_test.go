package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/yomiage/pkg/provider/tts"
	"github.com/coder/websocket"
)

// fakeServer accepts one stream-input socket, records the text messages and
// answers with the given PCM chunks.
func fakeServer(t *testing.T, chunks [][]byte, received chan<- []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		var texts []string
		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var m map[string]any
			_ = json.Unmarshal(msg, &m)
			text, _ := m["text"].(string)
			texts = append(texts, text)
			if text == "" {
				break
			}
		}
		received <- texts

		for i, c := range chunks {
			resp, _ := json.Marshal(audioResponse{
				Audio:   base64.StdEncoding.EncodeToString(c),
				IsFinal: i == len(chunks)-1,
			})
			if err := conn.Write(ctx, websocket.MessageText, resp); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("k", WithOutputFormat("mp3_44100_128")); err == nil {
		t.Error("expected error for non-PCM output format")
	}
	p, err := New("k", WithOutputFormat("pcm_24000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.sampleRate != 24000 {
		t.Errorf("sampleRate: got %d, want 24000", p.sampleRate)
	}
}

func TestSynthesize_CollectsChunks(t *testing.T) {
	t.Parallel()
	received := make(chan []string, 1)
	srv := fakeServer(t, [][]byte{{0x01, 0x00}, {0x02, 0x00, 0xFF, 0xFF}}, received)
	defer srv.Close()

	p, err := New("key", WithBaseURL(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Synthesize(context.Background(), tts.Request{
		Text:     "hello there",
		Language: tts.LanguageEN,
		Voice:    tts.VoiceProfile{ID: "voice-1", Speed: 1.0},
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	want := []int16{1, 2, -1}
	if len(res.PCM) != len(want) {
		t.Fatalf("PCM: got %v, want %v", res.PCM, want)
	}
	for i := range want {
		if res.PCM[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, res.PCM[i], want[i])
		}
	}
	if res.SampleRate != 16000 {
		t.Errorf("SampleRate: got %d, want 16000", res.SampleRate)
	}

	texts := <-received
	if len(texts) != 3 || texts[0] != " " || texts[1] != "hello there " || texts[2] != "" {
		t.Errorf("texts sent: got %q", texts)
	}
}

func TestSynthesize_RequiresVoice(t *testing.T) {
	t.Parallel()
	p, _ := New("key")
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "x"}); err == nil {
		t.Fatal("expected error for empty voice ID")
	}
}

func TestSynthesize_ServerErrorMessage(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		_, _, _ = conn.Read(r.Context())
		b, _ := json.Marshal(audioResponse{Error: "quota_exceeded", Message: "out of credits"})
		_ = conn.Write(r.Context(), websocket.MessageText, b)
		_, _, _ = conn.Read(r.Context())
	}))
	defer srv.Close()

	p, _ := New("key", WithBaseURL(wsURL(srv)))
	_, err := p.Synthesize(context.Background(), tts.Request{Text: "x", Voice: tts.VoiceProfile{ID: "v"}})
	if err == nil || !strings.Contains(err.Error(), "quota_exceeded") {
		t.Fatalf("expected quota error, got %v", err)
	}
}
