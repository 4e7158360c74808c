package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/yomiage/pkg/provider/tts"
)

func TestNew_RequiresKey(t *testing.T) {
	t.Parallel()
	if _, err := New("", ""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestSynthesize_PCM(t *testing.T) {
	t.Parallel()
	bodies := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies <- body
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{0x10, 0x00, 0xF0, 0xFF})
	}))
	defer srv.Close()

	p, err := New("sk-test", "", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Synthesize(context.Background(), tts.Request{
		Text:  "hello",
		Voice: tts.VoiceProfile{ID: "nova", Speed: 1.5},
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.SampleRate != 24000 || len(res.PCM) != 2 || res.PCM[0] != 16 || res.PCM[1] != -16 {
		t.Errorf("result: got %+v", res)
	}

	body := <-bodies
	if body["input"] != "hello" || body["voice"] != "nova" || body["model"] != "tts-1" || body["response_format"] != "pcm" {
		t.Errorf("request body: got %v", body)
	}
	if body["speed"] != 1.5 {
		t.Errorf("speed: got %v, want 1.5", body["speed"])
	}
}

func TestSynthesize_APIError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad voice","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, _ := New("sk-test", "tts-1-hd", WithBaseURL(srv.URL))
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "x"}); err == nil {
		t.Fatal("expected error for 400")
	}
}
