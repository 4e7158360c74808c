package sbv2

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/yomiage/pkg/provider/tts"
)

func TestNew_EmptyURL(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty server URL")
	}
}

func TestSynthesize_QueryAndDecode(t *testing.T) {
	t.Parallel()
	queries := make(chan map[string]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/voice" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		queries <- map[string]string{
			"text":       q.Get("text"),
			"language":   q.Get("language"),
			"model_name": q.Get("model_name"),
			"style":      q.Get("style"),
			"length":     q.Get("length"),
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(tts.EncodeWAV(&tts.Result{PCM: []int16{10, 20, 30}, SampleRate: 44100}))
	}))
	defer srv.Close()

	s, err := New(srv.URL + "/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := s.Synthesize(context.Background(), tts.Request{
		Text:     "こんにちは",
		Language: tts.LanguageJP,
		Voice:    tts.VoiceProfile{ID: "amitaro", Style: "Neutral", Speed: 1.2},
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.SampleRate != 44100 || len(res.PCM) != 3 || res.PCM[2] != 30 {
		t.Errorf("result: got %+v", res)
	}
	gotQuery := <-queries
	want := map[string]string{
		"text":       "こんにちは",
		"language":   "JP",
		"model_name": "amitaro",
		"style":      "Neutral",
		"length":     "1.2",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s: got %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestSynthesize_DefaultLength(t *testing.T) {
	t.Parallel()
	lengths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lengths <- r.URL.Query().Get("length")
		_, _ = w.Write(tts.EncodeWAV(&tts.Result{PCM: []int16{1}, SampleRate: 22050}))
	}))
	defer srv.Close()

	s, _ := New(srv.URL)
	if _, err := s.Synthesize(context.Background(), tts.Request{Text: "a", Language: tts.LanguageEN}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if length := <-lengths; length != "1" {
		t.Errorf("length: got %q, want %q", length, "1")
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	s, _ := New(srv.URL)
	_, err := s.Synthesize(context.Background(), tts.Request{Text: "a", Language: tts.LanguageJP})
	if err == nil {
		t.Fatal("expected error for non-200 status")
	}
	if !strings.Contains(err.Error(), "422") || !strings.Contains(err.Error(), "model not found") {
		t.Errorf("error should carry status and body, got: %v", err)
	}
}

func TestSynthesize_BadWAV(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not a wav"))
	}))
	defer srv.Close()

	s, _ := New(srv.URL)
	if _, err := s.Synthesize(context.Background(), tts.Request{Text: "a"}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestModels(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/info" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"0":{"config_path":"model_assets/amitaro/config.json","model_path":"model_assets/amitaro/amitaro.safetensors","id2spk":{"0":"amitaro"},"style2id":{"Neutral":0,"Angry":1}}}`))
	}))
	defer srv.Close()

	s, _ := New(srv.URL)
	models, err := s.Models(context.Background())
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	styles, ok := models["amitaro"]
	if !ok {
		t.Fatalf("models: got %v, want key amitaro", models)
	}
	if len(styles) != 2 || styles[0] != "Angry" || styles[1] != "Neutral" {
		t.Errorf("styles: got %v", styles)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
