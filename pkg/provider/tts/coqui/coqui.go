// Package coqui provides a Coqui TTS backed synthesizer that connects to
// either a standard Coqui TTS server or a Coqui XTTS v2 server via REST.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): GET /api/tts with URL query parameters,
//     targeting the ghcr.io/coqui-ai/tts-cpu image.
//
//   - APIModeXTTS: POST /tts_to_audio/ with a JSON body, targeting the XTTS
//     v2 API server. Voice.ID is the speaker_wav name.
//
// Both modes answer with a WAV file per request.
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/yomiage/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Provider)(nil)

const (
	defaultTimeout  = 30 * time.Second
	xttsEndpoint    = "/tts_to_audio/"
	apiTTSEndpoint  = "/api/tts"
	detailsEndpoint = "/details"
)

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// languageCodes maps spoken languages to the codes Coqui models expect.
var languageCodes = map[tts.Language]string{
	tts.LanguageJP: "ja",
	tts.LanguageEN: "en",
	tts.LanguageZH: "zh-cn",
}

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout for calls to the TTS server.
// Defaults to 30 s if not set.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithSendLanguage controls whether the language code is sent. Single
// language models reject the language_id parameter.
func WithSendLanguage(send bool) Option {
	return func(p *Provider) {
		p.sendLanguage = send
	}
}

// Provider implements tts.Synthesizer backed by a Coqui TTS server.
// It is safe for concurrent use.
type Provider struct {
	serverURL    string
	httpClient   *http.Client
	apiMode      APIMode
	sendLanguage bool
}

// New creates a Provider that targets the TTS server at serverURL
// (e.g., "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:    strings.TrimRight(serverURL, "/"),
		apiMode:      APIModeStandard,
		sendLanguage: true,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if p.apiMode != APIModeStandard && p.apiMode != APIModeXTTS {
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.apiMode)
	}
	return p, nil
}

// xttsRequest is the JSON body sent to POST /tts_to_audio/.
type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize performs one synthesis request in the configured API mode.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	var (
		httpReq  *http.Request
		endpoint string
		err      error
	)
	lang := languageCodes[req.Language]
	if lang == "" {
		lang = "en"
	}

	if p.apiMode == APIModeXTTS {
		if req.Voice.ID == "" {
			return nil, errors.New("coqui: xtts mode requires a voice ID (speaker_wav)")
		}
		endpoint = xttsEndpoint
		data, merr := json.Marshal(xttsRequest{Text: req.Text, SpeakerWav: req.Voice.ID, Language: lang})
		if merr != nil {
			return nil, fmt.Errorf("coqui: marshal tts request: %w", merr)
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+endpoint, bytes.NewReader(data))
		if err == nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
	} else {
		endpoint = apiTTSEndpoint
		params := url.Values{}
		params.Set("text", req.Text)
		if req.Voice.ID != "" {
			params.Set("speaker_id", req.Voice.ID)
		}
		if p.sendLanguage {
			params.Set("language_id", lang)
		}
		httpReq, err = http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+endpoint+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	httpReq.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", httpReq.Method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", httpReq.Method, endpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	res, err := tts.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	return res, nil
}

// Ping checks that the server is reachable. Standard servers expose
// /details; XTTS servers answer /studio_speakers.
func (p *Provider) Ping(ctx context.Context) error {
	path := detailsEndpoint
	if p.apiMode == APIModeXTTS {
		path = "/studio_speakers"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+path, nil)
	if err != nil {
		return fmt.Errorf("coqui: create ping request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coqui: GET %s returned status %d", path, resp.StatusCode)
	}
	return nil
}
