// Package sbv2 provides a Style-Bert-VITS2 backed synthesizer that talks to
// the project's FastAPI server (server_fastapi.py).
//
// Synthesis is a single GET /voice request per segment. The server answers
// with a WAV file, which is decoded to 16-bit PCM.
//
//	s, err := sbv2.New("http://localhost:5000", sbv2.WithTimeout(20*time.Second))
//	res, err := s.Synthesize(ctx, tts.Request{Text: "こんにちは", Language: tts.LanguageJP, Voice: voice})
package sbv2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/yomiage/pkg/provider/tts"
)

var _ tts.Synthesizer = (*Synthesizer)(nil)

const (
	defaultTimeout     = 60 * time.Second
	defaultStyleWeight = 1.0
	voiceEndpoint      = "/voice"
	modelsEndpoint     = "/models/info"
)

// Option is a functional option for configuring a [Synthesizer].
type Option func(*Synthesizer)

// WithTimeout sets the per-request HTTP timeout. Defaults to 60 s.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		s.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client used for all requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Synthesizer) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithStyleWeight sets how strongly the voice style is applied.
func WithStyleWeight(w float64) Option {
	return func(s *Synthesizer) {
		s.styleWeight = w
	}
}

// Synthesizer implements tts.Synthesizer against a Style-Bert-VITS2 server.
// It is safe for concurrent use.
type Synthesizer struct {
	serverURL   string
	httpClient  *http.Client
	styleWeight float64
}

// New creates a Synthesizer targeting the server at serverURL.
func New(serverURL string, opts ...Option) (*Synthesizer, error) {
	if serverURL == "" {
		return nil, errors.New("sbv2: serverURL must not be empty")
	}
	s := &Synthesizer{
		serverURL:   strings.TrimRight(serverURL, "/"),
		httpClient:  &http.Client{Timeout: defaultTimeout},
		styleWeight: defaultStyleWeight,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Synthesize requests one WAV utterance from the server. Voice.ID is the
// model name, Voice.Style the style and Voice.Speed the length scale.
func (s *Synthesizer) Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error) {
	params := url.Values{}
	params.Set("text", req.Text)
	params.Set("language", string(req.Language))
	params.Set("auto_split", "false")
	if req.Voice.ID != "" {
		params.Set("model_name", req.Voice.ID)
	}
	if req.Voice.Style != "" {
		params.Set("style", req.Voice.Style)
		params.Set("style_weight", strconv.FormatFloat(s.styleWeight, 'f', -1, 64))
	}
	length := req.Voice.Speed
	if length <= 0 {
		length = 1.0
	}
	params.Set("length", strconv.FormatFloat(length, 'f', -1, 64))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.serverURL+voiceEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("sbv2: create request: %w", err)
	}
	httpReq.Header.Set("Accept", "audio/wav")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sbv2: GET %s: %w", voiceEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("sbv2: GET %s returned status %d: %s", voiceEndpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sbv2: read WAV response: %w", err)
	}
	res, err := tts.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("sbv2: %w", err)
	}
	return res, nil
}

// modelInfo is one entry of GET /models/info.
type modelInfo struct {
	ConfigPath string            `json:"config_path"`
	ModelPath  string            `json:"model_path"`
	ID2Spk     map[string]string `json:"id2spk"`
	Style2ID   map[string]int    `json:"style2id"`
}

// Models returns the model names the server has loaded, with their styles,
// sorted by model ID.
func (s *Synthesizer) Models(ctx context.Context) (map[string][]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.serverURL+modelsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("sbv2: create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sbv2: GET %s: %w", modelsEndpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sbv2: GET %s returned status %d", modelsEndpoint, resp.StatusCode)
	}

	var infos map[string]modelInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		return nil, fmt.Errorf("sbv2: decode models: %w", err)
	}
	out := make(map[string][]string, len(infos))
	for _, info := range infos {
		name := modelName(info.ModelPath)
		styles := make([]string, 0, len(info.Style2ID))
		for style := range info.Style2ID {
			styles = append(styles, style)
		}
		sort.Strings(styles)
		out[name] = styles
	}
	return out, nil
}

// Ping reports whether the server answers the model listing.
func (s *Synthesizer) Ping(ctx context.Context) error {
	_, err := s.Models(ctx)
	return err
}

// modelName extracts the model directory from a path like
// "model_assets/amitaro/amitaro.safetensors".
func modelName(modelPath string) string {
	parts := strings.Split(strings.ReplaceAll(modelPath, "\\", "/"), "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return modelPath
}
