package synth

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

	"github.com/dgnsrekt/narrate/internal/ttypes"
)

const (
	// DefaultBaseURL is the Google Cloud Text-to-Speech endpoint.
	DefaultBaseURL = "https://texttospeech.googleapis.com"

	// DefaultRequestTimeout bounds one synthesis HTTP call.
	DefaultRequestTimeout = 90 * time.Second

	synthesizePath = "/v1/text:synthesize"
	voicesPath     = "/v1/voices"

	// error bodies larger than this are truncated before parsing
	maxErrorBody = 64 << 10
)

// GoogleEngine talks to the Google Cloud Text-to-Speech REST API. It
// implements Engine and credential.Prober.
type GoogleEngine struct {
	baseURL string
	client  *http.Client
	voice   VoiceConfig
}

// GoogleOption configures a GoogleEngine.
type GoogleOption func(*GoogleEngine)

// WithBaseURL sets a custom base URL (for testing or proxies).
func WithBaseURL(u string) GoogleOption {
	return func(g *GoogleEngine) {
		g.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) GoogleOption {
	return func(g *GoogleEngine) {
		g.client = c
	}
}

// NewGoogleEngine creates an engine speaking with the given voice.
func NewGoogleEngine(voice VoiceConfig, opts ...GoogleOption) *GoogleEngine {
	g := &GoogleEngine{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: DefaultRequestTimeout},
		voice:   voice,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type synthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding   string  `json:"audioEncoding"`
		SpeakingRate    float64 `json:"speakingRate"`
		SampleRateHertz int     `json:"sampleRateHertz"`
	} `json:"audioConfig"`
}

type synthesizeResponse struct {
	// base64 in JSON, decoded by encoding/json
	AudioContent []byte `json:"audioContent"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Synthesize requests LINEAR16 audio for text.
func (g *GoogleEngine) Synthesize(ctx context.Context, text string, cred ttypes.Credential) ([]byte, error) {
	var body synthesizeRequest
	body.Input.Text = text
	body.Voice.LanguageCode = g.voice.LanguageCode
	body.Voice.Name = g.voice.VoiceName
	body.AudioConfig.AudioEncoding = "LINEAR16"
	body.AudioConfig.SpeakingRate = g.voice.SpeakingRate
	body.AudioConfig.SampleRateHertz = g.voice.SampleRate

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+synthesizePath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.do(req, cred)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.AudioContent) == 0 {
		return nil, errors.New("response carried no audio")
	}
	return out.AudioContent, nil
}

// Probe lists the voices of the configured language, a cheap read-only call
// that fails for unusable keys.
func (g *GoogleEngine) Probe(ctx context.Context, cred ttypes.Credential) error {
	u := g.baseURL + voicesPath
	if g.voice.LanguageCode != "" {
		u += "?" + url.Values{"languageCode": {g.voice.LanguageCode}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.do(req, cred)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// do sends req authenticated with cred. Non-200 responses are returned as
// *APIError with the body closed.
func (g *GoogleEngine) do(req *http.Request, cred ttypes.Credential) (*http.Response, error) {
	// header auth keeps the key out of URLs and therefore out of error strings
	req.Header.Set("X-Goog-Api-Key", cred.Secret)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, parseAPIError(resp)
}

func parseAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
		apiErr.Status = parsed.Error.Status
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
