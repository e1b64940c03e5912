// File: internal/voice/voice.go
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	defaultModel   = "eleven_turbo_v2_5"
)

// Client synthesizes speech from commentary text. The response body is an
// opaque audio byte stream; the pipeline never inspects it.
type Client struct {
	apiKey  string
	voiceID string
	model   string
	baseURL string
	httpc   *http.Client
}

type Option func(*Client)

// WithBaseURL overrides the API endpoint (tests point it at a local server).
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") } }

// WithVoice selects a voice ID.
func WithVoice(id string) Option { return func(c *Client) { c.voiceID = id } }

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		voiceID: defaultVoiceID,
		model:   defaultModel,
		baseURL: defaultBaseURL,
		httpc:   &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Synthesize converts text to audio bytes. Single attempt; the caller bounds
// the call with its context deadline.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]any{
		"text":     NormalizeText(text),
		"model_id": c.model,
	})
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("synthesizer status %d", resp.StatusCode)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("synthesizer returned no audio")
	}
	return audio, nil
}

var (
	markdownRe   = regexp.MustCompile("\\*\\*|__|`")
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Ordered so longer tokens replace before their substrings.
var speakable = []struct{ from, to string }{
	{"USDT", " U S D T"},
	{"BTC", "Bitcoin"},
	{"ETH", "Ethereum"},
	{"SOL", "Solana"},
	{"RSI", "R S I"},
	{"VWAP", "V WAP"},
	{"$", "dollars "},
	{"%", " percent"},
}

// NormalizeText rewrites symbols and abbreviations into speakable words and
// strips markdown artifacts before text-to-speech.
func NormalizeText(text string) string {
	for _, r := range speakable {
		text = strings.ReplaceAll(text, r.from, r.to)
	}
	text = markdownRe.ReplaceAllString(text, "")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}
