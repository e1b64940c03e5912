// File: internal/commentary/commentary.go
package commentary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"marketpulse/internal/market"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-1.5-flash"

	// Persona preamble: terse desk-analyst style, output optimized for
	// text-to-speech (no markdown, no disclaimers).
	systemPrompt = "You are a senior high-frequency market commentator. " +
		"Be concise and data-first. One or two short sentences, plain text " +
		"suitable for voice delivery. No markdown, no disclaimers, no filler."
)

// Client generates short market commentary for a breakout via a
// generateContent-style REST endpoint.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	httpc   *http.Client
}

type Option func(*Client)

// WithBaseURL overrides the API endpoint (tests point it at a local server).
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") } }

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
		httpc:   &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type genRequest struct {
	Contents []content `json:"contents"`
	Config   genConfig `json:"generationConfig"`
}
type content struct {
	Parts []part `json:"parts"`
}
type part struct {
	Text string `json:"text"`
}
type genConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type genResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate returns one short commentary string for the breakout. Single
// attempt; the caller bounds the call with its context deadline.
func (c *Client) Generate(ctx context.Context, ev market.BreakoutEvent) (string, error) {
	body, err := json.Marshal(genRequest{
		Contents: []content{{Parts: []part{{Text: BuildPrompt(ev)}}}},
		Config:   genConfig{Temperature: 0.7, MaxOutputTokens: 100},
	})
	if err != nil {
		return "", err
	}

	u := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generator status %d", resp.StatusCode)
	}

	var out genResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("generator returned no candidates")
	}
	text := strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", fmt.Errorf("generator returned empty text")
	}
	return text, nil
}

// Canned is the keyless fallback: a fixed template instead of a model call.
type Canned struct{}

func (Canned) Generate(_ context.Context, ev market.BreakoutEvent) (string, error) {
	return fmt.Sprintf("%s %s breakout, direction %s, price %.2f, %.1f standard deviations from baseline.",
		ev.Symbol, ev.Trigger, ev.Direction, ev.Price, ev.Magnitude), nil
}

// BuildPrompt renders the breakout context into the generation prompt.
func BuildPrompt(ev market.BreakoutEvent) string {
	return fmt.Sprintf(
		"%s\n\nEvent: %s triggered for %s, direction %s.\nPrice: %.2f\nDeviation from baseline: %.2f standard deviations.\nGive a one-sentence market insight.",
		systemPrompt, ev.Trigger, ev.Symbol, ev.Direction, ev.Price, ev.Magnitude,
	)
}
