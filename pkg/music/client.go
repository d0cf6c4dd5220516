package music

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ErrNotConfigured is returned when the provider key or URL is missing
var ErrNotConfigured = errors.New("music provider is not configured")

// maxAudioBytes bounds a single downloaded track
const maxAudioBytes = 32 << 20

// Synthesizer turns lyrics plus a style prompt into hosted audio
type Synthesizer interface {
	GenerateSong(ctx context.Context, lyrics, stylePrompt string) (string, error)
	Download(ctx context.Context, audioURL string) ([]byte, error)
}

// Client calls the hosted music synthesis provider over HTTP
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a music provider client
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 3 * time.Minute
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type generateRequest struct {
	Lyrics      string `json:"lyrics"`
	StylePrompt string `json:"style_prompt"`
	Format      string `json:"format"`
}

type generateResponse struct {
	AudioURL string `json:"audio_url"`
	Error    string `json:"error,omitempty"`
}

// GenerateSong submits lyrics for synthesis and returns the provider's audio URL.
// The provider call is synchronous and can take minutes; callers pass a context
// shaped by the configured timeout.
func (c *Client) GenerateSong(ctx context.Context, lyrics, stylePrompt string) (string, error) {
	if c.apiKey == "" || c.baseURL == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(generateRequest{
		Lyrics:      lyrics,
		StylePrompt: stylePrompt,
		Format:      "mp3",
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("music provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("music provider returned %d: %s", resp.StatusCode, payload)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("music provider error: %s", out.Error)
	}
	if out.AudioURL == "" {
		return "", fmt.Errorf("music provider returned no audio URL")
	}

	log.Printf("🎵 Music synthesis completed (duration: %v)", time.Since(start))
	return out.AudioURL, nil
}

// Download fetches a hosted audio file and returns its raw bytes
func (c *Client) Download(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("audio download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audio download returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read audio body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("audio download was empty")
	}
	return data, nil
}
