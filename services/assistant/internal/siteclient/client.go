// Package siteclient talks to the site service chat and speech endpoints.
package siteclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"jarvisai/pkg/ai"
	"jarvisai/pkg/speech"
)

// maxAudioBytes caps a single synthesized reply.
const maxAudioBytes = 16 << 20

// Client calls the site service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// streamClient has no overall timeout; streams are bounded by ctx.
	streamClient *http.Client
}

// NewClient constructs a site service client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}
}

type chatRequest struct {
	Messages []ai.ChatMessage `json:"messages"`
	Stream   bool             `json:"stream"`
}

// StreamChat opens a streamed completion through POST /api/chat.
func (c *Client) StreamChat(ctx context.Context, messages []ai.ChatMessage) (ai.Stream, error) {
	body, err := json.Marshal(chatRequest{Messages: messages, Stream: true})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return ai.ReadDeltaStream(resp.Body), nil
}

// Synthesize fetches MP3 audio through POST /api/tts.
func (c *Client) Synthesize(ctx context.Context, in speech.Request) ([]byte, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/tts", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", speech.ContentType)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, decodeAPIError(resp)
	}
	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) > maxAudioBytes {
		return nil, fmt.Errorf("audio exceeds %d bytes", maxAudioBytes)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("empty audio response")
	}
	return audio, nil
}

// ChatStatus mirrors GET /api/chat.
type ChatStatus struct {
	Message   string `json:"message"`
	Providers struct {
		Primary  string            `json:"primary"`
		Fallback string            `json:"fallback"`
		Models   map[string]string `json:"models"`
	} `json:"providers"`
}

// Status reports which chat providers the site has configured.
func (c *Client) Status(ctx context.Context) (ChatStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/chat", nil)
	if err != nil {
		return ChatStatus{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ChatStatus{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ChatStatus{}, decodeAPIError(resp)
	}
	var status ChatStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return ChatStatus{}, fmt.Errorf("decode chat status: %w", err)
	}
	return status, nil
}

// APIError represents a site service error response.
type APIError struct {
	Status  int
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: resp.Status}
	var payload struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Details = payload.Details
	}
	return apiErr
}
