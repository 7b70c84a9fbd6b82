package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatConfig describes an OpenAI-compatible /chat/completions backend.
type OpenAICompatConfig struct {
	Name    string
	BaseURL string
	// APIKeys is a pool; each request picks one at random.
	APIKeys []string
	Model   string
	Headers map[string]string
	Params  Params
	Timeout time.Duration
}

// OpenAICompatProvider calls any OpenAI-compatible /chat/completions endpoint.
// Works with Groq, OpenRouter, vLLM, LiteLLM, etc.
type OpenAICompatProvider struct {
	name       string
	baseURL    string
	apiKeys    []string
	model      string
	headers    map[string]string
	params     Params
	httpClient *http.Client
	pick       func(n int) int
}

// NewOpenAICompatProvider builds a provider. BaseURL should include the /v1
// prefix, e.g. "https://api.groq.com/openai/v1".
func NewOpenAICompatProvider(cfg OpenAICompatConfig) *OpenAICompatProvider {
	keys := make([]string, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "openai-compat"
	}
	return &OpenAICompatProvider{
		name:       name,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKeys:    keys,
		model:      strings.TrimSpace(cfg.Model),
		headers:    cfg.Headers,
		params:     cfg.Params,
		httpClient: &http.Client{Timeout: timeout},
		pick:       rand.IntN,
	}
}

func (p *OpenAICompatProvider) Name() string  { return p.name }
func (p *OpenAICompatProvider) Model() string { return p.model }

// Chat performs a non-streaming completion.
func (p *OpenAICompatProvider) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	resp, err := p.do(ctx, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chatResp oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("%s decode: %w", p.name, err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", p.name, ErrEmptyResponse)
	}
	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%s: %w", p.name, ErrEmptyResponse)
	}
	return text, nil
}

// StreamChat opens a streaming completion. The returned error covers only
// opening the stream; transport errors after that surface from Recv.
func (p *OpenAICompatProvider) StreamChat(ctx context.Context, messages []ChatMessage) (Stream, error) {
	resp, err := p.do(ctx, messages, true)
	if err != nil {
		return nil, err
	}
	return ReadDeltaStream(resp.Body), nil
}

func (p *OpenAICompatProvider) do(ctx context.Context, messages []ChatMessage, stream bool) (*http.Response, error) {
	if p.model == "" {
		return nil, fmt.Errorf("%s model required", p.name)
	}
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}
	if len(p.apiKeys) == 0 {
		return nil, fmt.Errorf("%s api key not configured", p.name)
	}

	body, err := json.Marshal(oaiChatRequest{
		Model:            p.model,
		Messages:         messages,
		Stream:           stream,
		MaxTokens:        p.params.MaxTokens,
		Temperature:      p.params.Temperature,
		TopP:             p.params.TopP,
		FrequencyPenalty: p.params.FrequencyPenalty,
		PresencePenalty:  p.params.PresencePenalty,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKeys[p.pick(len(p.apiKeys))])
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", p.name, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var errResp oaiErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return nil, fmt.Errorf("%s api error: %s: %s", p.name, resp.Status, errResp.Error.Message)
		}
		return nil, fmt.Errorf("%s api error: %s", p.name, resp.Status)
	}
	return resp, nil
}

type oaiChatRequest struct {
	Model            string        `json:"model"`
	Messages         []ChatMessage `json:"messages"`
	Stream           bool          `json:"stream"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	Temperature      float64       `json:"temperature"`
	TopP             float64       `json:"top_p,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty,omitempty"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
