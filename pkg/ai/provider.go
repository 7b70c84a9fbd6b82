// Package ai talks to chat-completion backends.
package ai

import (
	"context"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrEmptyResponse      = errors.New("empty response from provider")
	ErrNoMessages         = errors.New("messages are required")
	ErrAllProvidersFailed = errors.New("all AI providers failed")
	ErrStreamAborted      = errors.New("stream aborted by upstream")
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Stream yields completion text fragments in arrival order. Recv returns
// io.EOF once the provider signals completion.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Provider is one chat-completion backend. All backends (Groq, OpenRouter,
// Ollama) implement this interface.
type Provider interface {
	Name() string
	Model() string
	Chat(ctx context.Context, messages []ChatMessage) (string, error)
	StreamChat(ctx context.Context, messages []ChatMessage) (Stream, error)
}

// Params are the sampling settings sent with every request.
type Params struct {
	MaxTokens        int     `yaml:"maxTokens"`
	Temperature      float64 `yaml:"temperature"`
	TopP             float64 `yaml:"topP"`
	FrequencyPenalty float64 `yaml:"frequencyPenalty"`
	PresencePenalty  float64 `yaml:"presencePenalty"`
}

func DefaultParams() Params {
	return Params{
		MaxTokens:        4000,
		Temperature:      0.3,
		TopP:             0.9,
		FrequencyPenalty: 0.1,
		PresencePenalty:  0.1,
	}
}

// Collect drains a stream into one string and closes it.
func Collect(s Stream) (string, error) {
	defer s.Close()
	var out []byte
	for {
		chunk, err := s.Recv()
		if err != nil {
			if isEOF(err) {
				return string(out), nil
			}
			return string(out), err
		}
		out = append(out, chunk...)
	}
}
