// Package speech synthesizes assistant replies into audio.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// Voice is the fixed voice profile of the assistant.
	Voice       = "ru-RU-SvetlanaNeural"
	DefaultRate = "0.95"
	ContentType = "audio/mpeg"
)

var (
	ErrEmptyText   = errors.New("text parameter is required")
	ErrInvalidRate = errors.New("rate must be a number between 0.25 and 4")
)

type Request struct {
	Text string `json:"text"`
	Rate string `json:"rate,omitempty"`
}

// Normalize trims the text and applies the default rate.
func (r Request) Normalize() (Request, error) {
	r.Text = strings.TrimSpace(r.Text)
	r.Rate = strings.TrimSpace(r.Rate)
	if r.Text == "" {
		return r, ErrEmptyText
	}
	if r.Rate == "" {
		r.Rate = DefaultRate
	}
	if _, err := r.Speed(); err != nil {
		return r, err
	}
	return r, nil
}

// Speed parses Rate as a playback speed multiplier.
func (r Request) Speed() (float64, error) {
	rate := r.Rate
	if rate == "" {
		rate = DefaultRate
	}
	speed, err := strconv.ParseFloat(rate, 64)
	if err != nil || speed < 0.25 || speed > 4 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRate, r.Rate)
	}
	return speed, nil
}

// Synthesizer turns text into MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}
