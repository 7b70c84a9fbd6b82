package ai

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// SSEDone terminates an OpenAI-style event stream.
const SSEDone = "[DONE]"

// SSEReader extracts data payloads from a text/event-stream body. Lines of
// one event are joined with "\n"; comments and other fields are skipped.
type SSEReader struct {
	r *bufio.Reader
}

func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next event's data, or io.EOF when the body ends.
func (s *SSEReader) Next() (string, error) {
	var data []string
	for {
		line, err := s.r.ReadString('\n')
		if line != "" {
			line = strings.TrimRight(line, "\r\n")
			switch {
			case line == "":
				if len(data) > 0 {
					return strings.Join(data, "\n"), nil
				}
			case strings.HasPrefix(line, "data:"):
				data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(data) > 0 {
				return strings.Join(data, "\n"), nil
			}
			return "", err
		}
	}
}

// WriteSSEData writes one data-only event.
func WriteSSEData(w io.Writer, data string) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

type deltaFrame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// DecodeDelta reads choices[0].delta.content from a streamed chunk. An error
// frame yields ErrStreamAborted.
func DecodeDelta(data string) (string, error) {
	var frame deltaFrame
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		return "", err
	}
	if frame.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrStreamAborted, frame.Error.Message)
	}
	if len(frame.Choices) == 0 {
		return "", nil
	}
	return frame.Choices[0].Delta.Content, nil
}

// EncodeDelta builds a chunk in the same shape DecodeDelta reads.
func EncodeDelta(content string) (string, error) {
	frame := map[string]any{
		"object": "chat.completion.chunk",
		"choices": []map[string]any{{
			"index": 0,
			"delta": map[string]string{"content": content},
		}},
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// EncodeError builds an error frame that aborts the stream on the reading side.
func EncodeError(message string) (string, error) {
	data, err := json.Marshal(map[string]any{
		"error": map[string]string{"message": message},
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadDeltaStream adapts an OpenAI-style SSE body into a Stream.
// Undecodable frames are skipped; an error frame ends the stream with
// ErrStreamAborted.
func ReadDeltaStream(body io.ReadCloser) Stream {
	return &sseStream{body: body, reader: NewSSEReader(body)}
}

type sseStream struct {
	body   io.ReadCloser
	reader *SSEReader
	done   bool
}

func (s *sseStream) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		data, err := s.reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.done = true
			}
			return "", err
		}
		if strings.TrimSpace(data) == SSEDone {
			s.done = true
			return "", io.EOF
		}
		content, err := DecodeDelta(data)
		if errors.Is(err, ErrStreamAborted) {
			s.done = true
			return "", err
		}
		if err != nil || content == "" {
			continue
		}
		return content, nil
	}
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
