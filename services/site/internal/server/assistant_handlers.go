package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"jarvisai/pkg/ai"
	"jarvisai/pkg/speech"
	"jarvisai/services/site/internal/app"
)

type chatRequest struct {
	Messages []ai.ChatMessage `json:"messages"`
	Stream   bool             `json:"stream"`
}

type chatChoice struct {
	Index        int            `json:"index"`
	Message      ai.ChatMessage `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

type chatResponse struct {
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleChatStatus(w)
	case http.MethodPost:
		if !s.allowRate(w, r, s.chatQuota, "too many chat requests") {
			s.audit(r, "site.chat", "rate_limited")
			return
		}
		s.handleChatCompletion(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleChatStatus(w http.ResponseWriter) {
	router := s.app.Chat()
	providers := map[string]any{}
	models := map[string]string{}
	if p := router.Primary(); p != nil {
		providers["primary"] = p.Name()
		models[p.Name()] = p.Model()
	}
	if p := router.Fallback(); p != nil {
		providers["fallback"] = p.Name()
		models[p.Name()] = p.Model()
	}
	providers["models"] = models
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Chat API is running",
		"providers": providers,
	})
}

func (s *Server) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "Messages array is required and cannot be empty")
		return
	}
	messages := ai.ReplacePreamble(req.Messages)
	if len(messages) == 1 {
		writeError(w, http.StatusBadRequest, "Messages array is required and cannot be empty")
		return
	}
	router := s.app.Chat()

	if !req.Stream {
		text, err := router.Chat(r.Context(), messages)
		if err != nil {
			logger(r).Error("chat completion failed", "err", err)
			writeErrorDetails(w, http.StatusInternalServerError, "Failed to generate response", err)
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{
			Object: "chat.completion",
			Model:  router.Model(),
			Choices: []chatChoice{{
				Message:      ai.ChatMessage{Role: ai.RoleAssistant, Content: text},
				FinishReason: "stop",
			}},
		})
		return
	}

	stream, err := router.StreamChat(r.Context(), messages)
	if err != nil {
		logger(r).Error("chat stream failed", "err", err)
		writeErrorDetails(w, http.StatusInternalServerError, "Failed to generate response", err)
		return
	}
	defer stream.Close()
	s.relayStream(w, r, stream)
}

// relayStream re-encodes provider fragments as OpenAI-style SSE deltas.
// The status line is already sent, so a mid-stream failure becomes an
// error frame instead of [DONE].
func (s *Server) relayStream(w http.ResponseWriter, r *http.Request, stream ai.Stream) {
	rc := http.NewResponseController(w)
	// Long answers outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	log := logger(r)
	chunks := 0
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			_ = ai.WriteSSEData(w, ai.SSEDone)
			_ = rc.Flush()
			log.Debug("chat stream finished", "chunks", chunks)
			return
		}
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			log.Warn("chat stream aborted", "chunks", chunks, "err", err)
			if frame, encErr := ai.EncodeError(err.Error()); encErr == nil {
				_ = ai.WriteSSEData(w, frame)
				_ = rc.Flush()
			}
			return
		}
		data, err := ai.EncodeDelta(chunk)
		if err != nil {
			continue
		}
		if err := ai.WriteSSEData(w, data); err != nil {
			log.Debug("chat client went away", "err", err)
			return
		}
		_ = rc.Flush()
		chunks++
	}
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req speech.Request
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req = speech.Request{Text: q.Get("text"), Rate: q.Get("rate")}
	case http.MethodPost:
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	default:
		methodNotAllowed(w)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Text parameter is required")
		return
	}
	if !s.allowRate(w, r, s.speechQuota, "too many speech requests") {
		s.audit(r, "site.tts", "rate_limited")
		return
	}

	audio, err := s.app.Synthesize(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, speech.ErrInvalidRate):
		writeErrorDetails(w, http.StatusBadRequest, "Invalid rate", err)
		return
	case errors.Is(err, app.ErrSpeechDisabled):
		writeErrorDetails(w, http.StatusServiceUnavailable, "Failed to synthesize speech", err)
		return
	default:
		logger(r).Error("speech synthesis failed", "err", err)
		writeErrorDetails(w, http.StatusInternalServerError, "Failed to synthesize speech", err)
		return
	}

	w.Header().Set("Content-Type", speech.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.Header().Set("Content-Disposition", `inline; filename="speech.mp3"`)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio)
}
