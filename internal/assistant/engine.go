// Package assistant runs the conversation with the AI consultant: the
// transcript, streamed replies, speech capture and spoken answers.
package assistant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"jarvisai/internal/notify"
	"jarvisai/pkg/ai"
	"jarvisai/pkg/domain"
)

// Snapshot is the observable engine state.
type Snapshot struct {
	Messages  []domain.Message
	Draft     string
	Awaiting  bool
	Recording bool
	Speaking  bool
	Open      bool
}

type Engine struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	timers    map[*time.Timer]struct{}
	messages  []domain.Message
	draft     string
	open      bool
	greeted   bool
	awaiting  bool
	recording bool

	sendGen    uint64
	sendCancel context.CancelFunc

	speechGen uint64
	playback  Playback

	silenceGen    uint64
	cancelSilence func()
	cancelRestart func()

	hub notify.Hub[Snapshot]
}

// New starts an engine whose transcript holds only the greeting.
func New(deps Deps, cfg Config, logger *slog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.Rand == nil {
		cfg.Rand = def.Rand
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	if cfg.SpeechRate == "" {
		cfg.SpeechRate = def.SpeechRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		deps:       deps,
		cfg:        cfg,
		logger:     logger,
		rootCtx:    ctx,
		rootCancel: cancel,
		timers:     make(map[*time.Timer]struct{}),
	}
	e.messages = []domain.Message{e.newMessage(Greeting, domain.SenderAssistant)}
	return e
}

// Open marks the chat visible. The first time it is opened with only the
// greeting in the transcript, the greeting is spoken after a short delay.
func (e *Engine) Open() {
	e.mu.Lock()
	e.open = true
	if !e.greeted && len(e.messages) == 1 && e.messages[0].Sender == domain.SenderAssistant {
		e.greeted = true
		text := e.messages[0].Text
		e.afterLocked(e.cfg.GreetingDelay, func() { e.speak(text) })
	}
	e.mu.Unlock()
	e.publish()
}

// Hide marks the chat hidden without stopping anything.
func (e *Engine) Hide() {
	e.mu.Lock()
	e.open = false
	e.mu.Unlock()
	e.publish()
}

// SendMessage appends the user's text and streams the reply into the
// transcript. It returns when the stream ends. A newer SendMessage cancels
// this one; the partial reply stays in the transcript and is not spoken.
func (e *Engine) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return context.Canceled
	}
	if e.sendCancel != nil {
		e.sendCancel()
	}
	e.sendGen++
	gen := e.sendGen
	sendCtx, cancel := context.WithCancel(ctx)
	stopOnClose := context.AfterFunc(e.rootCtx, cancel)
	e.sendCancel = cancel
	e.messages = append(e.messages, e.newMessage(text, domain.SenderUser))
	e.draft = ""
	e.awaiting = true
	history := e.historyLocked()
	e.mu.Unlock()
	e.publish()

	defer func() {
		stopOnClose()
		cancel()
		e.mu.Lock()
		if e.sendGen == gen {
			e.sendCancel = nil
			e.awaiting = false
		}
		e.mu.Unlock()
	}()

	stream, err := e.deps.Completer.StreamChat(sendCtx, history)
	if err != nil {
		if sendCtx.Err() != nil {
			return sendCtx.Err()
		}
		e.logger.Warn("assistant completion failed", "err", err)
		e.replyWithFallback(gen)
		return nil
	}
	defer stream.Close()

	placeholder := e.newMessage("", domain.SenderAssistant)
	e.mu.Lock()
	if e.sendGen != gen {
		e.mu.Unlock()
		return context.Canceled
	}
	e.messages = append(e.messages, placeholder)
	e.awaiting = false
	e.mu.Unlock()
	e.StopSpeaking()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if sendCtx.Err() != nil {
				return sendCtx.Err()
			}
			e.logger.Warn("assistant stream failed", "err", err)
			e.replyWithFallback(gen)
			return nil
		}
		full.WriteString(chunk)
		e.mu.Lock()
		e.appendToLocked(placeholder.ID, chunk)
		e.mu.Unlock()
		e.publish()
	}

	reply := strings.TrimSpace(full.String())
	e.mu.Lock()
	if e.sendGen == gen && reply != "" {
		e.afterLocked(e.cfg.SpeakDelay, func() {
			e.mu.Lock()
			current := e.sendGen == gen
			e.mu.Unlock()
			if current {
				e.speak(reply)
			}
		})
	}
	e.mu.Unlock()
	return nil
}

func (e *Engine) replyWithFallback(gen uint64) {
	text := FallbackReplies[e.cfg.Rand(len(FallbackReplies))]
	e.mu.Lock()
	if e.sendGen != gen {
		e.mu.Unlock()
		return
	}
	e.messages = append(e.messages, e.newMessage(text, domain.SenderAssistant))
	e.awaiting = false
	e.afterLocked(e.cfg.FallbackSpeakDelay, func() { e.speak(text) })
	e.mu.Unlock()
	e.publish()
}

// Transcript returns a copy of the messages in order.
func (e *Engine) Transcript() []domain.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Message(nil), e.messages...)
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return e.hub.Subscribe(fn)
}

// Close stops capture, playback and every pending background task, and
// waits for them to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for t := range e.timers {
		t.Stop()
		delete(e.timers, t)
		e.wg.Done()
	}
	recording := e.recording
	e.recording = false
	pb := e.playback
	e.playback = nil
	e.speechGen++
	e.mu.Unlock()

	e.rootCancel()
	if recording && e.deps.Recognizer != nil {
		e.deps.Recognizer.Stop()
	}
	if pb != nil {
		pb.Stop()
	}
	if e.deps.Player != nil {
		e.deps.Player.StopAll()
	}
	e.wg.Wait()
}

func (e *Engine) historyLocked() []ai.ChatMessage {
	out := make([]ai.ChatMessage, 0, len(e.messages))
	for _, m := range e.messages {
		role := ai.RoleAssistant
		if m.Sender == domain.SenderUser {
			role = ai.RoleUser
		} else if strings.TrimSpace(m.Text) == "" {
			// placeholder of a cancelled or empty stream
			continue
		}
		out = append(out, ai.ChatMessage{Role: role, Content: m.Text})
	}
	return ai.WithPreamble(out)
}

func (e *Engine) appendToLocked(id, chunk string) {
	for i := range e.messages {
		if e.messages[i].ID == id {
			e.messages[i].Text += chunk
			return
		}
	}
}

func (e *Engine) newMessage(text string, sender domain.Sender) domain.Message {
	return domain.Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		Timestamp: e.cfg.Now().UTC(),
	}
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		Messages:  append([]domain.Message(nil), e.messages...),
		Draft:     e.draft,
		Awaiting:  e.awaiting,
		Recording: e.recording,
		Speaking:  e.playback != nil,
		Open:      e.open,
	}
}

func (e *Engine) publish() {
	e.hub.Publish(e.Snapshot())
}

// afterLocked runs fn on its own goroutine after d unless the engine closes
// first. The returned func cancels it; both must be called with e.mu held.
func (e *Engine) afterLocked(d time.Duration, fn func()) (cancel func()) {
	if e.closed {
		return func() {}
	}
	e.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		e.mu.Lock()
		_, pending := e.timers[t]
		delete(e.timers, t)
		e.mu.Unlock()
		if !pending {
			return
		}
		defer e.wg.Done()
		fn()
	})
	e.timers[t] = struct{}{}
	return func() {
		if _, ok := e.timers[t]; ok {
			t.Stop()
			delete(e.timers, t)
			e.wg.Done()
		}
	}
}

// goLocked runs fn on a tracked goroutine. Must be called with e.mu held.
func (e *Engine) goLocked(fn func()) {
	if e.closed {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}
