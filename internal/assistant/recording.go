package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ToggleRecording starts speech capture, or stops it when active.
func (e *Engine) ToggleRecording() error {
	if e.Snapshot().Recording {
		e.StopRecording()
		return nil
	}
	return e.StartRecording()
}

func (e *Engine) StartRecording() error {
	if e.deps.Recognizer == nil {
		return ErrSpeechUnsupported
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return context.Canceled
	}
	if e.recording {
		e.mu.Unlock()
		return nil
	}
	e.recording = true
	e.draft = ""
	e.mu.Unlock()

	if err := e.deps.Recognizer.Start(e.rootCtx, recognitionSink{e}); err != nil {
		e.mu.Lock()
		e.recording = false
		e.mu.Unlock()
		e.publish()
		return fmt.Errorf("start speech capture: %w", err)
	}
	e.publish()
	return nil
}

func (e *Engine) StopRecording() {
	e.mu.Lock()
	was := e.recording
	e.recording = false
	e.stopTimersLocked()
	e.mu.Unlock()
	if was && e.deps.Recognizer != nil {
		e.deps.Recognizer.Stop()
	}
	e.publish()
}

func (e *Engine) stopTimersLocked() {
	e.silenceGen++
	if e.cancelSilence != nil {
		e.cancelSilence()
		e.cancelSilence = nil
	}
	if e.cancelRestart != nil {
		e.cancelRestart()
		e.cancelRestart = nil
	}
}

type recognitionSink struct {
	e *Engine
}

// OnResult shows interim text as a draft. A final result arms the silence
// timer; if it elapses while still recording, that text is sent.
func (s recognitionSink) OnResult(text string, final bool) {
	e := s.e
	text = strings.TrimSpace(text)
	e.mu.Lock()
	if !e.recording {
		e.mu.Unlock()
		return
	}
	e.draft = text
	if final && text != "" {
		if e.cancelSilence != nil {
			e.cancelSilence()
		}
		e.silenceGen++
		gen := e.silenceGen
		e.cancelSilence = e.afterLocked(e.cfg.SilenceTimeout, func() { e.silenceElapsed(gen, text) })
	}
	e.mu.Unlock()
	e.publish()
}

func (s recognitionSink) OnError(code string) {
	e := s.e
	var notice *Notice
	e.mu.Lock()
	if !e.recording {
		e.mu.Unlock()
		return
	}
	if e.cancelSilence != nil {
		e.cancelSilence()
		e.cancelSilence = nil
	}
	switch code {
	case RecognitionNoSpeech:
		e.restartLocked(e.cfg.NoSpeechRestart)
	case RecognitionNetwork:
		e.restartLocked(e.cfg.NetworkRestart)
	case RecognitionNotAllowed:
		e.recording = false
		e.stopTimersLocked()
		notice = &Notice{Kind: NoticePermissionDenied, Text: PermissionDeniedText}
	default:
		e.recording = false
		e.stopTimersLocked()
		e.logger.Warn("speech capture error", "code", code)
	}
	e.mu.Unlock()

	if notice != nil && e.deps.Notify != nil {
		e.deps.Notify(*notice)
	}
	e.publish()
}

// OnEnd restarts capture that ended on its own while still recording.
func (s recognitionSink) OnEnd() {
	e := s.e
	e.mu.Lock()
	if e.recording {
		e.restartLocked(e.cfg.EndRestart)
	}
	e.mu.Unlock()
}

func (e *Engine) restartLocked(d time.Duration) {
	if e.cancelRestart != nil {
		return
	}
	e.cancelRestart = e.afterLocked(d, e.restart)
}

func (e *Engine) restart() {
	e.mu.Lock()
	e.cancelRestart = nil
	if !e.recording || e.closed {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	if err := e.deps.Recognizer.Start(e.rootCtx, recognitionSink{e}); err != nil {
		e.logger.Warn("speech capture restart failed", "err", err)
		e.mu.Lock()
		e.recording = false
		e.stopTimersLocked()
		e.mu.Unlock()
		e.publish()
	}
}

func (e *Engine) silenceElapsed(gen uint64, text string) {
	e.mu.Lock()
	if gen != e.silenceGen || !e.recording || text == "" {
		e.mu.Unlock()
		return
	}
	e.cancelSilence = nil
	e.recording = false
	e.stopTimersLocked()
	e.mu.Unlock()

	e.deps.Recognizer.Stop()
	e.publish()
	if err := e.SendMessage(e.rootCtx, text); err != nil && e.rootCtx.Err() == nil {
		e.logger.Warn("voice message send failed", "err", err)
	}
}
