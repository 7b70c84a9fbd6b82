package assistant

import (
	"jarvisai/pkg/speech"
)

// speak synthesizes text and plays it, replacing whatever is playing. Only
// the most recent request may start audio.
func (e *Engine) speak(text string) {
	if e.deps.Synthesizer == nil || e.deps.Player == nil {
		return
	}
	e.mu.Lock()
	e.speechGen++
	gen := e.speechGen
	prev := e.playback
	e.playback = nil
	e.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	audio, err := e.deps.Synthesizer.Synthesize(e.rootCtx, speech.Request{Text: text, Rate: e.cfg.SpeechRate})
	if err != nil {
		if e.rootCtx.Err() == nil {
			e.logger.Warn("speech synthesis failed", "err", err)
		}
		return
	}

	e.mu.Lock()
	if gen != e.speechGen || e.closed {
		e.mu.Unlock()
		return
	}
	pb, err := e.deps.Player.Play(e.rootCtx, audio)
	if err != nil {
		e.mu.Unlock()
		e.logger.Warn("speech playback failed", "err", err)
		return
	}
	e.playback = pb
	e.goLocked(func() { e.awaitPlayback(pb) })
	e.mu.Unlock()
	e.publish()
}

func (e *Engine) awaitPlayback(pb Playback) {
	select {
	case <-pb.Done():
	case <-e.rootCtx.Done():
	}
	e.mu.Lock()
	if e.playback == pb {
		e.playback = nil
	}
	e.mu.Unlock()
	e.publish()
}

// StopSpeaking halts the active playback and any other sound the player
// started, and discards syntheses still in flight.
func (e *Engine) StopSpeaking() {
	e.mu.Lock()
	e.speechGen++
	pb := e.playback
	e.playback = nil
	e.mu.Unlock()
	if pb != nil {
		pb.Stop()
	}
	if e.deps.Player != nil {
		e.deps.Player.StopAll()
	}
	e.publish()
}
