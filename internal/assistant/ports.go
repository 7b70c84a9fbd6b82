package assistant

import (
	"context"
	"errors"

	"jarvisai/pkg/ai"
	"jarvisai/pkg/speech"
)

// Recognition error codes reported by a Recognizer.
const (
	RecognitionNoSpeech   = "no-speech"
	RecognitionNetwork    = "network"
	RecognitionNotAllowed = "not-allowed"
	RecognitionAborted    = "aborted"
)

var ErrSpeechUnsupported = errors.New("speech capture is not available")

// Completer opens a streamed chat completion.
type Completer interface {
	StreamChat(ctx context.Context, messages []ai.ChatMessage) (ai.Stream, error)
}

// Player starts audio playback. Play must return without waiting for the
// audio to finish.
type Player interface {
	Play(ctx context.Context, audio []byte) (Playback, error)
	// StopAll silences every sound source the player started.
	StopAll()
}

type Playback interface {
	Stop()
	Done() <-chan struct{}
}

// Recognizer captures speech and reports through the sink until Stop.
// Start may be called again after the sink saw OnEnd or OnError.
type Recognizer interface {
	Start(ctx context.Context, sink RecognitionSink) error
	Stop()
}

type RecognitionSink interface {
	OnResult(text string, final bool)
	OnError(code string)
	OnEnd()
}

type NoticeKind string

const NoticePermissionDenied NoticeKind = "permission_denied"

// Notice is a user-facing alert raised by the engine.
type Notice struct {
	Kind NoticeKind
	Text string
}

type Deps struct {
	Completer   Completer
	Synthesizer speech.Synthesizer
	Player      Player
	Recognizer  Recognizer
	Notify      func(Notice)
}
