package assistant

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"jarvisai/pkg/ai"
	"jarvisai/pkg/speech"
)

// chanStream yields chunks until the channel closes or ctx is cancelled.
type chanStream struct {
	ctx    context.Context
	chunks chan string
	err    error
}

func (s *chanStream) Recv() (string, error) {
	select {
	case <-s.ctx.Done():
		return "", s.ctx.Err()
	case c, ok := <-s.chunks:
		if !ok {
			if s.err != nil {
				return "", s.err
			}
			return "", io.EOF
		}
		return c, nil
	}
}

func (s *chanStream) Close() error { return nil }

type fakeCompleter struct {
	mu      sync.Mutex
	calls   [][]ai.ChatMessage
	respond func(ctx context.Context, call int) (ai.Stream, error)
}

func (f *fakeCompleter) StreamChat(ctx context.Context, msgs []ai.ChatMessage) (ai.Stream, error) {
	f.mu.Lock()
	f.calls = append(f.calls, msgs)
	call := len(f.calls)
	f.mu.Unlock()
	return f.respond(ctx, call)
}

func (f *fakeCompleter) history(i int) []ai.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func replyWith(chunks ...string) func(context.Context, int) (ai.Stream, error) {
	return func(ctx context.Context, _ int) (ai.Stream, error) {
		ch := make(chan string, len(chunks))
		for _, c := range chunks {
			ch <- c
		}
		close(ch)
		return &chanStream{ctx: ctx, chunks: ch}, nil
	}
}

type fakeSynth struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeSynth) Synthesize(_ context.Context, req speech.Request) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, req.Text)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(req.Text), nil
}

func (f *fakeSynth) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakePlayback struct {
	player *fakePlayer
	text   string
	once   sync.Once
	done   chan struct{}
}

func (p *fakePlayback) Stop() {
	p.once.Do(func() {
		close(p.done)
		p.player.remove(p)
	})
}

func (p *fakePlayback) Done() <-chan struct{} { return p.done }

type fakePlayer struct {
	mu       sync.Mutex
	active   []*fakePlayback
	started  []string
	stopAlls int
}

func (f *fakePlayer) Play(_ context.Context, audio []byte) (Playback, error) {
	pb := &fakePlayback{player: f, text: string(audio), done: make(chan struct{})}
	f.mu.Lock()
	f.active = append(f.active, pb)
	f.started = append(f.started, pb.text)
	f.mu.Unlock()
	return pb, nil
}

func (f *fakePlayer) StopAll() {
	f.mu.Lock()
	active := append([]*fakePlayback(nil), f.active...)
	f.stopAlls++
	f.mu.Unlock()
	for _, pb := range active {
		pb.Stop()
	}
}

func (f *fakePlayer) remove(pb *fakePlayback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.active {
		if p == pb {
			f.active = append(f.active[:i], f.active[i+1:]...)
			return
		}
	}
}

func (f *fakePlayer) playing() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.active))
	for _, p := range f.active {
		out = append(out, p.text)
	}
	return out
}

type fakeRecognizer struct {
	mu       sync.Mutex
	sink     RecognitionSink
	starts   int
	stops    int
	failFrom int
}

func (f *fakeRecognizer) Start(_ context.Context, sink RecognitionSink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.failFrom > 0 && f.starts >= f.failFrom {
		return errors.New("recognizer busy")
	}
	f.sink = sink
	return nil
}

func (f *fakeRecognizer) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakeRecognizer) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

func (f *fakeRecognizer) current() RecognitionSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sink
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.SpeakDelay = time.Millisecond
	cfg.FallbackSpeakDelay = time.Millisecond
	cfg.GreetingDelay = time.Millisecond
	cfg.SilenceTimeout = 30 * time.Millisecond
	cfg.NoSpeechRestart = time.Millisecond
	cfg.NetworkRestart = time.Millisecond
	cfg.EndRestart = time.Millisecond
	cfg.Rand = func(int) int { return 1 }
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
