package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"jarvisai/pkg/ai"
	"jarvisai/pkg/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	engine     *Engine
	completer  *fakeCompleter
	synth      *fakeSynth
	player     *fakePlayer
	recognizer *fakeRecognizer
	notices    chan Notice
}

func newHarness(t *testing.T, respond func(context.Context, int) (ai.Stream, error)) *harness {
	t.Helper()
	h := &harness{
		completer:  &fakeCompleter{respond: respond},
		synth:      &fakeSynth{},
		player:     &fakePlayer{},
		recognizer: &fakeRecognizer{},
		notices:    make(chan Notice, 4),
	}
	h.engine = New(Deps{
		Completer:   h.completer,
		Synthesizer: h.synth,
		Player:      h.player,
		Recognizer:  h.recognizer,
		Notify:      func(n Notice) { h.notices <- n },
	}, fastConfig(), nil)
	t.Cleanup(h.engine.Close)
	return h
}

func TestInitialTranscriptIsGreeting(t *testing.T) {
	h := newHarness(t, replyWith())
	msgs := h.engine.Transcript()
	if len(msgs) != 1 || msgs[0].Text != Greeting || msgs[0].Sender != domain.SenderAssistant {
		t.Fatalf("unexpected initial transcript: %+v", msgs)
	}
}

func TestSendMessageStreamsAndSpeaksOnce(t *testing.T) {
	h := newHarness(t, replyWith("Тариф ", "PRO ", "стоит 4 000 000 сум."))
	var mu sync.Mutex
	var partials []string
	h.engine.Subscribe(func(s Snapshot) {
		last := s.Messages[len(s.Messages)-1]
		if last.Sender == domain.SenderAssistant {
			mu.Lock()
			partials = append(partials, last.Text)
			mu.Unlock()
		}
	})

	if err := h.engine.SendMessage(context.Background(), "  Сколько стоит PRO?  "); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs := h.engine.Transcript()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[1].Sender != domain.SenderUser || msgs[1].Text != "Сколько стоит PRO?" {
		t.Fatalf("unexpected user message: %+v", msgs[1])
	}
	if msgs[2].Text != "Тариф PRO стоит 4 000 000 сум." {
		t.Fatalf("unexpected reply: %q", msgs[2].Text)
	}
	want := []string{"", "Тариф ", "Тариф PRO ", "Тариф PRO стоит 4 000 000 сум."}
	mu.Lock()
	got := append([]string(nil), partials...)
	mu.Unlock()
	if len(got) < len(want) {
		t.Fatalf("too few updates: %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("deltas applied out of order: %q", got)
		}
	}

	waitFor(t, "reply to be spoken", func() bool { return len(h.synth.spoken()) == 1 })
	time.Sleep(20 * time.Millisecond)
	if spoken := h.synth.spoken(); len(spoken) != 1 || spoken[0] != msgs[2].Text {
		t.Fatalf("reply should be spoken exactly once: %q", spoken)
	}
}

func TestSendMessageBuildsHistory(t *testing.T) {
	h := newHarness(t, replyWith("ok"))
	if err := h.engine.SendMessage(context.Background(), "Привет"); err != nil {
		t.Fatalf("send: %v", err)
	}
	hist := h.completer.history(0)
	if len(hist) != 3 {
		t.Fatalf("expected preamble + greeting + user, got %d", len(hist))
	}
	if hist[0].Role != ai.RoleSystem || hist[1].Role != ai.RoleAssistant || hist[1].Content != Greeting {
		t.Fatalf("unexpected history head: %+v", hist[:2])
	}
	if hist[2].Role != ai.RoleUser || hist[2].Content != "Привет" {
		t.Fatalf("unexpected user turn: %+v", hist[2])
	}
}

func TestEmptyRepliesStayOutOfHistory(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, call int) (ai.Stream, error) {
		if call == 1 {
			return replyWith()(ctx, call)
		}
		return replyWith("ok")(ctx, call)
	})
	if err := h.engine.SendMessage(context.Background(), "один"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := h.engine.SendMessage(context.Background(), "два"); err != nil {
		t.Fatalf("second send: %v", err)
	}
	for _, m := range h.completer.history(1) {
		if m.Role == ai.RoleAssistant && m.Content == "" {
			t.Fatalf("empty assistant turn forwarded: %+v", h.completer.history(1))
		}
	}
	if n := len(h.completer.history(1)); n != 4 {
		t.Fatalf("expected preamble + greeting + two user turns, got %d", n)
	}
}

func TestBlankMessageIsIgnored(t *testing.T) {
	h := newHarness(t, replyWith("never"))
	if err := h.engine.SendMessage(context.Background(), "   "); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(h.engine.Transcript()) != 1 || len(h.completer.calls) != 0 {
		t.Fatalf("blank message must be a no-op")
	}
}

func TestCompletionFailureUsesCannedReply(t *testing.T) {
	h := newHarness(t, func(context.Context, int) (ai.Stream, error) {
		return nil, ai.ErrAllProvidersFailed
	})
	if err := h.engine.SendMessage(context.Background(), "Привет"); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs := h.engine.Transcript()
	last := msgs[len(msgs)-1]
	if last.Sender != domain.SenderAssistant || last.Text != FallbackReplies[1] {
		t.Fatalf("expected canned reply, got %+v", last)
	}
	waitFor(t, "canned reply to be spoken", func() bool { return len(h.synth.spoken()) == 1 })
	if s := h.engine.Snapshot(); s.Awaiting {
		t.Fatalf("engine should be idle after failure")
	}
}

func TestMidStreamFailureAppendsCannedReply(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, _ int) (ai.Stream, error) {
		ch := make(chan string, 1)
		ch <- "Частичный"
		close(ch)
		return &chanStream{ctx: ctx, chunks: ch, err: errors.New("connection reset")}, nil
	})
	if err := h.engine.SendMessage(context.Background(), "Привет"); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs := h.engine.Transcript()
	if len(msgs) != 4 || msgs[2].Text != "Частичный" || msgs[3].Text != FallbackReplies[1] {
		t.Fatalf("unexpected transcript: %+v", msgs)
	}
}

func TestNewSendCancelsInFlightStream(t *testing.T) {
	first := make(chan string, 1)
	first <- "Первый "
	h := newHarness(t, func(ctx context.Context, call int) (ai.Stream, error) {
		if call == 1 {
			return &chanStream{ctx: ctx, chunks: first}, nil
		}
		return replyWith("Второй ответ")(ctx, call)
	})

	done := make(chan error, 1)
	go func() { done <- h.engine.SendMessage(context.Background(), "один") }()
	waitFor(t, "first partial", func() bool {
		msgs := h.engine.Transcript()
		return len(msgs) == 3 && msgs[2].Text == "Первый "
	})

	if err := h.engine.SendMessage(context.Background(), "два"); err != nil {
		t.Fatalf("second send: %v", err)
	}
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("first send should be cancelled, got %v", err)
	}

	msgs := h.engine.Transcript()
	if len(msgs) != 5 || msgs[2].Text != "Первый " || msgs[4].Text != "Второй ответ" {
		t.Fatalf("unexpected transcript: %+v", msgs)
	}
	waitFor(t, "second reply spoken", func() bool { return len(h.synth.spoken()) == 1 })
	time.Sleep(20 * time.Millisecond)
	if spoken := h.synth.spoken(); len(spoken) != 1 || spoken[0] != "Второй ответ" {
		t.Fatalf("only the latest reply may be spoken: %q", spoken)
	}
}

func TestNewPlaybackReplacesActiveOne(t *testing.T) {
	h := newHarness(t, replyWith())
	h.engine.speak("первая")
	h.engine.speak("вторая")
	if playing := h.player.playing(); len(playing) != 1 || playing[0] != "вторая" {
		t.Fatalf("expected exactly one active source, got %q", playing)
	}
	if !h.engine.Snapshot().Speaking {
		t.Fatalf("engine should report speaking")
	}

	h.engine.StopSpeaking()
	if playing := h.player.playing(); len(playing) != 0 {
		t.Fatalf("StopSpeaking should silence everything, got %q", playing)
	}
	waitFor(t, "speaking flag cleared", func() bool { return !h.engine.Snapshot().Speaking })
}

func TestGreetingSpokenOnce(t *testing.T) {
	h := newHarness(t, replyWith())
	h.engine.Open()
	waitFor(t, "greeting spoken", func() bool { return len(h.synth.spoken()) == 1 })
	h.engine.Hide()
	h.engine.Open()
	time.Sleep(20 * time.Millisecond)
	if spoken := h.synth.spoken(); len(spoken) != 1 || spoken[0] != Greeting {
		t.Fatalf("greeting should be spoken once: %q", spoken)
	}
}

func TestSilenceAutoSubmitsExactlyOnce(t *testing.T) {
	h := newHarness(t, replyWith("Отвечаю"))
	if err := h.engine.ToggleRecording(); err != nil {
		t.Fatalf("start recording: %v", err)
	}
	sink := h.recognizer.current()
	sink.OnResult("сколько", false)
	if d := h.engine.Snapshot().Draft; d != "сколько" {
		t.Fatalf("interim text should be the draft, got %q", d)
	}
	sink.OnResult("сколько стоит", true)
	sink.OnResult("сколько стоит MAX", true)

	waitFor(t, "voice message sent", func() bool { return len(h.engine.Transcript()) == 3 })
	time.Sleep(60 * time.Millisecond)

	msgs := h.engine.Transcript()
	if len(msgs) != 3 || msgs[1].Text != "сколько стоит MAX" || msgs[2].Text != "Отвечаю" {
		t.Fatalf("unexpected transcript: %+v", msgs)
	}
	if h.engine.Snapshot().Recording {
		t.Fatalf("recording should stop after auto-submit")
	}
	if _, stops := h.recognizer.counts(); stops != 1 {
		t.Fatalf("recognizer stops = %d, want 1", stops)
	}
}

func TestStopRecordingCancelsSilenceTimer(t *testing.T) {
	h := newHarness(t, replyWith("never"))
	_ = h.engine.StartRecording()
	h.recognizer.current().OnResult("привет", true)
	h.engine.StopRecording()
	time.Sleep(60 * time.Millisecond)
	if len(h.engine.Transcript()) != 1 {
		t.Fatalf("stopping capture must cancel the pending send")
	}
}

func TestRecognitionErrors(t *testing.T) {
	h := newHarness(t, replyWith())
	_ = h.engine.StartRecording()
	sink := h.recognizer.current()

	sink.OnError(RecognitionNoSpeech)
	sink.OnEnd()
	waitFor(t, "restart after no-speech", func() bool { s, _ := h.recognizer.counts(); return s == 2 })
	time.Sleep(10 * time.Millisecond)
	if s, _ := h.recognizer.counts(); s != 2 {
		t.Fatalf("error followed by end should restart once, starts=%d", s)
	}
	if !h.engine.Snapshot().Recording {
		t.Fatalf("no-speech must keep capture active")
	}

	sink.OnError(RecognitionNetwork)
	waitFor(t, "restart after network error", func() bool { s, _ := h.recognizer.counts(); return s == 3 })

	sink.OnError(RecognitionNotAllowed)
	select {
	case n := <-h.notices:
		if n.Kind != NoticePermissionDenied {
			t.Fatalf("unexpected notice: %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatalf("permission denial should notify the user")
	}
	if h.engine.Snapshot().Recording {
		t.Fatalf("not-allowed must halt capture")
	}
}

func TestFailedRestartForcesStop(t *testing.T) {
	h := newHarness(t, replyWith())
	h.recognizer.failFrom = 2
	_ = h.engine.StartRecording()
	h.recognizer.current().OnEnd()
	waitFor(t, "capture stopped", func() bool { return !h.engine.Snapshot().Recording })
}

func TestToggleWithoutRecognizer(t *testing.T) {
	e := New(Deps{Completer: &fakeCompleter{respond: replyWith()}}, fastConfig(), nil)
	defer e.Close()
	if err := e.ToggleRecording(); !errors.Is(err, ErrSpeechUnsupported) {
		t.Fatalf("expected ErrSpeechUnsupported, got %v", err)
	}
}

func TestCloseStopsEverything(t *testing.T) {
	h := newHarness(t, replyWith("ответ"))
	cfg := fastConfig()
	cfg.SpeakDelay = time.Hour
	h.engine.cfg = cfg
	_ = h.engine.StartRecording()
	h.engine.speak("звук")
	if err := h.engine.SendMessage(context.Background(), "привет"); err != nil {
		t.Fatalf("send: %v", err)
	}
	h.engine.Close()
	if len(h.player.playing()) != 0 {
		t.Fatalf("close should stop playback")
	}
	if s := h.engine.Snapshot(); s.Recording || s.Speaking {
		t.Fatalf("close should stop capture and speech: %+v", s)
	}
	if err := h.engine.SendMessage(context.Background(), "after close"); !errors.Is(err, context.Canceled) {
		t.Fatalf("send after close should fail, got %v", err)
	}
}
