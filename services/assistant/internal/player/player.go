// Package player plays synthesized speech through an external command.
package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"jarvisai/internal/assistant"
)

const waitDelay = time.Second

// CommandPlayer pipes MP3 audio into a player process such as mpg123 or
// ffplay. Every process it starts is tracked until it exits.
type CommandPlayer struct {
	path   string
	args   []string
	logger *slog.Logger

	mu     sync.Mutex
	active map[*process]struct{}
}

// NewCommandPlayer resolves argv[0] on PATH.
func NewCommandPlayer(argv []string, logger *slog.Logger) (*CommandPlayer, error) {
	if len(argv) == 0 {
		return nil, errors.New("player command required")
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("find player %q: %w", argv[0], err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandPlayer{
		path:   path,
		args:   append([]string(nil), argv[1:]...),
		logger: logger,
		active: make(map[*process]struct{}),
	}, nil
}

func (p *CommandPlayer) Play(ctx context.Context, audio []byte) (assistant.Playback, error) {
	cmd := exec.CommandContext(ctx, p.path, p.args...)
	cmd.Stdin = bytes.NewReader(audio)
	// Children of a killed player may hold the stdin pipe open.
	cmd.WaitDelay = waitDelay
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start player: %w", err)
	}
	proc := &process{cmd: cmd, done: make(chan struct{})}
	p.mu.Lock()
	p.active[proc] = struct{}{}
	p.mu.Unlock()

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		delete(p.active, proc)
		p.mu.Unlock()
		if err != nil && !proc.stopped() && ctx.Err() == nil {
			p.logger.Warn("player exited with error", "err", err)
		}
		close(proc.done)
	}()
	return proc, nil
}

// StopAll kills every player process still running.
func (p *CommandPlayer) StopAll() {
	p.mu.Lock()
	procs := make([]*process, 0, len(p.active))
	for proc := range p.active {
		procs = append(procs, proc)
	}
	p.mu.Unlock()
	for _, proc := range procs {
		proc.Stop()
	}
}

// Active reports how many player processes are running.
func (p *CommandPlayer) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

type process struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu     sync.Mutex
	killed bool
}

func (p *process) Stop() {
	p.mu.Lock()
	if p.killed {
		p.mu.Unlock()
		return
	}
	p.killed = true
	p.mu.Unlock()
	select {
	case <-p.done:
	default:
		_ = p.cmd.Process.Kill()
	}
}

func (p *process) stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

func (p *process) Done() <-chan struct{} { return p.done }

// Silent is the player used when audio output is muted.
type Silent struct{}

func (Silent) Play(context.Context, []byte) (assistant.Playback, error) {
	done := make(chan struct{})
	close(done)
	return silentPlayback(done), nil
}

func (Silent) StopAll() {}

type silentPlayback chan struct{}

func (silentPlayback) Stop()                    {}
func (s silentPlayback) Done() <-chan struct{} { return s }
