// Package console drives the assistant engine from a line-oriented terminal.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"jarvisai/internal/assistant"
	"jarvisai/pkg/domain"
)

const (
	prompt         = "> "
	assistantLabel = "Джарвис: "
	userLabel      = "Вы: "
	helpText       = "Команды: /stop (замолчать), /history, /status, /quit"
)

// StatusFunc describes the connected backend for /status.
type StatusFunc func(ctx context.Context) (string, error)

// Console echoes streamed replies as they arrive. Input keeps being read
// while a reply streams, so a new line replaces the pending one.
type Console struct {
	engine *assistant.Engine
	status StatusFunc

	mu  sync.Mutex
	out io.Writer
	// id and n track how much of the latest assistant message is printed;
	// pending means its line is not terminated yet.
	id      string
	n       int
	pending bool

	wg sync.WaitGroup
}

func New(engine *assistant.Engine, out io.Writer, status StatusFunc) *Console {
	return &Console{engine: engine, out: out, status: status}
}

// Run reads lines from in until EOF, /quit or ctx is done, then waits for
// in-flight sends to finish.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	unsubscribe := c.engine.Subscribe(c.render)
	defer unsubscribe()
	defer c.wg.Wait()

	if transcript := c.engine.Transcript(); len(transcript) > 0 {
		greeting := transcript[0]
		c.mu.Lock()
		c.id, c.n = greeting.ID, len(greeting.Text)
		fmt.Fprintf(c.out, "%s%s\n%s\n", assistantLabel, greeting.Text, helpText)
		c.mu.Unlock()
	}
	c.engine.Open()
	c.printPrompt()

	// The reader stops on return; in-flight sends keep ctx.
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-readCtx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			if quit := c.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

func (c *Console) handle(ctx context.Context, line string) (quit bool) {
	switch line {
	case "":
		c.printPrompt()
	case "/quit", "/exit":
		return true
	case "/stop":
		c.engine.StopSpeaking()
		c.printPrompt()
	case "/help":
		c.printf("%s\n", helpText)
		c.printPrompt()
	case "/history":
		for _, m := range c.engine.Transcript() {
			c.printf("%s%s\n", label(m.Sender), m.Text)
		}
		c.printPrompt()
	case "/status":
		c.printStatus(ctx)
		c.printPrompt()
	default:
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			err := c.engine.SendMessage(ctx, line)
			c.finishReply()
			if err != nil && !errors.Is(err, context.Canceled) {
				c.printf("ошибка: %v\n", err)
			}
			c.printPrompt()
		}()
	}
	return false
}

func (c *Console) printStatus(ctx context.Context) {
	if c.status == nil {
		c.printf("статус недоступен\n")
		return
	}
	text, err := c.status(ctx)
	if err != nil {
		c.printf("статус недоступен: %v\n", err)
		return
	}
	c.printf("%s\n", text)
}

// render prints the unseen tail of the latest assistant message.
func (c *Console) render(snap assistant.Snapshot) {
	if len(snap.Messages) == 0 {
		return
	}
	last := snap.Messages[len(snap.Messages)-1]
	if last.Sender != domain.SenderAssistant {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if last.ID != c.id {
		if c.pending {
			fmt.Fprintln(c.out)
		}
		c.id, c.n = last.ID, 0
		c.pending = true
		fmt.Fprint(c.out, assistantLabel)
	}
	if len(last.Text) > c.n {
		fmt.Fprint(c.out, last.Text[c.n:])
		c.n = len(last.Text)
	}
}

func (c *Console) finishReply() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending {
		fmt.Fprintln(c.out)
		c.pending = false
	}
}

func (c *Console) printPrompt() {
	c.printf(prompt)
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func label(sender domain.Sender) string {
	if sender == domain.SenderUser {
		return userLabel
	}
	return assistantLabel
}
