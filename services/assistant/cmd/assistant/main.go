package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"jarvisai/internal/assistant"
	"jarvisai/internal/util"
	"jarvisai/services/assistant/internal/config"
	"jarvisai/services/assistant/internal/console"
	"jarvisai/services/assistant/internal/player"
	"jarvisai/services/assistant/internal/siteclient"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr or a file so they do not interleave with replies.
	var logOut io.Writer = os.Stderr
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	logger := util.InitLoggerTo(logOut, cfg.LogLevel, "assistant")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := siteclient.NewClient(cfg.SiteURL, cfg.RequestTimeoutDuration())

	var out assistant.Player = player.Silent{}
	if !cfg.Mute {
		p, err := player.NewCommandPlayer(config.PlayerArgs(cfg.PlayerCommand), logger)
		if err != nil {
			logger.Warn("audio disabled", "err", err)
		} else {
			out = p
		}
	}

	engineCfg := assistant.DefaultConfig()
	engineCfg.SpeechRate = cfg.SpeechRate
	engine := assistant.New(assistant.Deps{
		Completer:   client,
		Synthesizer: client,
		Player:      out,
		Notify: func(n assistant.Notice) {
			fmt.Fprintln(os.Stderr, n.Text)
		},
	}, engineCfg, logger)
	defer engine.Close()

	status := func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		st, err := client.Status(ctx)
		if err != nil {
			return "", err
		}
		return describeStatus(cfg.SiteURL, st), nil
	}

	if err := console.New(engine, os.Stdout, status).Run(ctx, os.Stdin); err != nil {
		logger.Error("console stopped", "err", err)
	}
}

func describeStatus(siteURL string, st siteclient.ChatStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)", st.Message, siteURL)
	if st.Providers.Primary != "" {
		fmt.Fprintf(&b, "\n  primary: %s", st.Providers.Primary)
	}
	if st.Providers.Fallback != "" {
		fmt.Fprintf(&b, "\n  fallback: %s", st.Providers.Fallback)
	}
	names := make([]string, 0, len(st.Providers.Models))
	for name := range st.Providers.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "\n  %s model: %s", name, st.Providers.Models[name])
	}
	return b.String()
}
