package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"jarvisai/internal/checkout"
	"jarvisai/internal/util"
	"jarvisai/pkg/auth"
	"jarvisai/pkg/events"
	"jarvisai/services/site/internal/app"
	"jarvisai/services/site/internal/config"
	"jarvisai/services/site/internal/server"
)

const (
	janitorInterval = 10 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := util.InitLogger(cfg.LogLevel, "site")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cl closers
	defer cl.closeAll(logger)

	store, err := openKV(cfg, &cl)
	if err != nil {
		util.Fatal("failed to open kv store", "backend", cfg.KVBackend, "err", err)
	}
	router, err := buildRouter(cfg, logger)
	if err != nil {
		util.Fatal("failed to init chat providers", "err", err)
	}
	synth, err := buildSynthesizer(cfg, logger, &cl)
	if err != nil {
		util.Fatal("failed to init speech synthesis", "err", err)
	}
	publisher, err := buildPublisher(cfg, logger)
	if err != nil {
		util.Fatal("failed to init event publisher", "publisher", cfg.EventsPublisher, "err", err)
	}
	cl = append(cl, publisher)
	dispatcher := events.NewDispatcher(publisher, cfg.EventsBuffer, logger)

	tokens, err := auth.NewAdminTokens(cfg.AdminTokenSecret, auth.AdminTokenOptions{})
	if err != nil {
		util.Fatal("failed to init admin tokens", "err", err)
	}
	submitDelay, err := config.ParseDuration(cfg.SubmitDelay, checkout.DefaultSubmitDelay)
	if err != nil {
		util.Fatal("invalid submitDelay", "err", err)
	}
	hold, err := config.ParseDuration(cfg.ConfirmationHold, checkout.DefaultConfirmationHold)
	if err != nil {
		util.Fatal("invalid confirmationHold", "err", err)
	}
	idle, err := config.ParseDuration(cfg.VisitorIdleTTL, 24*time.Hour)
	if err != nil {
		util.Fatal("invalid visitorIdleTTL", "err", err)
	}

	appCore, err := app.New(ctx, app.Config{
		KV:              store,
		Chat:            router,
		Speech:          synth,
		AdminCredential: auth.Credential{Plain: cfg.AdminPassword, Hash: cfg.AdminPasswordHash},
		AdminTokens:     tokens,
		Events:          dispatcher,
		Checkout: checkout.Options{
			SubmitDelay:      submitDelay,
			ConfirmationHold: hold,
			Logger:           logger,
		},
		Logger: logger,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}
	defer appCore.Close()

	proxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		util.Fatal("invalid trusted proxy cidrs", "err", err)
	}
	httpServer, err := server.New(server.Config{
		App:                          appCore,
		TrustedProxies:               proxies,
		RedisAddr:                    cfg.RedisAddr,
		RedisPassword:                cfg.RedisPassword,
		ChatRateLimitPerMinute:       cfg.ChatRateLimitPerMinute,
		TTSRateLimitPerMinute:        cfg.TTSRateLimitPerMinute,
		AdminLoginRateLimitPerMinute: cfg.AdminLoginRateLimitPerMinute,
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}
	cl = append(cl, httpServer)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("site server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return appCore.RunJanitor(gctx, janitorInterval, idle) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", "err", err)
	}
	logger.Info("site server stopped")
}
