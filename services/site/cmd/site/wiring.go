package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"jarvisai/pkg/ai"
	"jarvisai/pkg/events"
	"jarvisai/pkg/kv"
	"jarvisai/pkg/speech"
	"jarvisai/pkg/storage"
	"jarvisai/services/site/internal/config"
)

// closers collects shutdown hooks in acquisition order.
type closers []io.Closer

func (c *closers) closeAll(logger *slog.Logger) {
	for i := len(*c) - 1; i >= 0; i-- {
		if err := (*c)[i].Close(); err != nil {
			logger.Warn("close failed", "err", err)
		}
	}
}

func openKV(cfg config.FileConfig, cl *closers) (kv.Store, error) {
	switch cfg.KVBackend {
	case "redis":
		store, err := kv.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.KVPrefix)
		if err != nil {
			return nil, fmt.Errorf("init redis kv: %w", err)
		}
		*cl = append(*cl, store)
		return store, nil
	case "postgres":
		store, err := kv.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres kv: %w", err)
		}
		*cl = append(*cl, store)
		return kv.WithPrefix(store, cfg.KVPrefix), nil
	default:
		return kv.WithPrefix(kv.NewMemoryStore(), cfg.KVPrefix), nil
	}
}

func buildRouter(cfg config.FileConfig, logger *slog.Logger) (*ai.Router, error) {
	timeout, err := config.ParseDuration(cfg.AITimeout, 120*time.Second)
	if err != nil {
		return nil, err
	}
	primary := buildProvider(cfg, cfg.AIProvider, timeout, logger)
	fallback := buildProvider(cfg, cfg.FallbackProvider, timeout, logger)
	router, err := ai.NewRouter(primary, fallback, logger)
	if err != nil {
		return nil, fmt.Errorf("init chat router (check GROQ_API_KEY / OPENROUTER_API_KEY_n): %w", err)
	}
	for _, p := range router.Providers() {
		logger.Info("chat provider configured", "provider", p.Name(), "model", p.Model())
	}
	return router, nil
}

// buildProvider returns an untyped nil when the provider is disabled or
// missing credentials, so the router skips the slot.
func buildProvider(cfg config.FileConfig, name string, timeout time.Duration, logger *slog.Logger) ai.Provider {
	switch name {
	case "groq":
		if strings.TrimSpace(cfg.GroqAPIKey) == "" {
			logger.Warn("groq provider skipped, no api key")
			return nil
		}
		return ai.NewOpenAICompatProvider(ai.OpenAICompatConfig{
			Name:    "groq",
			BaseURL: cfg.GroqBaseURL,
			APIKeys: []string{cfg.GroqAPIKey},
			Model:   cfg.GroqModel,
			Params:  cfg.AIParams,
			Timeout: timeout,
		})
	case "openrouter":
		if len(cfg.OpenRouterAPIKeys) == 0 {
			logger.Warn("openrouter provider skipped, no api keys")
			return nil
		}
		headers := map[string]string{"X-Title": "JARVIS AI Assistant"}
		if cfg.SiteURL != "" {
			headers["HTTP-Referer"] = cfg.SiteURL
		}
		return ai.NewOpenAICompatProvider(ai.OpenAICompatConfig{
			Name:    "openrouter",
			BaseURL: cfg.OpenRouterBaseURL,
			APIKeys: cfg.OpenRouterAPIKeys,
			Model:   cfg.OpenRouterModel,
			Headers: headers,
			Params:  cfg.AIParams,
			Timeout: timeout,
		})
	case "ollama":
		if strings.TrimSpace(cfg.OllamaModel) == "" {
			logger.Warn("ollama provider skipped, no model")
			return nil
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.AIParams)
	default:
		return nil
	}
}

// buildSynthesizer returns nil when no speech backend is configured.
func buildSynthesizer(cfg config.FileConfig, logger *slog.Logger, cl *closers) (speech.Synthesizer, error) {
	if strings.TrimSpace(cfg.TTSBaseURL) == "" {
		logger.Warn("speech synthesis disabled, ttsBaseURL not set")
		return nil, nil
	}
	inner := speech.NewOpenAIClient(cfg.TTSBaseURL, cfg.TTSAPIKey, cfg.TTSModel, speech.Voice)
	ttl, err := config.ParseDuration(cfg.TTSCacheTTL, speech.CacheTTL)
	if err != nil {
		return nil, err
	}
	switch cfg.TTSCache {
	case "redis":
		cache, err := speech.NewRedisAudioCache(cfg.RedisAddr, cfg.RedisPassword, "jarvis:tts", ttl)
		if err != nil {
			return nil, err
		}
		*cl = append(*cl, cache)
		return speech.NewCachedSynthesizer(inner, cache, logger), nil
	case "minio":
		objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init minio: %w", err)
		}
		return speech.NewCachedSynthesizer(inner, speech.NewObjectAudioCache(objects, "tts", ttl), logger), nil
	default:
		return inner, nil
	}
}

func buildPublisher(cfg config.FileConfig, logger *slog.Logger) (events.Publisher, error) {
	switch cfg.EventsPublisher {
	case "amqp":
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, fmt.Errorf("init amqp publisher: %w", err)
		}
		return pub, nil
	case "redis":
		pub, err := events.NewRedisStreamPublisher(events.RedisStreamConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.EventsStream,
		})
		if err != nil {
			return nil, fmt.Errorf("init redis stream publisher: %w", err)
		}
		return pub, nil
	default:
		return events.NewLogPublisher(logger), nil
	}
}
