package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"jarvisai/pkg/ai"
)

// ConfigPath is the default config location, overridable with JARVIS_SITE_CONFIG.
var ConfigPath = envOr("JARVIS_SITE_CONFIG", "config.yaml")

// maxOpenRouterKeys bounds the OPENROUTER_API_KEY_<n> pool.
const maxOpenRouterKeys = 8

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port              string   `yaml:"port"`
	LogLevel          string   `yaml:"logLevel"`
	SiteURL           string   `yaml:"siteURL"`
	TrustedProxyCIDRs []string `yaml:"trustedProxyCidrs"`

	// KV backend: memory, redis or postgres.
	KVBackend   string `yaml:"kvBackend"`
	KVPrefix    string `yaml:"kvPrefix"`
	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	ChatRateLimitPerMinute       int `yaml:"chatRateLimitPerMinute"`
	TTSRateLimitPerMinute        int `yaml:"ttsRateLimitPerMinute"`
	AdminLoginRateLimitPerMinute int `yaml:"adminLoginRateLimitPerMinute"`

	AIProvider        string    `yaml:"aiProvider"`
	FallbackProvider  string    `yaml:"fallbackProvider"`
	GroqBaseURL       string    `yaml:"groqBaseURL"`
	GroqAPIKey        string    `yaml:"groqAPIKey"`
	GroqModel         string    `yaml:"groqModel"`
	OpenRouterBaseURL string    `yaml:"openRouterBaseURL"`
	OpenRouterAPIKeys []string  `yaml:"openRouterAPIKeys"`
	OpenRouterModel   string    `yaml:"openRouterModel"`
	OllamaBaseURL     string    `yaml:"ollamaBaseURL"`
	OllamaModel       string    `yaml:"ollamaModel"`
	AITimeout         string    `yaml:"aiTimeout"`
	AIParams          ai.Params `yaml:"aiParams"`

	TTSBaseURL  string `yaml:"ttsBaseURL"`
	TTSAPIKey   string `yaml:"ttsAPIKey"`
	TTSModel    string `yaml:"ttsModel"`
	TTSCache    string `yaml:"ttsCache"` // none, redis or minio
	TTSCacheTTL string `yaml:"ttsCacheTTL"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	AdminPassword     string `yaml:"adminPassword"`
	AdminPasswordHash string `yaml:"adminPasswordHash"`
	AdminTokenSecret  string `yaml:"adminTokenSecret"`

	// Event publisher: log, amqp or redis.
	EventsPublisher string `yaml:"eventsPublisher"`
	AMQPURL         string `yaml:"amqpURL"`
	AMQPExchange    string `yaml:"amqpExchange"`
	EventsStream    string `yaml:"eventsStream"`
	EventsBuffer    int    `yaml:"eventsBuffer"`

	SubmitDelay      string `yaml:"submitDelay"`
	ConfirmationHold string `yaml:"confirmationHold"`
	// Visitors idle longer than this are dropped from memory.
	VisitorIdleTTL   string `yaml:"visitorIdleTTL"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	return parse(data)
}

// parse decodes over the defaults so a partial aiParams block keeps the
// remaining sampling settings.
func parse(data []byte) (FileConfig, error) {
	cfg := FileConfig{AIParams: ai.DefaultParams()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("JARVIS_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("JARVIS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("JARVIS_SITE_URL"); v != "" {
		cfg.SiteURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("JARVIS_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("JARVIS_KV_BACKEND"); v != "" {
		cfg.KVBackend = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	overrideInt(&cfg.ChatRateLimitPerMinute, "JARVIS_CHAT_RATE_LIMIT_PER_MINUTE")
	overrideInt(&cfg.TTSRateLimitPerMinute, "JARVIS_TTS_RATE_LIMIT_PER_MINUTE")
	overrideInt(&cfg.AdminLoginRateLimitPerMinute, "JARVIS_ADMIN_LOGIN_RATE_LIMIT_PER_MINUTE")

	if v := os.Getenv("AI_PROVIDER"); v != "" {
		cfg.AIProvider = strings.TrimSpace(v)
	}
	if v := os.Getenv("FALLBACK_PROVIDER"); v != "" {
		cfg.FallbackProvider = strings.TrimSpace(v)
	}
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		cfg.GroqAPIKey = v
	}
	if v := os.Getenv("AI_MODEL"); v != "" {
		cfg.GroqModel = v
	}
	if v := os.Getenv("FALLBACK_MODEL"); v != "" {
		cfg.OpenRouterModel = v
	}
	if keys := openRouterKeysFromEnv(); len(keys) > 0 {
		cfg.OpenRouterAPIKeys = keys
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.OllamaBaseURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.OllamaModel = v
	}
	if v := os.Getenv("AI_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.AIParams.MaxTokens = n
		}
	}
	if v := os.Getenv("AI_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.AIParams.Temperature = f
		}
	}
	if v := os.Getenv("AI_TOP_P"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.AIParams.TopP = f
		}
	}

	if v := os.Getenv("TTS_BASE_URL"); v != "" {
		cfg.TTSBaseURL = v
	}
	if v := os.Getenv("TTS_API_KEY"); v != "" {
		cfg.TTSAPIKey = v
	}
	if v := os.Getenv("JARVIS_TTS_CACHE"); v != "" {
		cfg.TTSCache = strings.TrimSpace(v)
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}

	if v := os.Getenv("JARVIS_ADMIN_PASSWORD"); v != "" {
		cfg.AdminPassword = v
	}
	if v := os.Getenv("JARVIS_ADMIN_PASSWORD_HASH"); v != "" {
		cfg.AdminPasswordHash = v
	}
	if v := os.Getenv("JARVIS_ADMIN_TOKEN_SECRET"); v != "" {
		cfg.AdminTokenSecret = v
	}

	if v := os.Getenv("JARVIS_EVENTS_PUBLISHER"); v != "" {
		cfg.EventsPublisher = strings.TrimSpace(v)
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
}

func applyDefaults(cfg *FileConfig) {
	cfg.KVBackend = strings.ToLower(strings.TrimSpace(cfg.KVBackend))
	if cfg.KVBackend == "" {
		cfg.KVBackend = "memory"
	}
	if cfg.AIProvider == "" {
		cfg.AIProvider = "groq"
	}
	if cfg.FallbackProvider == "" {
		cfg.FallbackProvider = "openrouter"
	}
	if cfg.GroqBaseURL == "" {
		cfg.GroqBaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.GroqModel == "" {
		cfg.GroqModel = "llama-3.3-70b-versatile"
	}
	if cfg.OpenRouterBaseURL == "" {
		cfg.OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.OpenRouterModel == "" {
		cfg.OpenRouterModel = "meta-llama/llama-3.2-3b-instruct:free"
	}
	cfg.TTSCache = strings.ToLower(strings.TrimSpace(cfg.TTSCache))
	if cfg.TTSCache == "" {
		cfg.TTSCache = "none"
	}
	cfg.EventsPublisher = strings.ToLower(strings.TrimSpace(cfg.EventsPublisher))
	if cfg.EventsPublisher == "" {
		cfg.EventsPublisher = "log"
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or JARVIS_PORT)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for distributed rate limiting")
	}
	switch cfg.KVBackend {
	case "memory", "redis":
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required for kvBackend postgres (set in config.yaml or DATABASE_URL)")
		}
	default:
		return fmt.Errorf("config: unknown kvBackend %q", cfg.KVBackend)
	}
	for _, name := range []string{cfg.AIProvider, cfg.FallbackProvider} {
		switch name {
		case "groq", "openrouter", "ollama", "none":
		default:
			return fmt.Errorf("config: unknown AI provider %q", name)
		}
	}
	if cfg.AIProvider == "none" && cfg.FallbackProvider == "none" {
		return errors.New("config: at least one AI provider is required")
	}
	switch cfg.TTSCache {
	case "none", "redis":
	case "minio":
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
			return errors.New("config: minioEndpoint and minioBucket are required for ttsCache minio")
		}
	default:
		return fmt.Errorf("config: unknown ttsCache %q", cfg.TTSCache)
	}
	switch cfg.EventsPublisher {
	case "log", "redis":
	case "amqp":
		if strings.TrimSpace(cfg.AMQPURL) == "" {
			return errors.New("config: amqpURL is required for eventsPublisher amqp (set in config.yaml or AMQP_URL)")
		}
	default:
		return fmt.Errorf("config: unknown eventsPublisher %q", cfg.EventsPublisher)
	}
	if cfg.AdminPassword == "" && cfg.AdminPasswordHash == "" {
		return errors.New("config: adminPassword or adminPasswordHash is required (JARVIS_ADMIN_PASSWORD)")
	}
	if len(cfg.AdminTokenSecret) < 16 {
		return errors.New("config: adminTokenSecret must be at least 16 characters (JARVIS_ADMIN_TOKEN_SECRET)")
	}
	if cfg.ChatRateLimitPerMinute < 0 || cfg.TTSRateLimitPerMinute < 0 || cfg.AdminLoginRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	for name, v := range map[string]string{
		"aiTimeout":        cfg.AITimeout,
		"ttsCacheTTL":      cfg.TTSCacheTTL,
		"submitDelay":      cfg.SubmitDelay,
		"confirmationHold": cfg.ConfirmationHold,
		"visitorIdleTTL":   cfg.VisitorIdleTTL,
	} {
		if _, err := ParseDuration(v, 0); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return nil
}

// ParseDuration parses an optional duration string, returning def when empty.
func ParseDuration(value string, def time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", value)
	}
	return d, nil
}

func openRouterKeysFromEnv() []string {
	var keys []string
	if v := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")); v != "" {
		keys = append(keys, v)
	}
	for i := 1; i <= maxOpenRouterKeys; i++ {
		if v := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY_" + strconv.Itoa(i))); v != "" {
			keys = append(keys, v)
		}
	}
	return keys
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
