package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location, overridable with JARVIS_ASSISTANT_CONFIG.
var ConfigPath = envOr("JARVIS_ASSISTANT_CONFIG", "assistant.yaml")

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	SiteURL  string `yaml:"siteURL"`
	LogLevel string `yaml:"logLevel"`
	LogFile  string `yaml:"logFile"`

	// PlayerCommand reads MP3 audio on stdin, e.g. "mpg123 -q -".
	PlayerCommand string `yaml:"playerCommand"`
	Mute          bool   `yaml:"mute"`
	SpeechRate    string `yaml:"speechRate"`

	RequestTimeout string `yaml:"requestTimeout"`
}

// Load reads config from path. A missing file is not an error; the
// terminal client runs on defaults and environment alone.
func Load(path string) (FileConfig, error) {
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return FileConfig{}, fmt.Errorf("read config: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (FileConfig, error) {
	cfg := FileConfig{}
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
	if v := os.Getenv("JARVIS_SITE_URL"); v != "" {
		cfg.SiteURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("JARVIS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("JARVIS_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("JARVIS_PLAYER"); v != "" {
		cfg.PlayerCommand = v
	}
	if v := os.Getenv("JARVIS_MUTE"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Mute = b
		}
	}
	if v := os.Getenv("JARVIS_SPEECH_RATE"); v != "" {
		cfg.SpeechRate = strings.TrimSpace(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.SiteURL == "" {
		cfg.SiteURL = "http://localhost:8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "warn"
	}
	if cfg.PlayerCommand == "" {
		cfg.PlayerCommand = "mpg123 -q -"
	}
	if cfg.SpeechRate == "" {
		cfg.SpeechRate = "0.95"
	}
	if cfg.RequestTimeout == "" {
		cfg.RequestTimeout = "2m"
	}
}

func validateConfig(cfg FileConfig) error {
	u, err := url.Parse(cfg.SiteURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("siteURL must be an absolute URL, got %q", cfg.SiteURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("siteURL scheme must be http or https, got %q", u.Scheme)
	}
	if !cfg.Mute && len(PlayerArgs(cfg.PlayerCommand)) == 0 {
		return errors.New("playerCommand is required unless mute is set")
	}
	if rate, err := strconv.ParseFloat(cfg.SpeechRate, 64); err != nil || rate < 0.25 || rate > 4 {
		return fmt.Errorf("speechRate must be a number between 0.25 and 4, got %q", cfg.SpeechRate)
	}
	if d, err := time.ParseDuration(cfg.RequestTimeout); err != nil || d <= 0 {
		return fmt.Errorf("requestTimeout must be a positive duration, got %q", cfg.RequestTimeout)
	}
	return nil
}

// RequestTimeoutDuration returns the validated request timeout.
func (c FileConfig) RequestTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// PlayerArgs splits a player command line on whitespace.
func PlayerArgs(command string) []string {
	return strings.Fields(command)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
