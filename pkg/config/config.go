// Package config loads console configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/portfolia/console/pkg/chat"
	"github.com/portfolia/console/pkg/gateway"
)

// Prefix is the environment variable prefix, e.g. PORTFOLIA_API_BASE_URL.
const Prefix = "PORTFOLIA"

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

const logFileName = "portfolia.log"

// Config holds all console configuration.
type Config struct {
	APIBaseURL  string        `envconfig:"API_BASE_URL"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"0s"`
	Store       string        `envconfig:"STORE" default:"file"`
	StateDir    string        `envconfig:"STATE_DIR"`
	Greeting    string        `envconfig:"GREETING"`
	Transcripts bool          `envconfig:"TRANSCRIPTS" default:"false"`
	Profile     string        `envconfig:"PROFILE"`
	Logging     LogConfig
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE"`
}

// LoadDotEnv loads .env files into the environment. A missing file is not
// an error; values already set in the environment win.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to load env file", "file", f, "error", err)
		}
	}
}

// Load loads configuration from environment variables and fills in defaults
// that depend on the user's home directory.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// The web client's variable is honoured so one .env serves both.
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = strings.TrimSpace(os.Getenv("VITE_API_BASE_URL"))
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = gateway.DefaultBaseURL
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	if cfg.Greeting == "" {
		cfg.Greeting = chat.DefaultGreeting
	}

	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.StateDir = filepath.Join(home, ".portfolia")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.StateDir, logFileName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyFlags overrides the environment with command-line values. Empty
// values are ignored. A log file left at its default follows the state dir.
func (c *Config) ApplyFlags(baseURL, stateDir string) error {
	if baseURL != "" {
		c.APIBaseURL = strings.TrimRight(baseURL, "/")
	}
	if stateDir != "" {
		if c.Logging.File == filepath.Join(c.StateDir, logFileName) {
			c.Logging.File = filepath.Join(stateDir, logFileName)
		}
		c.StateDir = stateDir
	}
	return c.Validate()
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("invalid %s_STORE value %q: want %q or %q", Prefix, c.Store, StoreFile, StoreSQLite)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("invalid %s_HTTP_TIMEOUT value %s", Prefix, c.HTTPTimeout)
	}
	if !strings.HasPrefix(c.APIBaseURL, "http://") && !strings.HasPrefix(c.APIBaseURL, "https://") {
		return fmt.Errorf("invalid API base URL %q: must start with http:// or https://", c.APIBaseURL)
	}
	return nil
}

// StatePath returns the durable slot location for the configured backend.
func (c *Config) StatePath() string {
	if c.Store == StoreSQLite {
		return filepath.Join(c.StateDir, "state.db")
	}
	return filepath.Join(c.StateDir, "state.json")
}

// TranscriptDir is where chat transcripts are written when enabled.
func (c *Config) TranscriptDir() string {
	return filepath.Join(c.StateDir, "transcripts")
}

// LogLevel parses Logging.Level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
