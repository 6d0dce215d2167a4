package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root application configuration, read from environment
// variables (a .env file is loaded first in main).
type Config struct {
	Server ServerConfig
	DB     DatabaseConfig
	Log    LogConfig
	Gmail  GmailConfig
	LLM    LLMConfig
}

type ServerConfig struct {
	Host string `env:"SERVER_HOST" env-default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" env-default:"8080"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	DSN string `env:"DATABASE_DSN" env-default:"host=localhost user=postgres password=password dbname=applytrack port=5432 sslmode=disable"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"text"`
}

// GmailConfig controls the optional email watcher. With Enabled false (or
// missing credential files) the watcher stays off and the rest of the
// service runs normally.
type GmailConfig struct {
	Enabled         bool          `env:"GMAIL_ENABLED" env-default:"false"`
	CredentialsFile string        `env:"GMAIL_CREDENTIALS_FILE" env-default:"credentials.json"`
	TokenFile       string        `env:"GMAIL_TOKEN_FILE" env-default:"token.json"`
	WatchOwnerID    string        `env:"GMAIL_WATCH_OWNER_ID" env-default:"default"`
	PollInterval    time.Duration `env:"GMAIL_POLL_INTERVAL" env-default:"15m"`
}

type LLMConfig struct {
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	Model        string `env:"GEMINI_MODEL" env-default:"gemini-2.5-flash"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return &cfg, nil
}
