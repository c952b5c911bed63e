package app

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	env "github.com/Netflix/go-env"
)

// History backends. "none" keeps history in memory only.
const (
	HistorySQLite = "sqlite"
	HistoryRedis  = "redis"
	HistoryNone   = "none"
)

// Config defines how the broadcast server runs. Every field has an
// environment default; cmd/server layers flag overrides on top.
type Config struct {
	Addr   string `env:"CHATRELAY_ADDR,default=:8080"`
	WSPath string `env:"CHATRELAY_WS_PATH,default=/ws"`
	DBPath string `env:"CHATRELAY_DB_PATH"`

	HistoryBackend string `env:"CHATRELAY_HISTORY,default=sqlite"`
	HistoryLimit   int    `env:"CHATRELAY_HISTORY_LIMIT,default=100"`
	RedisAddr      string `env:"CHATRELAY_REDIS_ADDR,default=localhost:6379"`

	TypingTTLSeconds int  `env:"CHATRELAY_TYPING_TTL_SECONDS,default=6"`
	TokenTTLHours    int  `env:"CHATRELAY_TOKEN_TTL_HOURS,default=24"`
	AllowAnonymous   bool `env:"CHATRELAY_ALLOW_ANONYMOUS,default=false"`

	LogLevel string `env:"CHATRELAY_LOG_LEVEL,default=info"`
}

// LoadConfig reads the environment and fills in the database path default.
func LoadConfig() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	return cfg, nil
}

func (c Config) TypingTTL() time.Duration {
	return time.Duration(c.TypingTTLSeconds) * time.Second
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

// Validate rejects option combinations RunServer cannot honor.
func (c Config) Validate() error {
	switch c.HistoryBackend {
	case HistorySQLite, HistoryRedis, HistoryNone:
	default:
		return fmt.Errorf("unknown history backend %q", c.HistoryBackend)
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}

// DefaultDBPath returns a per-user data path for the bundled SQLite file.
func DefaultDBPath() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatrelay", "chatrelay.db")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Chatrelay", "chatrelay.db")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Chatrelay", "chatrelay.db")
		}
		return filepath.Join(home, ".local", "share", "chatrelay", "chatrelay.db")
	}
	return filepath.Join(".", ".chatrelay", "chatrelay.db")
}

// NormalizeWSPath guarantees the websocket path starts with '/' and falls
// back to /ws when empty.
func NormalizeWSPath(path string) string {
	if path == "" {
		return "/ws"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}
