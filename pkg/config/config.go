package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

var ErrUnknownBackend = errors.New("unknown storage backend")

type StorageConfig struct {
	Backend     string
	RedisURI    string
	DatabaseURL string
	MongoURI    string
	MongoDB     string
}

type ModerationConfig struct {
	APIKey string
	APIURL string
	Model  string
}

// Enabled reports whether posts are sent to the classifier before being stored.
func (m ModerationConfig) Enabled() bool {
	return m.APIKey != ""
}

type RatelimitConfig struct {
	Posts   int
	Seconds int
}

type Config struct {
	Port            int
	NodeId          int
	MaxTextLength   int
	RealIPHeader    string
	AllowedOrigins  []string
	BlockedNetworks []string
	SentryDSN       string
	LogLevel        logrus.Level
	LogFormat       string

	Storage    StorageConfig
	Moderation ModerationConfig
	Ratelimit  RatelimitConfig
}

// Default returns the configuration used when no environment variables are set.
func Default() *Config {
	return &Config{
		Port:           3000,
		MaxTextLength:  255,
		AllowedOrigins: []string{"*"},
		LogLevel:       logrus.InfoLevel,
		LogFormat:      "text",
		Storage: StorageConfig{
			Backend: BackendMemory,
			MongoDB: "misstter",
		},
		Moderation: ModerationConfig{
			APIURL: "https://api.openai.com/v1",
			Model:  "gpt-4o-mini",
		},
		Ratelimit: RatelimitConfig{
			Posts:   10,
			Seconds: 60,
		},
	}
}

// Load reads .env files (if any) and the process environment on top of Default.
func Load() (*Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := Default()
	var err error

	if cfg.Port, err = intEnv("HTTP_PORT", cfg.Port); err != nil {
		return nil, err
	}
	if cfg.NodeId, err = intEnv("NODE_ID", cfg.NodeId); err != nil {
		return nil, err
	}
	if cfg.MaxTextLength, err = intEnv("MAX_TEXT_LENGTH", cfg.MaxTextLength); err != nil {
		return nil, err
	}
	if cfg.MaxTextLength <= 0 {
		return nil, fmt.Errorf("MAX_TEXT_LENGTH must be positive, got %d", cfg.MaxTextLength)
	}
	if cfg.Ratelimit.Posts, err = intEnv("POST_RATELIMIT", cfg.Ratelimit.Posts); err != nil {
		return nil, err
	}
	if cfg.Ratelimit.Seconds, err = intEnv("POST_RATELIMIT_SECONDS", cfg.Ratelimit.Seconds); err != nil {
		return nil, err
	}
	if cfg.Ratelimit.Posts > 0 && cfg.Ratelimit.Seconds <= 0 {
		return nil, fmt.Errorf("POST_RATELIMIT_SECONDS must be positive, got %d", cfg.Ratelimit.Seconds)
	}

	cfg.RealIPHeader = os.Getenv("REAL_IP_HEADER")
	cfg.SentryDSN = os.Getenv("SENTRY_DSN")
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}
	if networks := os.Getenv("BLOCKED_NETWORKS"); networks != "" {
		cfg.BlockedNetworks = splitList(networks)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		if cfg.LogLevel, err = logrus.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		if format != "text" && format != "json" {
			return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", format)
		}
		cfg.LogFormat = format
	}

	cfg.Moderation.APIKey = os.Getenv("MODERATION_API_KEY")
	cfg.Moderation.APIURL = getEnvOrDefault("MODERATION_API_URL", cfg.Moderation.APIURL)
	cfg.Moderation.Model = getEnvOrDefault("MODERATION_MODEL", cfg.Moderation.Model)

	cfg.Storage.Backend = strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", cfg.Storage.Backend))
	cfg.Storage.RedisURI = os.Getenv("REDIS_URI")
	cfg.Storage.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.Storage.MongoURI = os.Getenv("MONGO_URI")
	cfg.Storage.MongoDB = getEnvOrDefault("MONGO_DB", cfg.Storage.MongoDB)

	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (s StorageConfig) validate() error {
	switch s.Backend {
	case BackendMemory:
	case BackendRedis:
		if s.RedisURI == "" {
			return fmt.Errorf("REDIS_URI is required when STORAGE_BACKEND is %s", s.Backend)
		}
	case BackendPostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND is %s", s.Backend)
		}
	case BackendMongo:
		if s.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORAGE_BACKEND is %s", s.Backend)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, s.Backend)
	}
	return nil
}

// NewLogger builds the process logger from the level and format settings.
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(c.LogLevel)
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func intEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
