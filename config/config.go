// config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Duplicate join policies for QUEUE_DUPLICATE_POLICY.
const (
	DuplicatePolicyReject = "reject"
	DuplicatePolicyIgnore = "ignore"
)

// Config is everything the server and the admin CLI read from the environment.
type Config struct {
	Port           string
	AllowedOrigins []string

	DatabaseDriver string // postgres | sqlite
	DatabaseURL    string

	RedisAddr     string // empty → in-memory queue store
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	JWTSecret        string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	GameServiceToken string

	DuplicatePolicy   string
	GroupSize         int
	GameTTL           time.Duration
	GuestSessionTTL   time.Duration
	DrainInterval     time.Duration
	GuestReapInterval time.Duration

	Archive ArchiveConfig
}

// ArchiveConfig points at an S3-compatible bucket (AWS or Cloudflare R2).
// Archiving is off when Bucket is empty.
type ArchiveConfig struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether match archiving was configured.
func (a ArchiveConfig) Enabled() bool { return a.Bucket != "" }

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg := &Config{
		Port:             getenv("PORT", "5200"),
		DatabaseDriver:   strings.ToLower(getenv("DATABASE_DRIVER", "postgres")),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		GameServiceToken: os.Getenv("GAME_SERVICE_TOKEN"),
		DuplicatePolicy:  strings.ToLower(getenv("QUEUE_DUPLICATE_POLICY", DuplicatePolicyReject)),
		Archive: ArchiveConfig{
			Bucket:          os.Getenv("ARCHIVE_BUCKET"),
			Endpoint:        os.Getenv("ARCHIVE_ENDPOINT"),
			Region:          getenv("ARCHIVE_REGION", "auto"),
			AccessKeyID:     os.Getenv("ARCHIVE_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("ARCHIVE_SECRET_ACCESS_KEY"),
		},
	}

	origins := strings.Split(getenv("ALLOWED_ORIGINS", "http://localhost:3000"), ",")
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	var err error
	if cfg.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RedisTLS, err = boolEnv("REDIS_TLS", false); err != nil {
		return nil, err
	}
	if cfg.GroupSize, err = intEnv("MATCHMAKING_GROUP_SIZE", 8); err != nil {
		return nil, err
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"ACCESS_TOKEN_TTL", time.Hour, &cfg.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL", 7 * 24 * time.Hour, &cfg.RefreshTokenTTL},
		{"GAME_TTL", 600 * time.Second, &cfg.GameTTL},
		{"GUEST_SESSION_TTL", 24 * time.Hour, &cfg.GuestSessionTTL},
		{"DRAIN_INTERVAL", 10 * time.Second, &cfg.DrainInterval},
		{"GUEST_REAP_INTERVAL", 15 * time.Minute, &cfg.GuestReapInterval},
	}
	for _, d := range durations {
		if *d.dst, err = durationEnv(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable not set")
		}
	case "sqlite":
		if c.DatabaseURL == "" {
			c.DatabaseURL = "whoosh.db"
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable not set")
	}
	if c.DuplicatePolicy != DuplicatePolicyReject && c.DuplicatePolicy != DuplicatePolicyIgnore {
		return fmt.Errorf("QUEUE_DUPLICATE_POLICY must be %q or %q, got %q",
			DuplicatePolicyReject, DuplicatePolicyIgnore, c.DuplicatePolicy)
	}
	if c.GroupSize < 2 {
		return fmt.Errorf("MATCHMAKING_GROUP_SIZE must be at least 2, got %d", c.GroupSize)
	}
	return nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
