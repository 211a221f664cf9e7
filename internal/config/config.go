package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/samber/lo"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	Rooms               []string      `envconfig:"ROOMS" default:"general,random,tech,gaming"`
	DefaultRoom         string        `envconfig:"DEFAULT_ROOM" default:"general"`
	HistoryLimit        int           `envconfig:"HISTORY_LIMIT" default:"0"`
	TypingTTL           time.Duration `envconfig:"TYPING_TTL" default:"5s"`
	TypingSweepInterval time.Duration `envconfig:"TYPING_SWEEP_INTERVAL" default:"1s"`
	MaxTextLength       int           `envconfig:"MAX_TEXT_LENGTH" default:"2000"`

	JWTSecret     string        `envconfig:"JWT_SECRET"`
	JWTIssuer     string        `envconfig:"JWT_ISSUER"`
	JWKSIssuerURL string        `envconfig:"JWKS_ISSUER_URL"`
	VerifyTimeout time.Duration `envconfig:"VERIFY_TIMEOUT" default:"5s"`

	RedisURL string `envconfig:"REDIS_URL"`

	RateLimit      float64  `envconfig:"RATE_LIMIT" default:"10"`
	RateBurst      int      `envconfig:"RATE_BURST" default:"20"`
	MaxMessageSize int64    `envconfig:"MAX_MESSAGE_SIZE" default:"524288"`
	SendBuffer     int      `envconfig:"SEND_BUFFER" default:"256"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	c.Rooms = lo.Uniq(lo.FilterMap(c.Rooms, func(room string, _ int) (string, bool) {
		room = strings.TrimSpace(room)
		return room, room != ""
	}))
	if len(c.Rooms) == 0 {
		return errors.New("config error: ROOMS must name at least one room")
	}
	if !lo.Contains(c.Rooms, c.DefaultRoom) {
		return fmt.Errorf("config error: DEFAULT_ROOM %q is not one of ROOMS %v", c.DefaultRoom, c.Rooms)
	}
	if c.JWTSecret == "" && c.JWKSIssuerURL == "" {
		return errors.New("config error: one of JWT_SECRET or JWKS_ISSUER_URL is required")
	}
	if c.TypingTTL <= 0 {
		return errors.New("config error: TYPING_TTL must be positive")
	}
	if c.TypingSweepInterval <= 0 {
		c.TypingSweepInterval = time.Second
	}
	if c.HistoryLimit < 0 {
		c.HistoryLimit = 0
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	return nil
}

// NewLogger builds the process logger for level (debug, info, warn, error).
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
