package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var ErrMissingToken = errors.New("DISCORD_TOKEN is not set")

type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN"`
	Prefix       string `env:"PREFIX" envDefault:"!"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`

	YTDLPPath  string `env:"YTDLP_PATH" envDefault:"yt-dlp"`
	FFmpegPath string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`

	DispatchTimeout  time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"5s"`
	MaxStartFailures int           `env:"MAX_START_FAILURES" envDefault:"5"`

	ResolveTimeout time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"30s"`
	ResolveRate    float64       `env:"RESOLVE_RATE" envDefault:"2"`

	NoticeRate   float64 `env:"NOTICE_RATE" envDefault:"5"`
	NoticeBuffer int     `env:"NOTICE_BUFFER" envDefault:"128"`
	QueueDisplay int     `env:"QUEUE_DISPLAY" envDefault:"16"`
}

// Load reads .env if present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return ErrMissingToken
	}
	if c.Prefix == "" {
		return errors.New("PREFIX must not be empty")
	}
	if c.MaxStartFailures < 1 {
		return fmt.Errorf("MAX_START_FAILURES must be positive, got %d", c.MaxStartFailures)
	}
	if c.ResolveRate <= 0 || c.NoticeRate <= 0 {
		return errors.New("RESOLVE_RATE and NOTICE_RATE must be positive")
	}
	return nil
}
