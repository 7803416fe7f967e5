package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Host        string `env:"HOST" default:"0.0.0.0"`
	Port        string `env:"PORT" default:"3001"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" default:"*"`

	HeartbeatInterval  time.Duration `env:"HEARTBEAT_INTERVAL" default:"30s"`
	HeartbeatMaxMisses int           `env:"HEARTBEAT_MAX_MISSES" default:"1"`

	SendBufferSize int           `env:"WS_SEND_BUFFER" default:"16"`
	WriteTimeout   time.Duration `env:"WS_WRITE_TIMEOUT" default:"5s"`

	MaxWebSocketConnections int     `env:"WS_MAX_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"WS_MAX_CONNECTIONS_PER_IP" default:"20"`
	ConnectRatePerSecond    float64 `env:"WS_CONNECT_RATE" default:"10"`
	ConnectBurst            int     `env:"WS_CONNECT_BURST" default:"20"`

	SubscribeRatePerSecond float64 `env:"WS_SUBSCRIBE_RATE" default:"5"`
	SubscribeBurst         int     `env:"WS_SUBSCRIBE_BURST" default:"10"`

	BusQueueSize int `env:"BUS_QUEUE_SIZE" default:"256"`

	PriceTickInterval time.Duration `env:"PRICE_TICK_INTERVAL" default:"30s"`
	PriceBase         float64       `env:"PRICE_BASE" default:"0.001"`

	APIRateLimit float64 `env:"API_RATE_LIMIT" default:"20"`
}

// InMemory reports whether no external stores are configured.
func (c *Config) InMemory() bool {
	return c.DatabaseURL == "" && c.RedisURL == ""
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Port == "" {
		return errors.New("PORT is required")
	}

	positive := map[string]int{
		"HEARTBEAT_MAX_MISSES":      cfg.HeartbeatMaxMisses,
		"WS_SEND_BUFFER":            cfg.SendBufferSize,
		"WS_MAX_CONNECTIONS":        cfg.MaxWebSocketConnections,
		"WS_MAX_CONNECTIONS_PER_IP": cfg.MaxConnectionsPerIP,
		"WS_CONNECT_BURST":          cfg.ConnectBurst,
		"WS_SUBSCRIBE_BURST":        cfg.SubscribeBurst,
		"BUS_QUEUE_SIZE":            cfg.BusQueueSize,
	}
	for name, value := range positive {
		if value < 1 {
			return fmt.Errorf("%s must be at least 1", name)
		}
	}

	durations := map[string]time.Duration{
		"HEARTBEAT_INTERVAL":  cfg.HeartbeatInterval,
		"WS_WRITE_TIMEOUT":    cfg.WriteTimeout,
		"PRICE_TICK_INTERVAL": cfg.PriceTickInterval,
	}
	for name, value := range durations {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if cfg.WriteTimeout >= cfg.HeartbeatInterval {
		return errors.New("WS_WRITE_TIMEOUT must be shorter than HEARTBEAT_INTERVAL")
	}

	if cfg.PriceBase <= 0 {
		return errors.New("PRICE_BASE must be positive")
	}
	if cfg.ConnectRatePerSecond <= 0 || cfg.SubscribeRatePerSecond <= 0 || cfg.APIRateLimit <= 0 {
		return errors.New("rate limits must be positive")
	}

	return nil
}
