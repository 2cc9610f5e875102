package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures everything the proxy binary needs from the environment so
// main stays lean.
type Config struct {
	Addr     string `env:"FIELDGATE_ADDR" envDefault:":8080"`
	LogLevel string `env:"FIELDGATE_LOG_LEVEL" envDefault:"info"`

	CORSAllowedOrigins []string `env:"FIELDGATE_CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	Redis    RedisConfig
	Upstream UpstreamConfig
	Gate     GateConfig
}

// RedisConfig configures the shared Redis client. An empty URL means Redis is
// not configured and memory-backed stores are used instead.
type RedisConfig struct {
	URL          string        `env:"FIELDGATE_REDIS_URL"`
	PoolSize     int           `env:"FIELDGATE_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"FIELDGATE_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"FIELDGATE_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"FIELDGATE_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"FIELDGATE_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// UpstreamConfig points at the third-party lookup API.
type UpstreamConfig struct {
	URL     string        `env:"FIELDGATE_UPSTREAM_URL"`
	APIKey  string        `env:"FIELDGATE_UPSTREAM_API_KEY"`
	Timeout time.Duration `env:"FIELDGATE_UPSTREAM_TIMEOUT" envDefault:"8s"`
}

// GateConfig bounds how many lookups a single client IP may trigger per window.
type GateConfig struct {
	Limit  int           `env:"FIELDGATE_RATE_LIMIT" envDefault:"30"`
	Window time.Duration `env:"FIELDGATE_RATE_WINDOW" envDefault:"1m"`

	// GlobalRPS caps the whole process independent of per-IP counters.
	GlobalRPS   float64 `env:"FIELDGATE_GLOBAL_RPS" envDefault:"50"`
	GlobalBurst int     `env:"FIELDGATE_GLOBAL_BURST" envDefault:"100"`
}

// Load builds a Config from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	return cfg, nil
}
