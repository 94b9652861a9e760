package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// serverConfig holds HTTP server configuration. WriteTimeout stays zero by
// default because /ws and /stream/world hold responses open.
type serverConfig struct {
	Port              string        `env:"PORT" envDefault:"8080"`
	ReadTimeout       time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"0s"`
	IdleTimeout       time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	BackgroundTimeout time.Duration `env:"BACKGROUND_TASK_TIMEOUT" envDefault:"10s"`
}

func loadServerConfig() (*serverConfig, error) {
	cfg := &serverConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse server config: %w", err)
	}
	return cfg, nil
}
