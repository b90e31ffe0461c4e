// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const envPrefix = "WLMUX_"

// Config holds the application configuration.
type Config struct {
	// Logging
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Upstream compositor; empty uses WAYLAND_DISPLAY
	Display string `env:"DISPLAY"`

	// Observability
	MetricsPort int `env:"METRICS_PORT" envDefault:"9090"`
	HealthPort  int `env:"HEALTH_PORT"  envDefault:"8080"`
	TracePort   int `env:"TRACE_PORT"   envDefault:"0"`

	// Protocol loop
	PollInterval    time.Duration `env:"POLL_INTERVAL"    envDefault:"100ms"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`

	// Launch manifest
	ConfigFile string `env:"CONFIG"`
}

// Manifest lists the clients launched at startup.
type Manifest struct {
	Clients []Client `yaml:"clients"`
}

// Client is one command run against its own session.
type Client struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// Environ returns the extra environment of the client in a stable order.
func (c Client) Environ() []string {
	out := make([]string, 0, len(c.Env))
	for k, v := range c.Env {
		out = append(out, k+"="+v)
	}
	slices.Sort(out)
	return out
}

func loadConfig(args []string) (Config, []string, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return cfg, nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	fs := pflag.NewFlagSet("wlmux", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.StringVar(&cfg.Display, "display", cfg.Display, "upstream Wayland display name or socket path")
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML manifest of clients to launch")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: json or text")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: wlmux [flags] [--] [command [args...]]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return cfg, nil, err
	}

	if cfg.PollInterval <= 0 {
		return cfg, nil, fmt.Errorf("invalid poll interval %s", cfg.PollInterval)
	}
	return cfg, fs.Args(), nil
}

func loadManifest(path string) (Manifest, error) {
	var m Manifest
	if path == "" {
		return m, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	for i, c := range m.Clients {
		if c.Command == "" {
			return m, fmt.Errorf("manifest client %d has no command", i)
		}
		if c.Name == "" {
			m.Clients[i].Name = c.Command
		}
	}
	return m, nil
}

// setupLogger creates a structured logger with the specified level and
// format. Unknown levels fall back to info and unknown formats to text.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
