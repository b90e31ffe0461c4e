// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	cases := []struct {
		desc    string
		env     map[string]string
		args    []string
		want    Config
		command []string
		err     bool
	}{
		{
			desc: "defaults",
			want: Config{
				LogLevel:        "info",
				LogFormat:       "json",
				MetricsPort:     9090,
				HealthPort:      8080,
				PollInterval:    100 * time.Millisecond,
				ShutdownTimeout: 5 * time.Second,
			},
		},
		{
			desc: "environment",
			env: map[string]string{
				"WLMUX_DISPLAY":       "wayland-1",
				"WLMUX_TRACE_PORT":    "9999",
				"WLMUX_POLL_INTERVAL": "20ms",
				"WLMUX_CONFIG":        "/etc/wlmux.yaml",
			},
			want: Config{
				LogLevel:        "info",
				LogFormat:       "json",
				Display:         "wayland-1",
				MetricsPort:     9090,
				HealthPort:      8080,
				TracePort:       9999,
				PollInterval:    20 * time.Millisecond,
				ShutdownTimeout: 5 * time.Second,
				ConfigFile:      "/etc/wlmux.yaml",
			},
		},
		{
			desc: "flags override environment",
			env:  map[string]string{"WLMUX_DISPLAY": "wayland-1", "WLMUX_LOG_LEVEL": "warn"},
			args: []string{"--display", "/run/user/1000/wayland-2", "--log-level", "debug", "--log-format", "text", "foot", "--server"},
			want: Config{
				LogLevel:        "debug",
				LogFormat:       "text",
				Display:         "/run/user/1000/wayland-2",
				MetricsPort:     9090,
				HealthPort:      8080,
				PollInterval:    100 * time.Millisecond,
				ShutdownTimeout: 5 * time.Second,
			},
			command: []string{"foot", "--server"},
		},
		{
			desc:    "command after terminator",
			args:    []string{"--", "weston-terminal", "--shell=/bin/sh"},
			command: []string{"weston-terminal", "--shell=/bin/sh"},
			want: Config{
				LogLevel:        "info",
				LogFormat:       "json",
				MetricsPort:     9090,
				HealthPort:      8080,
				PollInterval:    100 * time.Millisecond,
				ShutdownTimeout: 5 * time.Second,
			},
		},
		{desc: "unknown flag", args: []string{"--verbose"}, err: true},
		{desc: "invalid port", env: map[string]string{"WLMUX_HEALTH_PORT": "http"}, err: true},
		{desc: "zero poll interval", env: map[string]string{"WLMUX_POLL_INTERVAL": "0s"}, err: true},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg, command, err := loadConfig(tc.args)
			if (err != nil) != tc.err {
				t.Fatalf("loadConfig() error = %v, want error %v", err, tc.err)
			}
			if tc.err {
				return
			}
			if cfg != tc.want {
				t.Errorf("loadConfig() = %+v, want %+v", cfg, tc.want)
			}
			if !slices.Equal(command, tc.command) {
				t.Errorf("command = %v, want %v", command, tc.command)
			}
		})
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		return path
	}

	cases := []struct {
		desc string
		path string
		want Manifest
		err  bool
	}{
		{desc: "no manifest", path: ""},
		{
			desc: "clients",
			path: write("ok.yaml", `
clients:
  - name: terminal
    command: foot
    args: ["--server"]
    env:
      TERM: foot
  - command: imv
`),
			want: Manifest{Clients: []Client{
				{Name: "terminal", Command: "foot", Args: []string{"--server"}, Env: map[string]string{"TERM": "foot"}},
				{Name: "imv", Command: "imv"},
			}},
		},
		{desc: "missing command", path: write("nocmd.yaml", "clients:\n  - name: broken\n"), err: true},
		{desc: "malformed", path: write("bad.yaml", "clients: [\n"), err: true},
		{desc: "missing file", path: filepath.Join(dir, "absent.yaml"), err: true},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := loadManifest(tc.path)
			if (err != nil) != tc.err {
				t.Fatalf("loadManifest() error = %v, want error %v", err, tc.err)
			}
			if tc.err {
				return
			}
			if len(got.Clients) != len(tc.want.Clients) {
				t.Fatalf("clients = %d, want %d", len(got.Clients), len(tc.want.Clients))
			}
			for i, c := range got.Clients {
				w := tc.want.Clients[i]
				if c.Name != w.Name || c.Command != w.Command || !slices.Equal(c.Args, w.Args) || !slices.Equal(c.Environ(), w.Environ()) {
					t.Errorf("client %d = %+v, want %+v", i, c, w)
				}
			}
		})
	}
}

func TestEnviron(t *testing.T) {
	c := Client{Env: map[string]string{"B": "2", "A": "1"}}
	if got, want := c.Environ(), []string{"A=1", "B=2"}; !slices.Equal(got, want) {
		t.Errorf("Environ() = %v, want %v", got, want)
	}
}

func TestSetupLogger(t *testing.T) {
	cases := []struct {
		level string
		want  slog.Level
	}{
		{level: "debug", want: slog.LevelDebug},
		{level: "info", want: slog.LevelInfo},
		{level: "WARN", want: slog.LevelWarn},
		{level: "error", want: slog.LevelError},
		{level: "verbose", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		t.Run(tc.level, func(t *testing.T) {
			logger := setupLogger(tc.level, "text")
			if !logger.Enabled(context.Background(), tc.want) {
				t.Errorf("level %s disabled", tc.want)
			}
			if tc.want > slog.LevelDebug && logger.Enabled(context.Background(), tc.want-1) {
				t.Errorf("level below %s enabled", tc.want)
			}
		})
	}
}
