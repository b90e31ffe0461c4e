// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Command wlmux connects to a Wayland compositor once and serves each
// launched client its own virtual display over that connection.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/absmach/wlmux/examples/simple"
	"github.com/absmach/wlmux/pkg/client"
	"github.com/absmach/wlmux/pkg/health"
	"github.com/absmach/wlmux/pkg/metrics"
	"github.com/absmach/wlmux/pkg/mux"
	"github.com/absmach/wlmux/pkg/trace"
	"github.com/absmach/wlmux/pkg/upstream"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

const roundtripTimeout = 10 * time.Second

// status is the part of the loop state read by health checks.
type status struct {
	started  atomic.Bool
	sessions atomic.Int64
	upstream atomic.Pointer[string]
}

func (s *status) fail(err error) {
	msg := err.Error()
	s.upstream.Store(&msg)
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, command, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, command, logger); err != nil {
		logger.Error(fmt.Sprintf("wlmux terminated with error: %s", err))
		os.Exit(1)
	}
	logger.Info("wlmux stopped")
}

func run(cfg Config, command []string, logger *slog.Logger) error {
	manifest, err := loadManifest(cfg.ConfigFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	dpy, err := client.Connect(cfg.Display)
	if err != nil {
		return fmt.Errorf("failed to connect to compositor: %w", err)
	}
	dpy.SetTimeout(roundtripTimeout)

	cc, err := upstream.New(dpy, upstream.Config{Logger: logger})
	if err != nil {
		dpy.Close()
		return err
	}

	logModifiers(cc, logger)

	hub := trace.NewHub(logger)
	defer hub.Close()

	m := mux.New(mux.Config{
		Logger:  logger,
		Queue:   dpy.NewQueue(),
		Handler: simple.New(logger),
		Metrics: metrics.New("wlmux", prometheus.DefaultRegisterer),
		Tracer:  hub,
	})
	muxFD, err := m.Startup(ctx, cc)
	if err != nil {
		cc.Close()
		dpy.Close()
		return fmt.Errorf("failed to start multiplexer: %w", err)
	}

	var st status
	st.started.Store(true)

	checker := health.NewChecker(time.Second)
	checker.RegisterCritical("multiplexer", func(context.Context) (string, error) {
		if !st.started.Load() {
			return "", errors.New("multiplexer stopped")
		}
		return "started", nil
	})
	checker.RegisterCritical("upstream", func(context.Context) (string, error) {
		if msg := st.upstream.Load(); msg != nil {
			return "", errors.New(*msg)
		}
		return "connected", nil
	})
	checker.Register("sessions", func(context.Context) (string, error) {
		return fmt.Sprintf("%d active", st.sessions.Load()), nil
	})

	// Children are started before the loop takes over the multiplexer.
	clients := manifest.Clients
	if len(command) > 0 {
		clients = append(clients, Client{Name: command[0], Command: command[0], Args: command[1:]})
	}
	for i, c := range clients {
		cmd, err := launch(ctx, m, c, logger)
		if err != nil {
			logger.Error("failed to launch client", slog.String("name", c.Name), slog.String("error", err.Error()))
			continue
		}
		// The command line client owns the lifetime of the process.
		primary := len(command) > 0 && i == len(clients)-1
		g.Go(func() error {
			err := wait(cmd, c, logger)
			if primary {
				cancel()
				var exit *exec.ExitError
				if errors.As(err, &exit) && ctx.Err() != nil {
					return nil
				}
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			st.started.Store(false)
			m.Shutdown()
			cc.Close()
			dpy.Close()
		}()
		return loop(ctx, cfg.PollInterval, m, cc, muxFD, &st, logger)
	})

	if cfg.MetricsPort > 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		g.Go(func() error {
			return serve(ctx, "metrics", cfg.MetricsPort, metricsMux, cfg.ShutdownTimeout, logger)
		})
	}
	if cfg.HealthPort > 0 {
		g.Go(func() error {
			return serve(ctx, "health", cfg.HealthPort, checker.Mux(), cfg.ShutdownTimeout, logger)
		})
	}
	if cfg.TracePort > 0 {
		traceMux := http.NewServeMux()
		traceMux.Handle("/trace", hub)
		g.Go(func() error {
			return serve(ctx, "trace", cfg.TracePort, traceMux, cfg.ShutdownTimeout, logger)
		})
	}

	return g.Wait()
}

// loop drives both connections until ctx is done or the compositor goes
// away. It is the only goroutine touching the multiplexer.
func loop(ctx context.Context, interval time.Duration, m *mux.Multiplexer, cc *upstream.Context, muxFD int, st *status, logger *slog.Logger) error {
	dpy := cc.Display()
	fds := []unix.PollFd{
		{Fd: int32(dpy.FD()), Events: unix.POLLIN},
		{Fd: int32(muxFD), Events: unix.POLLIN},
	}
	timeout := int(interval / time.Millisecond)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := unix.Poll(fds, timeout); err != nil && !errors.Is(err, unix.EINTR) {
			return fmt.Errorf("failed to poll: %w", err)
		}
		if fds[0].Revents != 0 {
			if dpy.ReadEvents() != nil {
				err := cc.Err()
				st.fail(err)
				return fmt.Errorf("upstream connection lost: %w", err)
			}
		}

		// Upstream context handlers live on the default queue.
		dpy.DispatchPending()
		if err := m.Dispatch(); err != nil {
			logger.Error("dispatch failed", slog.String("error", err.Error()))
		}
		if err := m.Flush(); err != nil {
			st.fail(err)
			return fmt.Errorf("failed to flush upstream: %w", err)
		}
		if err := dpy.Flush(); err != nil {
			st.fail(err)
			return fmt.Errorf("failed to flush upstream: %w", err)
		}
		st.sessions.Store(int64(m.CountActiveClients()))
	}
}

type modifierSource interface {
	CountDmaBufferModifiers() int
	DmaBufferModifier(i int) (mux.Modifier, bool)
}

// logModifiers reports the dma-buf formats the compositor accepts.
func logModifiers(src modifierSource, logger *slog.Logger) {
	n := src.CountDmaBufferModifiers()
	logger.Info("dma-buf modifiers", slog.Int("count", n))
	for i := range n {
		m, ok := src.DmaBufferModifier(i)
		if !ok {
			continue
		}
		logger.Debug("dma-buf modifier",
			slog.String("format", fmt.Sprintf("%#08x", m.Format)),
			slog.String("modifier", fmt.Sprintf("%#x", uint64(m.High)<<32|uint64(m.Low))))
	}
}

func serve(ctx context.Context, name string, port int, h http.Handler, timeout time.Duration, logger *slog.Logger) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting "+name+" server", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
