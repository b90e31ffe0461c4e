// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/absmach/wlmux/pkg/mux"
)

// socketFD is the descriptor number of the first entry of Cmd.ExtraFiles.
const socketFD = 3

// launch starts c on a fresh session. The returned command has been
// started; the session ends when the child closes its socket.
func launch(ctx context.Context, m *mux.Multiplexer, c Client, logger *slog.Logger) (*exec.Cmd, error) {
	s, fd, err := m.OpenClientSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to open session for %s: %w", c.Name, err)
	}
	raw, _ := fd.Take()
	sock := os.NewFile(uintptr(raw), "wayland-"+s.ID())
	defer sock.Close()

	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{sock}
	cmd.Env = append(os.Environ(), c.Environ()...)
	cmd.Env = append(cmd.Env, fmt.Sprintf("WAYLAND_SOCKET=%d", socketFD))

	if err := cmd.Start(); err != nil {
		m.CloseSession(s)
		return nil, fmt.Errorf("failed to start %s: %w", c.Name, err)
	}

	logger.Info("client launched",
		slog.String("name", c.Name),
		slog.String("session", s.ID()),
		slog.Int("pid", cmd.Process.Pid),
	)
	return cmd, nil
}

// wait reaps cmd and reports how it ended.
func wait(cmd *exec.Cmd, c Client, logger *slog.Logger) error {
	err := cmd.Wait()
	if err != nil {
		logger.Warn("client exited", slog.String("name", c.Name), slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	logger.Info("client exited", slog.String("name", c.Name))
	return nil
}
