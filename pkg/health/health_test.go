// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func ok(msg string) CheckFunc {
	return func(context.Context) (string, error) { return msg, nil }
}

func failing(msg string) CheckFunc {
	return func(context.Context) (string, error) { return "", errors.New(msg) }
}

func TestHealthStatus(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(c *Checker)
		status   Status
		ready    int
		overview int
	}{
		{
			name:     "all healthy",
			setup:    func(c *Checker) { c.RegisterCritical("multiplexer", ok("started")); c.Register("sessions", ok("2 active")) },
			status:   StatusHealthy,
			ready:    http.StatusOK,
			overview: http.StatusOK,
		},
		{
			name:     "non critical failure",
			setup:    func(c *Checker) { c.RegisterCritical("multiplexer", ok("started")); c.Register("upstream", failing("broken pipe")) },
			status:   StatusDegraded,
			ready:    http.StatusServiceUnavailable,
			overview: http.StatusOK,
		},
		{
			name:     "critical failure",
			setup:    func(c *Checker) { c.RegisterCritical("multiplexer", failing("not started")); c.Register("upstream", failing("broken pipe")) },
			status:   StatusUnhealthy,
			ready:    http.StatusServiceUnavailable,
			overview: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(time.Minute)
			tt.setup(c)

			status, _ := c.Health(context.Background())
			if status != tt.status {
				t.Errorf("Health() status = %s, want %s", status, tt.status)
			}

			rec := httptest.NewRecorder()
			c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rec.Code != tt.ready {
				t.Errorf("readiness code = %d, want %d", rec.Code, tt.ready)
			}

			rec = httptest.NewRecorder()
			c.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.overview {
				t.Errorf("health code = %d, want %d", rec.Code, tt.overview)
			}
		})
	}
}

func TestHealthCache(t *testing.T) {
	c := NewChecker(time.Hour)
	calls := 0
	c.Register("sessions", func(context.Context) (string, error) {
		calls++
		return "1 active", nil
	})

	c.Health(context.Background())
	_, checks := c.Health(context.Background())
	if calls != 1 {
		t.Errorf("check ran %d times, want 1", calls)
	}
	if len(checks) != 1 || checks[0].Message != "1 active" {
		t.Errorf("checks = %+v, want the cached message", checks)
	}
}

func TestHealthMux(t *testing.T) {
	c := NewChecker(time.Minute)
	c.Register("b", ok(""))
	c.Register("a", ok(""))
	srv := httptest.NewServer(c.Mux())
	defer srv.Close()

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Checks []Check `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if len(body.Checks) != 2 || body.Checks[0].Name != "a" {
		t.Errorf("checks = %+v, want a then b", body.Checks)
	}
}
