package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dbehnke/fecsim/pkg/config"
	"github.com/dbehnke/fecsim/pkg/logger"
)

func TestServer_New(t *testing.T) {
	cfg := config.WebConfig{
		Enabled: true,
		Host:    "localhost",
		Port:    8080,
	}

	log := logger.New(logger.Config{Level: "info"})
	srv := NewServer(cfg, log)

	if srv == nil {
		t.Fatal("NewServer returned nil")
	}

	if srv.config.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", srv.config.Port)
	}
	if srv.GetHub() == nil {
		t.Error("Expected a WebSocket hub")
	}
}

func TestServer_Disabled(t *testing.T) {
	srv := NewServer(config.WebConfig{Enabled: false}, logger.New(logger.Config{Level: "error"}))

	if err := srv.Start(context.Background()); err != nil {
		t.Errorf("Expected no error when disabled, got %v", err)
	}
	if srv.GetAddr() != "" {
		t.Error("Expected no address when disabled")
	}
}

func startServer(t *testing.T) (*Server, context.CancelFunc, chan error) {
	t.Helper()
	cfg := config.WebConfig{
		Enabled: true,
		Host:    "127.0.0.1",
		Port:    0, // Use any available port
	}

	log := logger.New(logger.Config{Level: "error"})
	srv := NewServer(cfg, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for srv.GetAddr() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if srv.GetAddr() == "" {
		cancel()
		t.Fatal("Server did not start in time")
	}
	return srv, cancel, errChan
}

func TestServer_StartStop(t *testing.T) {
	_, cancel, errChan := startServer(t)

	cancel()

	select {
	case err := <-errChan:
		if err != nil && err != context.Canceled && err != context.DeadlineExceeded && err != http.ErrServerClosed {
			t.Errorf("Unexpected error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Error("Server did not stop in time")
	}
}

func TestServer_HealthEndpoint(t *testing.T) {
	srv, cancel, _ := startServer(t)
	defer cancel()

	resp, err := http.Get(fmt.Sprintf("http://%s/health", srv.GetAddr()))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "fecsim" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestServer_ServesDashboard(t *testing.T) {
	srv, cancel, _ := startServer(t)
	defer cancel()

	// Unknown routes fall back to the dashboard page
	for _, path := range []string{"/", "/runs/abc"} {
		resp, err := http.Get(fmt.Sprintf("http://%s%s", srv.GetAddr(), path))
		if err != nil {
			t.Fatalf("Failed to make request: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, resp.StatusCode)
		}
		if !strings.Contains(string(body), "<title>fecsim</title>") {
			t.Errorf("%s: expected dashboard page", path)
		}
	}
}
