package server_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/louieee/chatclone/internal/server"
	"github.com/louieee/chatclone/internal/store"
	"github.com/louieee/chatclone/pkg/config"
)

func TestRunShutsDownCleanlyOnContextCancel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	cfg := &config.Config{}
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Auth.JWTSecret = "server-test-secret"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Bridge.Endpoint = "ws://127.0.0.1:0"
	cfg.Bridge.DialTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	app := server.NewApp(logger, ctx, cfg, st)

	done := make(chan error, 1)
	go func() { done <- app.Run() }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	// A clean stop ends with http.ErrServerClosed, which is not a failure.
	time.Sleep(50 * time.Millisecond)
	if out := buf.String(); strings.Contains(out, "HTTP server failed") {
		t.Errorf("graceful shutdown logged a server failure: %s", out)
	}
}
