package bootstrap

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/fly-207/skynet/config"
	"github.com/fly-207/skynet/internal/module"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestNewFailsForUnknownBootstrapService(t *testing.T) {
	cfg := &config.Config{Thread: 4, LogService: "logger", Bootstrap: "does-not-exist"}

	_, err := New(cfg, testLogger())
	if err == nil {
		t.Fatal("expected an error for an unregistered bootstrap module")
	}
	if !errors.Is(err, module.ErrLoadFailed) {
		t.Fatalf("err = %v, want wrapping module.ErrLoadFailed", err)
	}
}

func TestNewLaunchesLoggerAndEchoBootstrap(t *testing.T) {
	cfg := &config.Config{Thread: 4, LogService: "logger", Bootstrap: "echo"}

	sys, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if sys.Node.Registry().Count() != 2 {
		t.Fatalf("RegisteredServices = %d, want 2 (logger + echo)", sys.Node.Registry().Count())
	}
}
