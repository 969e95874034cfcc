// Package logger implements the runtime's well-known "logger" service: a
// native module that receives PTYPE_TEXT log records from any other
// service and an in-band "reopen" system message (mapped from SIGHUP)
// that closes and reopens its backing file, the way a long-running
// daemon rotates logs without a restart.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fly-207/skynet/internal/handle"
	"github.com/fly-207/skynet/internal/mailbox"
	"github.com/fly-207/skynet/internal/module"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	otellog "go.opentelemetry.io/otel/log"
)

// Name is the module/service name the node registers this under and
// binds as the well-known ".logger" name.
const Name = "logger"

// Module is the native module implementation; a Module value is itself
// the service instance (logger state doesn't need a separate Instance
// type since there is exactly one of it per node).
type Module struct {
	module.BaseModule

	// LoggerProvider, if non-nil, additionally bridges every log record
	// to OpenTelemetry via otelslog — the CPU-time-accounting lineage's
	// companion for log correlation, wired only when otel is configured.
	LoggerProvider otellog.LoggerProvider

	mu     sync.Mutex
	path   string
	file   *os.File
	logger *slog.Logger
}

func (m *Module) Create() (module.Instance, error) { return m, nil }

// Init opens the configured log file (or stdout, if arg is empty) and
// installs the receiving callback.
func (m *Module) Init(_ module.Instance, ctx module.ServiceContext, arg string) error {
	m.mu.Lock()
	m.path = arg
	err := m.openLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	ctx.SetCallback(func(source handle.Handle, session uint32, ptype mailbox.ProtocolType, payload []byte) bool {
		switch ptype {
		case mailbox.PTYPESystem:
			if string(payload) == "reopen" {
				if err := m.Reopen(); err != nil {
					m.log().Error("logger: reopen failed", "err", err)
				}
			}
		default:
			m.log().Info(string(payload), "source", source.String(), "session", session)
		}
		return true
	})
	return nil
}

// openLocked (re)builds m.logger from m.path. Caller must hold m.mu.
func (m *Module) openLocked() error {
	var w *os.File
	if m.path == "" {
		w = os.Stdout
	} else {
		f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("logger: open %q: %w", m.path, err)
		}
		w = f
	}

	var handler slog.Handler = slog.NewTextHandler(w, nil)
	if m.LoggerProvider != nil {
		handler = fanout{handler, otelslog.NewHandler(Name, otelslog.WithLoggerProvider(m.LoggerProvider))}
	}

	m.file = w
	m.logger = slog.New(handler)
	return nil
}

// Reopen closes the current file (if any, and not stdout) and reopens
// the same path — the effect SIGHUP has on this service.
func (m *Module) Reopen() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file != nil && m.file != os.Stdout {
		_ = m.file.Close()
	}
	return m.openLocked()
}

func (m *Module) log() *slog.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logger
}

// fanout forwards every record to both handlers; used only when an otel
// LoggerProvider is wired in, so records are both written to the log
// file and bridged to OpenTelemetry.
type fanout struct {
	a, b slog.Handler
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	return f.a.Enabled(ctx, level) || f.b.Enabled(ctx, level)
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	if err := f.a.Handle(ctx, r.Clone()); err != nil {
		return err
	}
	return f.b.Handle(ctx, r.Clone())
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return fanout{f.a.WithAttrs(attrs), f.b.WithAttrs(attrs)}
}

func (f fanout) WithGroup(name string) slog.Handler {
	return fanout{f.a.WithGroup(name), f.b.WithGroup(name)}
}
