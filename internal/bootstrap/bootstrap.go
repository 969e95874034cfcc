// Package bootstrap initializes every runtime subsystem: the module
// loader, then the handle registry and global queue (one actor.Node),
// then the harbor, then the well-known logger service and the configured
// bootstrap service, and last the long-running drivers (monitor, worker
// pool, timer) and admin surfaces. The harbor is not built first: it
// needs the Node's DeliverLocal. No goroutine runs until System.Start.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/fly-207/skynet/config"
	"github.com/fly-207/skynet/internal/actor"
	"github.com/fly-207/skynet/internal/admin"
	"github.com/fly-207/skynet/internal/handle"
	"github.com/fly-207/skynet/internal/harbor"
	"github.com/fly-207/skynet/internal/logger"
	"github.com/fly-207/skynet/internal/module"
	"github.com/fly-207/skynet/internal/monitor"
	"github.com/fly-207/skynet/internal/timer"
	"github.com/fly-207/skynet/internal/worker"
	"go.opentelemetry.io/otel/metric/noop"
)

// System is every subsystem this node owns, assembled by New, launched
// by Start and stopped by Shutdown.
type System struct {
	Node    *actor.Node
	Harbor  *harbor.AMQPHarbor
	Monitor *monitor.Monitor
	Pool    *worker.Pool
	Timer   *timer.Driver

	AdminGRPC *admin.GRPCServer
	AdminHTTP *admin.HTTPServer

	loggerHandle handle.Handle
	cfg          *config.Config
	log          *slog.Logger

	httpServer *http.Server
	grpcErrCh  chan error
	httpErrCh  chan error
}

// New wires every subsystem for cfg but does not yet start any
// goroutine: the module loader first, then registry+queue (via
// actor.NewNode), then the harbor (which needs the Node to deliver
// into), then the well-known logger service, then the configured
// bootstrap service, and finally the background drivers (monitor,
// worker pool, timer) and the admin surfaces. Only bootstrap
// errors returned from here are fatal; everything after New succeeds is
// this node's own problem to log and carry on from.
func New(cfg *config.Config, log *slog.Logger) (*System, error) {
	if log == nil {
		log = slog.Default()
	}

	loader := module.NewLoader(64)
	loader.SetSearchPath(cfg.CPath)
	loader.Register(logger.Name, &logger.Module{})
	loader.Register("echo", module.Echo{})

	node := actor.NewNode(cfg.Harbor, loader, log)

	sys := &System{Node: node, cfg: cfg, log: log}

	if cfg.HarborAMQPURL != "" {
		h, err := harbor.NewAMQPHarbor(cfg.HarborAMQPURL, cfg.Harbor, node.DeliverLocal)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: harbor: %w", err)
		}
		node.SetHarbor(h)
		sys.Harbor = h
	}

	if cfg.Profile {
		meter := noop.NewMeterProvider().Meter("skynet")
		if err := node.EnableProfiling(meter); err != nil {
			return nil, fmt.Errorf("bootstrap: enable profiling: %w", err)
		}
	}

	logService := cfg.LogService
	if logService == "" {
		logService = logger.Name
	}
	logCtx, err := node.ContextNew(logService, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: launch logger service %q: %w", logService, err)
	}
	node.BindName(logCtx.Handle(), logger.Name)
	sys.loggerHandle = logCtx.Handle()

	if cfg.Bootstrap != "" {
		if _, err := node.ContextNew(cfg.Bootstrap, ""); err != nil {
			return nil, fmt.Errorf("bootstrap: launch bootstrap service %q: %w", cfg.Bootstrap, err)
		}
	}

	threads := cfg.Thread
	if threads <= 0 {
		threads = 8
	}
	mon := monitor.New(threads, log)
	weights := worker.Weights(threads)
	pool := worker.New(node, weights, mon)
	drv := timer.New(node, pool, sys.loggerHandle)

	sys.Monitor = mon
	sys.Pool = pool
	sys.Timer = drv

	if cfg.AdminHTTPAddr != "" {
		httpSrv := admin.NewHTTPServer(node, log)
		mon.SetSink(httpSrv)
		sys.AdminHTTP = httpSrv
	}
	if cfg.AdminGRPCAddr != "" {
		sys.AdminGRPC = admin.NewGRPCServer(log)
	}

	return sys, nil
}

// Start launches every background goroutine: harbor inbound delivery,
// monitor sampling, the worker pool, the timer driver, and whichever
// admin surfaces are configured. Order matches New's dependency chain:
// the pool must exist before the timer (which wakes it), and the
// monitor must exist before the pool (which reads its slots).
func (s *System) Start(ctx context.Context) error {
	if s.Harbor != nil {
		if err := s.Harbor.Start(ctx); err != nil {
			return fmt.Errorf("bootstrap: start harbor: %w", err)
		}
	}

	s.Monitor.Start()
	s.Pool.Start()
	s.Timer.Start()

	if s.AdminHTTP != nil {
		s.httpErrCh = make(chan error, 1)
		lis, err := net.Listen("tcp", s.cfg.AdminHTTPAddr)
		if err != nil {
			return fmt.Errorf("bootstrap: admin http listen: %w", err)
		}
		srv := &http.Server{Handler: s.AdminHTTP}
		s.httpServer = srv
		go func() {
			s.httpErrCh <- srv.Serve(lis)
		}()
	}
	if s.AdminGRPC != nil {
		s.grpcErrCh = make(chan error, 1)
		lis, err := net.Listen("tcp", s.cfg.AdminGRPCAddr)
		if err != nil {
			return fmt.Errorf("bootstrap: admin grpc listen: %w", err)
		}
		go func() {
			s.grpcErrCh <- s.AdminGRPC.Serve(lis)
		}()
	}

	return nil
}

// ReopenLog maps a SIGHUP to the logger service's in-band reopen
// message.
func (s *System) ReopenLog() {
	s.Timer.ReopenLog()
}

// Shutdown stops the admin gRPC server, the timer, the worker pool, the
// monitor and the admin HTTP server, in that order, and closes the
// harbor connection last so no in-flight dispatch can still reach for it.
func (s *System) Shutdown(ctx context.Context) error {
	if s.AdminGRPC != nil {
		s.AdminGRPC.Stop()
	}
	s.Timer.Stop()
	s.Pool.Stop()
	s.Monitor.Stop()

	if s.httpServer != nil {
		_ = s.httpServer.Shutdown(ctx)
	}

	if s.Harbor != nil {
		if err := s.Harbor.Close(); err != nil {
			return fmt.Errorf("bootstrap: close harbor: %w", err)
		}
	}
	return nil
}
