package cmd

import (
	"context"
	"log/slog"
	"os"

	"go.uber.org/fx"

	"github.com/fly-207/skynet/config"
	"github.com/fly-207/skynet/internal/bootstrap"
)

// provideLogger builds the process-wide slog.Logger every subsystem
// logs through before the in-band logger service exists to take over.
func provideLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// NewApp wires config, the process logger, and the full bootstrap
// System together, registering an fx.Lifecycle hook that starts every
// background goroutine on OnStart and joins them on OnStop — the same
// provide-then-invoke shape the fx-wired service this core descends
// from uses, generalized from its domain modules to this one's. sys, if
// non-nil, receives the constructed *bootstrap.System once the app's
// dependency graph resolves, so the caller can drive signal handling
// and the optional top dashboard against the very instance the
// lifecycle hook controls.
func NewApp(cfg *config.Config, sys **bootstrap.System) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			provideLogger,
			bootstrap.New,
		),
		fx.Invoke(registerLifecycle),
		fx.Populate(sys),
		fx.NopLogger,
	)
}

func registerLifecycle(lc fx.Lifecycle, sys *bootstrap.System) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sys.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return sys.Shutdown(ctx)
		},
	})
}

// runNode builds the fx app for cfg, starts it, blocks on signals (and
// optionally the termui dashboard) until shutdown is requested, then
// stops it. Returns a non-nil error only for bootstrap or launch
// failures, matching the exit-1-on-configuration-or-launch-error
// contract; a clean shutdown always returns nil.
func runNode(ctx context.Context, cfg *config.Config, withTop bool) error {
	var sys *bootstrap.System
	app := NewApp(cfg, &sys)

	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = app.Stop(context.Background()) }()

	if withTop {
		go signalLoop(ctx, sys.ReopenLog)
		return runTop(sys)
	}

	signalLoop(ctx, sys.ReopenLog)
	return nil
}
