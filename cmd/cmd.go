package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"

	"github.com/fly-207/skynet/config"
)

const ServiceName = "skynet"

var (
	version    = "0.0.0"
	commit     = "hash"
	commitDate = time.Now().String()
)

// Run builds and executes the CLI app: `skynet run <config-file>` and
// `skynet top <config-file>`, each taking a positional path to a YAML or
// TOML configuration file.
func Run() error {
	app := &cli.App{
		Name:    ServiceName,
		Usage:   "actor runtime core",
		Version: fmt.Sprintf("%s (%s, %s)", version, commit, commitDate),
		Commands: []*cli.Command{
			runCmd(),
			topCmd(),
		},
	}
	return app.Run(os.Args)
}

// overrideFlags lists the config keys an operator can override straight
// from the command line, shared by both subcommands.
var overrideFlags = []cli.Flag{
	&cli.IntFlag{Name: "thread", Usage: "worker count (overrides config file)"},
	&cli.UintFlag{Name: "harbor", Usage: "cluster node id (overrides config file)"},
	&cli.StringFlag{Name: "bootstrap", Usage: "bootstrap service name (overrides config file)"},
	&cli.BoolFlag{Name: "profile", Usage: "enable per-service CPU accounting"},
	&cli.StringFlag{Name: "logger", Usage: "argument passed to the logger service"},
	&cli.StringFlag{Name: "logservice", Usage: "module name of the logger service"},
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "launch the node",
		ArgsUsage: "<config-file>",
		Flags:     overrideFlags,
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return runNode(c.Context, cfg, false)
		},
	}
}

func topCmd() *cli.Command {
	return &cli.Command{
		Name:      "top",
		Usage:     "launch the node with a live terminal dashboard attached",
		ArgsUsage: "<config-file>",
		Flags:     overrideFlags,
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return runNode(c.Context, cfg, true)
		},
	}
}

// loadConfig reads the positional config file, then mirrors any
// explicitly-set urfave/cli override flags into a pflag.FlagSet bound
// into viper, since config.Load expects pflag-style overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if c.NArg() < 1 {
		return nil, fmt.Errorf("cmd: missing required <config-file> argument")
	}

	flags := pflag.NewFlagSet(ServiceName, pflag.ContinueOnError)
	config.RegisterFlags(flags)

	overrides := map[string]string{}
	if c.IsSet("thread") {
		overrides["thread"] = strconv.Itoa(c.Int("thread"))
	}
	if c.IsSet("harbor") {
		overrides["harbor"] = strconv.FormatUint(uint64(c.Uint("harbor")), 10)
	}
	if c.IsSet("bootstrap") {
		overrides["bootstrap"] = c.String("bootstrap")
	}
	if c.IsSet("profile") {
		overrides["profile"] = strconv.FormatBool(c.Bool("profile"))
	}
	if c.IsSet("logger") {
		overrides["logger"] = c.String("logger")
	}
	if c.IsSet("logservice") {
		overrides["logservice"] = c.String("logservice")
	}
	for name, value := range overrides {
		if err := flags.Set(name, value); err != nil {
			return nil, fmt.Errorf("cmd: apply --%s: %w", name, err)
		}
	}

	return config.Load(c.Args().Get(0), flags)
}

// signalLoop blocks until SIGTERM/os.Interrupt requests shutdown,
// calling reopen on every SIGHUP in the meantime. SIGPIPE is
// deliberately left unregistered: Go's runtime already ignores it by
// default on the platforms this core targets, so no explicit handler is
// needed for it.
func signalLoop(ctx context.Context, reopen func()) {
	stop := make(chan os.Signal, 1)
	hup := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(stop)
	defer signal.Stop(hup)

	for {
		select {
		case <-stop:
			return
		case <-hup:
			reopen()
		case <-ctx.Done():
			return
		}
	}
}
