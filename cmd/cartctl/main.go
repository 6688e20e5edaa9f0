// Command cartctl drives shopping carts through their lifecycle from the
// terminal, over HTTP, or in bulk simulations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/statecart/statecart/cart"
	"github.com/statecart/statecart/cli"
	"github.com/statecart/statecart/config"
	"github.com/statecart/statecart/logger"
	"github.com/statecart/statecart/shutdown"
	"github.com/statecart/statecart/statemachine"
	"github.com/statecart/statecart/statestore"
	"github.com/statecart/statecart/telemetry"
)

const (
	subsystem       = "cartctl"
	shutdownTimeout = 5 * time.Second
)

var errUsage = errors.New("usage")

const usage = `Usage: cartctl [-env FILE] [-plain] COMMAND [ARGS]

Commands:
  interactive  pick triggers for one cart from a menu
  fire         fire triggers on a cart by name
  show         print one cart, or every stored cart
  simulate     drive many carts with random triggers
  graph        print the cart lifecycle as a Mermaid or DOT diagram
  check        lint the cart lifecycle table
  serve        serve the cart HTTP API
  watch        print the file store whenever it changes

Settings are read from the environment and from .env.
`

func main() {
	ctx := shutdown.SetupHandler()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2) //nolint:mnd
		}

		fmt.Fprintln(os.Stderr, "cartctl:", err)
		os.Exit(1)
	}
}

// app is the state shared by every command.
type app struct {
	cfg   *config.Config
	store statestore.Store
	reg   *cart.Registry
	out   io.Writer
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{ //nolint:gochecknoglobals
	"interactive": runInteractive,
	"fire":        runFire,
	"show":        runShow,
	"simulate":    runSimulate,
	"graph":       runGraph,
	"check":       runCheck,
	"serve":       runServe,
	"watch":       runWatch,
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("cartctl", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { fmt.Fprint(out, usage) }

	envFile := fs.String("env", "", "load settings from this .env file instead of ./.env")
	plain := fs.Bool("plain", false, "print without box drawing")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() == 0 {
		fs.Usage()

		return errUsage
	}

	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fmt.Fprintf(out, "unknown command %q\n\n", fs.Arg(0))
		fs.Usage()

		return errUsage
	}

	cli.SetPlain(*plain)

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}

	a, cleanup, err := setup(ctx, envFiles, out)
	if err != nil {
		return err
	}
	defer cleanup()

	return cmd(ctx, a, fs.Args()[1:])
}

// setup loads config, then wires logging, telemetry and the state store.
// cleanup releases them in reverse order.
func setup(ctx context.Context, envFiles []string, out io.Writer) (*app, func(), error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, nil, err
	}

	logOpts, logCloser, err := cfg.Log.LoggerOptions(subsystem)
	if err != nil {
		return nil, nil, err
	}

	logger.ConfigureLoggingWithOptions(logOpts)

	if err := telemetry.Initialize(ctx, &cfg.Telemetry); err != nil {
		slog.Warn("Telemetry disabled", "error", err)
	}

	if h := telemetry.LogHandler(); h != nil {
		logOpts.Extra = h
		logger.ConfigureLoggingWithOptions(logOpts)
	}

	store, err := statestore.Open(ctx, cfg.Store)
	if err != nil {
		_ = logCloser.Close()

		return nil, nil, err
	}

	stopMetrics := startMetricsServer(cfg.MetricsAddr)

	cleanup := func() {
		stopMetrics()

		if err := store.Close(); err != nil {
			slog.Warn("Failed to close state store", "error", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Failed to shut down telemetry", "error", err)
		}

		_ = logCloser.Close()
	}

	reg := cart.NewRegistry(store, cart.WithLogger(statemachine.NewDefaultLogger()))

	return &app{cfg: cfg, store: store, reg: reg, out: out}, cleanup, nil
}
