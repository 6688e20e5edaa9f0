package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"facette.io/natsort"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/statecart/statecart/cart"
	"github.com/statecart/statecart/cartapi"
	"github.com/statecart/statecart/cli"
	"github.com/statecart/statecart/shutdown"
	"github.com/statecart/statecart/simulate"
	"github.com/statecart/statecart/statemachine/validator"
	"github.com/statecart/statecart/statemachine/visualizer"
	"github.com/statecart/statecart/statestore"
)

const readHeaderTimeout = 10 * time.Second

var (
	errNotFileStore = errors.New("watch needs STORE_DRIVER=file")
	errInvalidTable = errors.New("cart table failed validation")
)

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)

	return fs
}

// runFire fires the named triggers in order. Item counts are not stored, so
// a cart reopened from the store starts with none.
func runFire(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("fire", a.out)
	id := fs.String("id", "", "cart ID; created in Draft if it does not exist")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id == "" || fs.NArg() == 0 {
		fmt.Fprintln(a.out, "Usage: cartctl fire -id ID TRIGGER...")

		return errUsage
	}

	triggers := make([]cart.Trigger, 0, fs.NArg())

	for _, name := range fs.Args() {
		t, err := cart.ParseTrigger(name)
		if err != nil {
			return err
		}

		triggers = append(triggers, t)
	}

	c, err := a.reg.Open(ctx, *id)
	if err != nil {
		return err
	}

	for _, t := range triggers {
		if err := c.Fire(ctx, t); err != nil {
			return err
		}
	}

	printCart(a.out, c.Snapshot())

	return nil
}

func runShow(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("show", a.out)
	id := fs.String("id", "", "cart ID; every stored cart is listed when empty")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id != "" {
		c, err := a.reg.Get(ctx, *id)
		if err != nil {
			return err
		}

		printCart(a.out, c.Snapshot())

		return nil
	}

	states, err := a.reg.List(ctx)
	if err != nil {
		return err
	}

	printStates(a.out, states)

	return nil
}

func runSimulate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("simulate", a.out)
	carts := fs.Int("carts", 100, "number of carts")
	steps := fs.Int("steps", 20, "random triggers per cart")
	workers := fs.Int("workers", a.cfg.Simulate.Workers, "carts driven at once")
	rate := fs.Float64("rate", a.cfg.Simulate.Rate, "triggers per second, 0 for unlimited")
	seed := fs.Uint64("seed", uint64(time.Now().UnixNano()), "random seed") //nolint:gosec
	verbose := fs.Bool("v", false, "log every fired trigger")

	if err := fs.Parse(args); err != nil {
		return err
	}

	report, err := simulate.Run(ctx, a.reg, simulate.Options{
		Carts:    *carts,
		Steps:    *steps,
		Workers:  *workers,
		Rate:     *rate,
		Seed:     *seed,
		LogFires: *verbose,
	})

	printReport(a.out, report)

	return err
}

func runGraph(_ context.Context, a *app, args []string) error {
	fs := newFlagSet("graph", a.out)
	format := fs.String("format", "mermaid", "mermaid or dot")
	fenced := fs.Bool("fenced", false, "wrap Mermaid output in a Markdown code fence")
	direction := fs.String("direction", "LR", "LR or TB")

	if err := fs.Parse(args); err != nil {
		return err
	}

	table, err := cart.DefaultTable()
	if err != nil {
		return err
	}

	opts := visualizer.DefaultOptions().WithDirection(*direction).WithFenced(*fenced)

	var out string

	switch strings.ToLower(*format) {
	case "mermaid":
		out, err = visualizer.GenerateMermaidWithOptions(table, cart.Draft, opts)
	case "dot":
		out, err = visualizer.GenerateDOT(table, cart.Draft, opts)
	default:
		return fmt.Errorf("%w: unknown format %q", errUsage, *format)
	}

	if err != nil {
		return err
	}

	_, err = io.WriteString(a.out, out)

	return err
}

// runCheck lints the cart table.
func runCheck(_ context.Context, a *app, args []string) error {
	fs := newFlagSet("check", a.out)
	strict := fs.Bool("strict", false, "treat warnings as errors")

	if err := fs.Parse(args); err != nil {
		return err
	}

	table, err := cart.DefaultTable()
	if err != nil {
		return err
	}

	rules := append(
		validator.DefaultRules[cart.State, cart.Trigger, cart.Data](),
		validator.ExpectTriggers[cart.State, cart.Trigger, cart.Data](cart.AllTriggers()...),
	)

	result := validator.ValidateWithRules(table, cart.Draft, rules)
	if *strict {
		result.Errors = append(result.Errors, result.Warnings...)
		result.Warnings = nil
		result.Valid = len(result.Errors) == 0
	}

	fmt.Fprintln(a.out, result)

	if !result.Valid {
		return errInvalidTable
	}

	return nil
}

// runServe serves the cart API until ctx is canceled.
func runServe(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("serve", a.out)
	addr := fs.String("addr", a.cfg.HTTP.Addr, "listen address")

	if err := fs.Parse(args); err != nil {
		return err
	}

	srv := &http.Server{
		Addr: *addr,
		Handler: cartapi.NewHandler(a.reg, cartapi.Options{
			RateLimit: a.cfg.HTTP.RateLimit,
			RateBurst: a.cfg.HTTP.RateBurst,
			Metrics:   true,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("Serving cart API", "addr", *addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}

		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	}
}

// runWatch prints every cart in the file store each time the file changes.
func runWatch(ctx context.Context, a *app, _ []string) error {
	if !strings.EqualFold(a.cfg.Store.Driver, statestore.DriverFile) {
		return errNotFileStore
	}

	// A separate handle, so reloads do not race the registry's writes.
	file, err := statestore.NewFile(a.cfg.Store.Path)
	if err != nil {
		return err
	}

	slog.Info("Watching state file", "path", file.Path())

	err = file.Watch(ctx, func(states map[string]string) {
		fmt.Fprint(a.out, cli.DividerAutoWidth())
		printStates(a.out, states)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// startMetricsServer serves /metrics on addr in the background. The returned
// func stops it.
func startMetricsServer(addr string) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = srv.Shutdown(ctx)
	}

	shutdown.BeforeShutdown(stop)

	return stop
}

func printCart(out io.Writer, snap cart.Snapshot) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Cart %s\nState: %s\nItems: %d", snap.ID, snap.State, snap.ItemCount)

	fmt.Fprint(out, cli.BannerAutoWidth(sb.String(), cli.AlignLeft))

	for _, line := range snap.Log {
		fmt.Fprintln(out, line)
	}
}

func printReport(out io.Writer, r simulate.Report) {
	fmt.Fprintf(out, "carts=%d fired=%d accepted=%d declined=%d errors=%d duration=%s\n",
		r.Carts, r.Fired, r.Accepted, r.Declined, r.Errors, r.Duration.Round(time.Millisecond))

	for _, s := range cart.AllStates() {
		fmt.Fprintf(out, "  %-10s %d\n", s, r.States[s])
	}
}

// printStates lists stored cart states one per line, ordered so that cart-2
// comes before cart-10.
func printStates(out io.Writer, states map[string]string) {
	ids := slices.Collect(maps.Keys(states))
	natsort.Sort(ids)

	for _, id := range ids {
		fmt.Fprintf(out, "%s\t%s\n", id, states[id])
	}
}
