// Package simulate drives many carts with random triggers on a worker pool.
// It exercises the cart lifecycle under load and reports what happened.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/statecart/statecart/cart"
	"github.com/statecart/statecart/logger"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

// ErrInvalidOptions is returned by Run for out of range options.
var ErrInvalidOptions = errors.New("invalid simulation options")

// Options configures a run.
type Options struct {
	// Carts is the number of carts to create.
	Carts int
	// Steps is the number of random triggers fired on each cart.
	Steps int
	// Workers bounds how many carts are driven at once.
	Workers int
	// Rate caps triggers per second across all workers. Zero means unlimited.
	Rate float64
	// Seed makes the trigger sequence of each cart reproducible.
	Seed uint64
	// Triggers restricts the random choice. Empty means every trigger.
	Triggers []cart.Trigger
	// LogFires keeps the per-trigger log lines of every cart. They are muted
	// by default; the run summary is always logged.
	LogFires bool
}

// Subsystem names the simulator in log lines.
const Subsystem = "simulate"

// Report summarizes a run.
type Report struct {
	Carts    int64
	Fired    int64
	Accepted int64
	Declined int64
	Errors   int64
	// States counts carts by final state.
	States   map[cart.State]int
	Duration time.Duration
}

type counters struct {
	carts    atomic.Int64
	fired    atomic.Int64
	accepted atomic.Int64
	declined atomic.Int64
	errors   atomic.Int64
}

// Run creates opts.Carts carts in reg and fires opts.Steps random triggers on
// each. Triggers on one cart are fired in order from a single task; carts run
// in parallel. Run stops early when ctx is canceled.
func Run(ctx context.Context, reg *cart.Registry, opts Options) (Report, error) {
	if opts.Carts < 0 || opts.Steps < 0 || opts.Workers < 1 || opts.Rate < 0 {
		return Report{}, fmt.Errorf("%w: %+v", ErrInvalidOptions, opts)
	}

	triggers := opts.Triggers
	if len(triggers) == 0 {
		triggers = cart.AllTriggers()
	}

	var limiter *rate.Limiter
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}

	ctx = logger.WithSubsystem(ctx, Subsystem)
	fireCtx := fireContext(ctx, opts)

	start := time.Now()

	pool := pond.NewPool(opts.Workers, pond.WithContext(ctx))
	defer pool.StopAndWait()

	group := pool.NewGroup()
	carts := make([]*cart.Cart, opts.Carts)

	var cnt counters

	for i := range opts.Carts {
		rng := rand.New(rand.NewPCG(opts.Seed, uint64(i))) //nolint:gosec

		group.SubmitErr(func() error {
			c, err := reg.Create(ctx)
			if err != nil {
				cnt.errors.Inc()

				return err
			}

			carts[i] = c
			cnt.carts.Inc()

			return drive(fireCtx, c, rng, triggers, opts.Steps, limiter, &cnt)
		})
	}

	err := group.Wait()

	report := Report{
		Carts:    cnt.carts.Load(),
		Fired:    cnt.fired.Load(),
		Accepted: cnt.accepted.Load(),
		Declined: cnt.declined.Load(),
		Errors:   cnt.errors.Load(),
		States:   make(map[cart.State]int),
		Duration: time.Since(start),
	}

	for _, c := range carts {
		if c != nil {
			report.States[c.State()]++
		}
	}

	logger.Get(ctx).Info("Simulation finished",
		"carts", report.Carts,
		"fired", report.Fired,
		"accepted", report.Accepted,
		"declined", report.Declined,
		"errors", report.Errors,
		"duration", report.Duration)

	return report, err
}

// fireContext is the context carts are driven with. Unless opts.LogFires is
// set it mutes logging, so thousands of trigger lines do not bury the summary.
func fireContext(ctx context.Context, opts Options) context.Context {
	if opts.LogFires {
		return ctx
	}

	return logger.WithMuted(ctx, true)
}

func drive(
	ctx context.Context,
	c *cart.Cart,
	rng *rand.Rand,
	triggers []cart.Trigger,
	steps int,
	limiter *rate.Limiter,
	cnt *counters,
) error {
	for range steps {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		trigger := triggers[rng.IntN(len(triggers))]

		cnt.fired.Inc()

		decision, err := c.FireDecision(ctx, trigger)
		if err != nil {
			cnt.errors.Inc()

			return fmt.Errorf("cart %s: %w", c.ID(), err)
		}

		if decision.Allowed() {
			cnt.accepted.Inc()
		} else {
			cnt.declined.Inc()
		}
	}

	return nil
}
