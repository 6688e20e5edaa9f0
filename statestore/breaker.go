package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/statecart/statecart/logger"
)

const (
	defaultBreakerFailures = 3
	defaultBreakerTimeout  = 30 * time.Second
	defaultBreakerProbes   = 1
)

// BreakerSettings configures a Breaker.
type BreakerSettings struct {
	Name string
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before letting a probe through.
	Timeout time.Duration
	// HalfOpenProbes is the number of successful probes that close the circuit.
	HalfOpenProbes uint32
}

// Breaker wraps a Store in a circuit breaker. While the circuit is open,
// calls fail fast with ErrUnavailable, so a cart whose store is down
// declines to change state instead of waiting on every fire.
type Breaker struct {
	next    Store
	breaker *gobreaker.CircuitBreaker
}

type loadResult struct {
	state string
	found bool
}

// NewBreaker wraps next.
func NewBreaker(next Store, settings BreakerSettings) *Breaker {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = defaultBreakerFailures
	}

	if settings.Timeout <= 0 {
		settings.Timeout = defaultBreakerTimeout
	}

	if settings.HalfOpenProbes == 0 {
		settings.HalfOpenProbes = defaultBreakerProbes
	}

	maxFailures := settings.MaxFailures

	return &Breaker{
		next: next,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "statestore-" + settings.Name,
			MaxRequests: settings.HalfOpenProbes,
			Timeout:     settings.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Get().Warn("State store circuit changed",
					"breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// State returns the circuit state: "closed", "open" or "half-open".
func (b *Breaker) State() string {
	return b.breaker.State().String()
}

func (b *Breaker) execute(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return result, err
}

func (b *Breaker) Load(ctx context.Context, id string) (string, bool, error) {
	result, err := b.execute(ctx, func() (any, error) {
		state, found, err := b.next.Load(ctx, id)

		return loadResult{state: state, found: found}, err
	})
	if err != nil {
		return "", false, err
	}

	res, _ := result.(loadResult)

	return res.state, res.found, nil
}

func (b *Breaker) Save(ctx context.Context, id, state string) error {
	_, err := b.execute(ctx, func() (any, error) {
		return nil, b.next.Save(ctx, id, state)
	})

	return err
}

func (b *Breaker) List(ctx context.Context) (map[string]string, error) {
	result, err := b.execute(ctx, func() (any, error) {
		return b.next.List(ctx)
	})
	if err != nil {
		return nil, err
	}

	states, _ := result.(map[string]string)

	return states, nil
}

func (b *Breaker) Close() error {
	return b.next.Close()
}
