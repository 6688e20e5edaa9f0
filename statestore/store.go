// Package statestore persists cart state cells. The state machine engine does
// not know about storage; a cart's state setter writes through a Store.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("unknown state store driver")

	// ErrMissingPath is returned when a driver that needs a path has none.
	ErrMissingPath = errors.New("state store path is required")

	// ErrEmptyID is returned when an operation is given an empty cart ID.
	ErrEmptyID = errors.New("cart id is empty")

	// ErrUnavailable is returned while the circuit breaker around a store is open.
	ErrUnavailable = errors.New("state store unavailable")
)

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Store persists the state name of each cart.
type Store interface {
	// Load returns the stored state for id. found is false if nothing was
	// stored for id yet.
	Load(ctx context.Context, id string) (state string, found bool, err error)
	// Save stores state for id, replacing any previous value.
	Save(ctx context.Context, id, state string) error
	// List returns every stored state keyed by cart ID.
	List(ctx context.Context) (map[string]string, error)
	Close() error
}

// Config selects and configures a Store.
type Config struct {
	Driver      string `env:"STORE_DRIVER"     envDefault:"memory"`
	Path        string `env:"STORE_PATH"`
	RedisURL    string `env:"REDIS_URL"        envDefault:"redis://localhost:6379/0"`
	RedisPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"statecart:cart:"`

	// BreakerFailures trips the circuit breaker after this many consecutive
	// failures. Zero disables the breaker.
	BreakerFailures uint32        `env:"STORE_BREAKER_FAILURES" envDefault:"0"`
	BreakerTimeout  time.Duration `env:"STORE_BREAKER_TIMEOUT"  envDefault:"30s"`
}

// Open creates the store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	store, err := open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.BreakerFailures > 0 {
		store = NewBreaker(store, BreakerSettings{
			Name:        cfg.Driver,
			MaxFailures: cfg.BreakerFailures,
			Timeout:     cfg.BreakerTimeout,
		})
	}

	return store, nil
}

func open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: driver %s", ErrMissingPath, DriverFile)
		}

		return NewFile(cfg.Path)
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: driver %s", ErrMissingPath, DriverSQLite)
		}

		return NewSQLite(ctx, cfg.Path)
	case DriverRedis:
		return NewRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func checkID(id string) error {
	if id == "" {
		return ErrEmptyID
	}

	return nil
}
