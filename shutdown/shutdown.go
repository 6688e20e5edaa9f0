// Package shutdown turns SIGINT and SIGTERM into context cancellation and
// runs registered hooks first, so servers and stores can drain while the
// process context is still alive.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"

	"github.com/statecart/statecart/logger"
)

var (
	mut     sync.Mutex     //nolint:gochecknoglobals
	hooks   []func()       //nolint:gochecknoglobals
	trigger chan os.Signal //nolint:gochecknoglobals
)

// BeforeShutdown registers a hook. Hooks run once, newest first, before the
// context returned by SetupHandler is canceled.
func BeforeShutdown(h func()) {
	mut.Lock()
	defer mut.Unlock()

	hooks = append(hooks, h)
}

// Shutdown starts the shutdown sequence as if a signal had arrived. It is a
// no-op without a handler or once shutdown has begun.
func Shutdown() {
	mut.Lock()
	ch := trigger
	mut.Unlock()

	if ch == nil {
		return
	}

	select {
	case ch <- os.Interrupt:
	default:
	}
}

// SetupHandler installs the signal handler and returns a context that is
// canceled once the hooks have run.
func SetupHandler() context.Context {
	ctx, cancelCtx := context.WithCancel(context.Background())

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	mut.Lock()
	trigger = ch
	mut.Unlock()

	go func() {
		sig := <-ch

		signal.Stop(ch)

		logger.Get(ctx).Warn("Received " + sig.String() + ", shutting down...")

		mut.Lock()
		trigger = nil
		mut.Unlock()

		runHooks()
		cancelCtx()
	}()

	return ctx
}

func runHooks() {
	mut.Lock()
	pending := hooks
	hooks = nil
	mut.Unlock()

	for _, h := range slices.Backward(pending) {
		h()
	}
}
