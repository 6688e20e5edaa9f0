package statemachine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// firingContextKey marks a context handed to a post-transition action with
// the engines whose critical section it runs in.
const firingContextKey contextKey = "statemachine_firing"

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	name   string
	logger Logger
	clock  func() time.Time
}

// WithName sets the machine name used in logs, metrics, and spans.
func WithName(name string) Option {
	return func(o *engineOptions) {
		o.name = name
	}
}

// WithLogger sets the logging hooks. A nil logger disables logging.
func WithLogger(logger Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithClock sets the time source for audit entries.
func WithClock(clock func() time.Time) Option {
	return func(o *engineOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// Engine fires triggers against a single entity. It evaluates the table
// against the externally stored state, writes the destination through the
// accessor, runs the caller's post-transition action, and appends to the
// audit log. At most one Fire runs per engine at a time.
type Engine[S, T comparable, D any] struct {
	mu       sync.RWMutex
	table    *Table[S, T, D]
	accessor StateAccessor[S]
	data     func() D
	log      *AuditLog[S, T]
	name     string
	logger   Logger
	clock    func() time.Time
}

// NewEngine creates an engine. data returns the business data guards are
// evaluated against; it is always called with the engine lock held. If log
// is nil a new audit log is created.
func NewEngine[S, T comparable, D any](
	table *Table[S, T, D],
	accessor StateAccessor[S],
	data func() D,
	log *AuditLog[S, T],
	opts ...Option,
) (*Engine[S, T, D], error) {
	if table == nil {
		return nil, ErrNilTable
	}

	if accessor == nil {
		return nil, ErrNilAccessor
	}

	if data == nil {
		data = func() D {
			var zero D

			return zero
		}
	}

	if log == nil {
		log = NewAuditLog[S, T]()
	}

	options := engineOptions{
		logger: NewDefaultLogger(),
		clock:  time.Now,
	}

	for _, opt := range opts {
		opt(&options)
	}

	if options.logger == nil {
		options.logger = nopLogger{}
	}

	return &Engine[S, T, D]{
		table:    table,
		accessor: accessor,
		data:     data,
		log:      log,
		name:     sanitizeMachine(options.name),
		logger:   options.logger,
		clock:    options.clock,
	}, nil
}

// Name returns the machine name.
func (e *Engine[S, T, D]) Name() string {
	return e.name
}

// Table returns the engine's transition table.
func (e *Engine[S, T, D]) Table() *Table[S, T, D] {
	return e.table
}

// Log returns the audit log the engine appends to.
func (e *Engine[S, T, D]) Log() *AuditLog[S, T] {
	return e.log
}

// State returns the current state as seen through the accessor.
func (e *Engine[S, T, D]) State() S {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.accessor.State()
}

// CanFire reports whether Fire would accept trigger right now. It never
// mutates anything.
func (e *Engine[S, T, D]) CanFire(trigger T) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.table.Resolve(e.accessor.State(), trigger, e.data()).Allowed()
}

// PermittedTriggers returns the triggers Fire would accept right now.
func (e *Engine[S, T, D]) PermittedTriggers() []T {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.table.PermittedTriggers(e.accessor.State(), e.data())
}

// View runs fn with the read lock held, so that fn observes the state and
// any business data mutated by actions at a single point between fires.
// fn must not call Fire.
func (e *Engine[S, T, D]) View(fn func(state S)) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	fn(e.accessor.State())
}

// Fire attempts trigger. A trigger that is not permitted from the current
// state is declined silently: nil is returned and nothing is logged to the
// audit log. Otherwise the destination state is written, action (if any)
// runs with the new state already visible, and one audit entry is appended.
//
// If action fails the state write and audit entry are kept and an error
// matching ErrActionFailed is returned once the lock has been released.
// Calling Fire on the same engine from inside action returns
// ErrReentrantFire, provided action passes on the context it was given.
func (e *Engine[S, T, D]) Fire(ctx context.Context, trigger T, action Action) error {
	_, err := e.FireDecision(ctx, trigger, action)

	return err
}

// FireDecision is Fire, also returning the decision taken under the lock.
// Denied means the trigger was declined. When the state write fails the
// returned decision is still the allowed one, alongside the error.
func (e *Engine[S, T, D]) FireDecision(ctx context.Context, trigger T, action Action) (Decision[S], error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if e.isFiring(ctx) {
		return Decision[S]{Kind: Denied}, fmt.Errorf("%w: trigger %v on %s", ErrReentrantFire, trigger, e.name)
	}

	triggerName := fmt.Sprint(trigger)

	ctx, span := startFireSpan(ctx, e.name, triggerName)
	start := time.Now()

	decision, event, outcome, err := e.fire(ctx, trigger, action)

	event.Machine = e.name
	event.Trigger = triggerName
	event.Duration = time.Since(start)

	finishFireSpan(span, event, outcome, err)
	e.record(ctx, event, outcome, err)

	return decision, err
}

// fire is the critical section. The lock is released before Fire reports
// anything to its caller.
func (e *Engine[S, T, D]) fire(
	ctx context.Context,
	trigger T,
	action Action,
) (Decision[S], FireEvent, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.accessor.State()
	event := FireEvent{From: fmt.Sprint(from)}

	decision := e.table.Resolve(from, trigger, e.data())
	if !decision.Allowed() {
		return decision, event, outcomeDeclined, nil
	}

	to := decision.To
	event.To = fmt.Sprint(to)
	event.Transitioned = to != from

	if err := e.accessor.SetState(ctx, to); err != nil {
		return decision, event, outcomeWriteError, WrapTransitionError(from, to, trigger, fmt.Errorf("%w: %w", ErrStateWrite, err))
	}

	var actionErr error
	if action != nil {
		actionErr = action(e.markFiring(ctx))
	}

	e.log.append(Entry[S, T]{
		Time:         e.clock(),
		From:         from,
		Trigger:      trigger,
		To:           to,
		Transitioned: event.Transitioned,
	})

	if actionErr != nil {
		return decision, event, outcomeActionError, WrapActionError(from, to, trigger, actionErr)
	}

	return decision, event, outcomeFired, nil
}

func (e *Engine[S, T, D]) record(ctx context.Context, event FireEvent, outcome string, err error) {
	triggersTotal.WithLabelValues(e.name, event.Trigger, outcome).Inc()
	fireDuration.WithLabelValues(e.name, event.Trigger).Observe(event.Duration.Seconds())

	switch outcome {
	case outcomeDeclined:
		e.logger.TriggerDeclined(ctx, event)
	case outcomeWriteError:
		e.logger.StateWriteFailed(ctx, event, err)
	case outcomeFired, outcomeActionError:
		if event.Transitioned {
			transitionsTotal.WithLabelValues(e.name, event.From, event.To).Inc()
		}

		e.logger.TriggerFired(ctx, event)

		if err != nil {
			e.logger.ActionFailed(ctx, event, err)
		}
	}
}

func (e *Engine[S, T, D]) markFiring(ctx context.Context) context.Context {
	firing, _ := ctx.Value(firingContextKey).([]any)

	return context.WithValue(ctx, firingContextKey, append(slices.Clip(firing), any(e)))
}

func (e *Engine[S, T, D]) isFiring(ctx context.Context) bool {
	firing, _ := ctx.Value(firingContextKey).([]any)

	return slices.Contains(firing, any(e))
}
