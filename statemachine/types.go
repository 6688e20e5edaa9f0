package statemachine

import "context"

// Guard is a side-effect free predicate over the entity's business data.
type Guard[D any] func(data D) bool

// Action is business logic run once a trigger has been accepted and the
// destination state has been written.
type Action func(ctx context.Context) error

// StateAccessor gives the engine read and write access to a state cell
// owned by someone else. The engine never keeps a copy of the state.
// SetState may persist the value synchronously; the context is the one
// passed to Fire.
type StateAccessor[S comparable] interface {
	State() S
	SetState(ctx context.Context, state S) error
}

// StateFuncs adapts a getter/setter pair to a StateAccessor.
type StateFuncs[S comparable] struct {
	Get func() S
	Set func(ctx context.Context, state S) error
}

func (f StateFuncs[S]) State() S {
	return f.Get()
}

func (f StateFuncs[S]) SetState(ctx context.Context, state S) error {
	return f.Set(ctx, state)
}

// DecisionKind is the outcome of resolving a trigger against the table.
type DecisionKind int

const (
	// Denied means no rule exists for the pair, or its guard is false.
	Denied DecisionKind = iota
	// AllowedReentry means the trigger runs without changing state.
	AllowedReentry
	// AllowedTransition means the trigger moves the entity to a new state.
	AllowedTransition
)

func (k DecisionKind) String() string {
	switch k {
	case Denied:
		return "denied"
	case AllowedReentry:
		return "reentry"
	case AllowedTransition:
		return "transition"
	default:
		return "unknown"
	}
}

// Decision is what Table.Resolve returns. To is only meaningful when the
// decision is not Denied; for reentry it equals the source state.
type Decision[S comparable] struct {
	Kind DecisionKind
	To   S
}

// Allowed reports whether the trigger may fire.
func (d Decision[S]) Allowed() bool {
	return d.Kind != Denied
}

// Rule is a single declared (source, trigger) edge.
type Rule[S, T comparable, D any] struct {
	From      S
	Trigger   T
	To        S
	Reentrant bool
	Guard     Guard[D]
	// GuardDescription is a human-readable name for the guard, used in
	// diagrams and log output.
	GuardDescription string

	guarded bool
}

// Guarded reports whether the rule was declared with a guard.
func (r Rule[S, T, D]) Guarded() bool {
	return r.guarded
}

func (r Rule[S, T, D]) permits(data D) bool {
	if !r.guarded {
		return true
	}

	return r.Guard(data)
}
