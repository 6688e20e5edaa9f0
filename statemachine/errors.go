package statemachine

import (
	"errors"
	"fmt"
)

// Table configuration errors. Build reports every problem it finds, joined.
var (
	// ErrNoStates indicates that a table was built without any declared state.
	ErrNoStates = errors.New("at least one state is required")
	// ErrDuplicateState indicates that a state was declared twice.
	ErrDuplicateState = errors.New("duplicate state")
	// ErrUndeclaredState indicates that a rule references a state that was never declared.
	ErrUndeclaredState = errors.New("undeclared state")
	// ErrDuplicateRule indicates that more than one rule exists for a (state, trigger) pair.
	ErrDuplicateRule = errors.New("duplicate rule for state and trigger")
	// ErrNilGuard indicates that a guarded rule was declared without a predicate.
	ErrNilGuard = errors.New("guard predicate is nil")
	// ErrInvalidTable wraps every configuration problem returned by Build.
	ErrInvalidTable = errors.New("invalid transition table")
)

// Fire errors.
var (
	// ErrStateWrite indicates that the state setter refused the destination state.
	ErrStateWrite = errors.New("state write failed")
	// ErrActionFailed indicates that the post-transition action returned an error.
	// The state write and the audit entry are kept.
	ErrActionFailed = errors.New("post-transition action failed")
	// ErrReentrantFire indicates that Fire was called from inside a post-transition
	// action of the same engine.
	ErrReentrantFire = errors.New("fire called from within a post-transition action")
	// ErrNilAccessor indicates that an engine was created without a state accessor.
	ErrNilAccessor = errors.New("state accessor is required")
	// ErrNilTable indicates that an engine was created without a table.
	ErrNilTable = errors.New("transition table is required")
)

// TransitionError wraps an error with transition context.
type TransitionError struct {
	From    string
	To      string
	Trigger string
	Err     error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("trigger %s: transition %s -> %s: %v", e.Trigger, e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// ActionError is returned by Fire when the post-transition action fails.
// The transition it describes has already been committed.
type ActionError struct {
	From    string
	To      string
	Trigger string
	Err     error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("trigger %s (%s -> %s): %v: %v", e.Trigger, e.From, e.To, ErrActionFailed, e.Err)
}

func (e *ActionError) Unwrap() []error {
	return []error{ErrActionFailed, e.Err}
}

// WrapTransitionError wraps an error with transition context.
func WrapTransitionError[S, T comparable](from, to S, trigger T, err error) error {
	if err == nil {
		return nil
	}

	return &TransitionError{
		From:    fmt.Sprint(from),
		To:      fmt.Sprint(to),
		Trigger: fmt.Sprint(trigger),
		Err:     err,
	}
}

// WrapActionError wraps a post-transition action failure.
func WrapActionError[S, T comparable](from, to S, trigger T, err error) error {
	if err == nil {
		return nil
	}

	return &ActionError{
		From:    fmt.Sprint(from),
		To:      fmt.Sprint(to),
		Trigger: fmt.Sprint(trigger),
		Err:     err,
	}
}
