package statemachine

import (
	"fmt"

	commonErrors "github.com/statecart/statecart/errors"
)

// Builder declares a transition table. A Builder is not safe for concurrent
// use; it is meant to be filled in once and turned into an immutable Table
// with Build.
type Builder[S, T comparable, D any] struct {
	states    []S
	declared  map[S]struct{}
	rules     []Rule[S, T, D]
	expanders []func(*StateConfig[S, T, D])
	problems  commonErrors.Collection
}

// NewBuilder creates a builder for the given closed set of states. Rules may
// only reference these states.
func NewBuilder[S, T comparable, D any](states ...S) *Builder[S, T, D] {
	b := &Builder[S, T, D]{
		declared: make(map[S]struct{}, len(states)),
	}

	for _, s := range states {
		if _, dup := b.declared[s]; dup {
			b.problems.Addf("%w: %v", ErrDuplicateState, s)

			continue
		}

		b.declared[s] = struct{}{}
		b.states = append(b.states, s)
	}

	return b
}

// Configure returns a configurator for rules whose source is state.
func (b *Builder[S, T, D]) Configure(state S) *StateConfig[S, T, D] {
	return &StateConfig[S, T, D]{builder: b, state: state}
}

// ForEachState registers fn to be applied to every declared state when the
// table is built. Use it for rules that hold in every state, so that a state
// added later inherits them without further edits.
func (b *Builder[S, T, D]) ForEachState(fn func(cfg *StateConfig[S, T, D])) *Builder[S, T, D] {
	b.expanders = append(b.expanders, fn)

	return b
}

// Build validates the declaration and returns the immutable table. Every
// configuration problem is reported, wrapped in ErrInvalidTable.
func (b *Builder[S, T, D]) Build() (*Table[S, T, D], error) {
	for _, expand := range b.expanders {
		for _, s := range b.states {
			expand(b.Configure(s))
		}
	}

	// Expanded rules are now part of b.rules; a second Build must not add them again.
	b.expanders = nil

	var problems commonErrors.Collection
	for _, err := range b.problems.Errors() {
		problems.Add(err)
	}

	if len(b.states) == 0 {
		problems.Add(ErrNoStates)
	}

	table := &Table[S, T, D]{
		states: append([]S(nil), b.states...),
		index:  make(map[ruleKey[S, T]]int, len(b.rules)),
	}

	seenTriggers := make(map[T]struct{})

	for _, rule := range b.rules {
		if _, ok := b.declared[rule.From]; !ok {
			problems.Addf("%w: source %v of trigger %v", ErrUndeclaredState, rule.From, rule.Trigger)
		}

		if _, ok := b.declared[rule.To]; !ok {
			problems.Addf("%w: destination %v of trigger %v", ErrUndeclaredState, rule.To, rule.Trigger)
		}

		if rule.guarded && rule.Guard == nil {
			problems.Addf("%w: %v on %v", ErrNilGuard, rule.Trigger, rule.From)
		}

		key := ruleKey[S, T]{from: rule.From, trigger: rule.Trigger}
		if _, dup := table.index[key]; dup {
			problems.Addf("%w: %v on %v", ErrDuplicateRule, rule.Trigger, rule.From)

			continue
		}

		table.index[key] = len(table.rules)
		table.rules = append(table.rules, rule)

		if _, ok := seenTriggers[rule.Trigger]; !ok {
			seenTriggers[rule.Trigger] = struct{}{}
			table.triggers = append(table.triggers, rule.Trigger)
		}
	}

	if err := problems.GetErrorWrapped(ErrInvalidTable); err != nil {
		return nil, err
	}

	return table, nil
}

// MustBuild is like Build but panics on a configuration error. It is meant
// for tables declared in package-level code.
func (b *Builder[S, T, D]) MustBuild() *Table[S, T, D] {
	table, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("statemachine: %v", err))
	}

	return table
}

func (b *Builder[S, T, D]) add(rule Rule[S, T, D]) {
	b.rules = append(b.rules, rule)
}

// StateConfig declares the rules leaving a single state.
type StateConfig[S, T comparable, D any] struct {
	builder *Builder[S, T, D]
	state   S
}

// State returns the source state being configured.
func (c *StateConfig[S, T, D]) State() S {
	return c.state
}

// Permit allows trigger to move the entity to dest.
func (c *StateConfig[S, T, D]) Permit(trigger T, dest S) *StateConfig[S, T, D] {
	c.builder.add(Rule[S, T, D]{From: c.state, Trigger: trigger, To: dest})

	return c
}

// PermitIf allows trigger to move the entity to dest when guard holds.
func (c *StateConfig[S, T, D]) PermitIf(trigger T, dest S, description string, guard Guard[D]) *StateConfig[S, T, D] {
	c.builder.add(Rule[S, T, D]{
		From:             c.state,
		Trigger:          trigger,
		To:               dest,
		Guard:            guard,
		GuardDescription: description,
		guarded:          true,
	})

	return c
}

// PermitReentry allows trigger to run without changing state.
func (c *StateConfig[S, T, D]) PermitReentry(trigger T) *StateConfig[S, T, D] {
	c.builder.add(Rule[S, T, D]{From: c.state, Trigger: trigger, To: c.state, Reentrant: true})

	return c
}

// PermitReentryIf allows trigger to run without changing state when guard holds.
func (c *StateConfig[S, T, D]) PermitReentryIf(trigger T, description string, guard Guard[D]) *StateConfig[S, T, D] {
	c.builder.add(Rule[S, T, D]{
		From:             c.state,
		Trigger:          trigger,
		To:               c.state,
		Reentrant:        true,
		Guard:            guard,
		GuardDescription: description,
		guarded:          true,
	})

	return c
}
