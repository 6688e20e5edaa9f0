package statemachine

type ruleKey[S, T comparable] struct {
	from    S
	trigger T
}

// Table is an immutable set of transition rules built by a Builder. All of
// its methods are safe for concurrent use.
type Table[S, T comparable, D any] struct {
	states   []S
	triggers []T
	rules    []Rule[S, T, D]
	index    map[ruleKey[S, T]]int
}

// IsConfigured reports whether a rule exists for the pair, without looking
// at its guard.
func (t *Table[S, T, D]) IsConfigured(state S, trigger T) bool {
	_, ok := t.index[ruleKey[S, T]{from: state, trigger: trigger}]

	return ok
}

// Resolve decides what trigger does from state given the supplied business
// data. A pair with no rule resolves to Denied.
func (t *Table[S, T, D]) Resolve(state S, trigger T, data D) Decision[S] {
	rule, ok := t.Rule(state, trigger)
	if !ok || !rule.permits(data) {
		return Decision[S]{Kind: Denied}
	}

	if rule.Reentrant {
		return Decision[S]{Kind: AllowedReentry, To: state}
	}

	return Decision[S]{Kind: AllowedTransition, To: rule.To}
}

// Rule returns the rule declared for the pair.
func (t *Table[S, T, D]) Rule(state S, trigger T) (Rule[S, T, D], bool) {
	idx, ok := t.index[ruleKey[S, T]{from: state, trigger: trigger}]
	if !ok {
		return Rule[S, T, D]{}, false
	}

	return t.rules[idx], true
}

// PermittedTriggers returns the triggers that would fire from state with
// the supplied data, in declaration order.
func (t *Table[S, T, D]) PermittedTriggers(state S, data D) []T {
	var out []T

	for _, trigger := range t.triggers {
		if t.Resolve(state, trigger, data).Allowed() {
			out = append(out, trigger)
		}
	}

	return out
}

// States returns the declared states in declaration order.
func (t *Table[S, T, D]) States() []S {
	return append([]S(nil), t.states...)
}

// Triggers returns every trigger that appears in at least one rule, in
// declaration order.
func (t *Table[S, T, D]) Triggers() []T {
	return append([]T(nil), t.triggers...)
}

// Rules returns every rule in declaration order.
func (t *Table[S, T, D]) Rules() []Rule[S, T, D] {
	return append([]Rule[S, T, D](nil), t.rules...)
}

// RulesFrom returns the rules whose source is state.
func (t *Table[S, T, D]) RulesFrom(state S) []Rule[S, T, D] {
	var out []Rule[S, T, D]

	for _, rule := range t.rules {
		if rule.From == state {
			out = append(out, rule)
		}
	}

	return out
}

// IsTerminal reports whether state has no outgoing rule other than
// reentries. Nothing in the engine treats such states specially.
func (t *Table[S, T, D]) IsTerminal(state S) bool {
	for _, rule := range t.rules {
		if rule.From == state && !rule.Reentrant && rule.To != state {
			return false
		}
	}

	return true
}
