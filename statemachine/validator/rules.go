package validator

import (
	"fmt"
	"slices"

	"github.com/statecart/statecart/statemachine"
)

// Severity defines the severity level of a validation issue.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// Rule checks a table for one kind of problem.
type Rule[S, T comparable, D any] interface {
	Name() string
	Severity() Severity
	Check(table *statemachine.Table[S, T, D], initial S) []Issue
}

// DefaultRules returns the standard set of validation rules.
func DefaultRules[S, T comparable, D any]() []Rule[S, T, D] {
	return []Rule[S, T, D]{
		&unreachableStateRule[S, T, D]{},
		&undescribedGuardRule[S, T, D]{},
		&guardedExitRule[S, T, D]{},
	}
}

// unreachableStateRule reports states no rule path leads to from initial.
type unreachableStateRule[S, T comparable, D any] struct{}

func (r *unreachableStateRule[S, T, D]) Name() string {
	return "UnreachableState"
}

func (r *unreachableStateRule[S, T, D]) Severity() Severity {
	return SeverityError
}

func (r *unreachableStateRule[S, T, D]) Check(table *statemachine.Table[S, T, D], initial S) []Issue {
	reachable := map[S]bool{initial: true}
	queue := []S{initial}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, rule := range table.RulesFrom(current) {
			if !reachable[rule.To] {
				reachable[rule.To] = true
				queue = append(queue, rule.To)
			}
		}
	}

	var issues []Issue

	for _, state := range table.States() {
		if !reachable[state] {
			issues = append(issues, Issue{
				Code:    "UNREACHABLE_STATE",
				Message: fmt.Sprintf("state %v cannot be reached from %v", state, initial),
				State:   fmt.Sprint(state),
			})
		}
	}

	return issues
}

// ExpectTriggers returns a rule reporting any of triggers that no state
// accepts. A Table only knows the triggers its rules mention, so the full
// set has to come from the caller.
func ExpectTriggers[S, T comparable, D any](triggers ...T) Rule[S, T, D] {
	return &unusedTriggerRule[S, T, D]{expected: triggers}
}

type unusedTriggerRule[S, T comparable, D any] struct {
	expected []T
}

func (r *unusedTriggerRule[S, T, D]) Name() string {
	return "UnusedTrigger"
}

func (r *unusedTriggerRule[S, T, D]) Severity() Severity {
	return SeverityWarning
}

func (r *unusedTriggerRule[S, T, D]) Check(table *statemachine.Table[S, T, D], _ S) []Issue {
	used := table.Triggers()

	var issues []Issue

	for _, trigger := range r.expected {
		if !slices.Contains(used, trigger) {
			issues = append(issues, Issue{
				Code:    "UNUSED_TRIGGER",
				Message: fmt.Sprintf("trigger %v is not accepted in any state", trigger),
			})
		}
	}

	return issues
}

// undescribedGuardRule reports guarded rules without a description, which
// show up as "guarded" in diagrams.
type undescribedGuardRule[S, T comparable, D any] struct{}

func (r *undescribedGuardRule[S, T, D]) Name() string {
	return "UndescribedGuard"
}

func (r *undescribedGuardRule[S, T, D]) Severity() Severity {
	return SeverityWarning
}

func (r *undescribedGuardRule[S, T, D]) Check(table *statemachine.Table[S, T, D], _ S) []Issue {
	var issues []Issue

	for _, rule := range table.Rules() {
		if rule.Guarded() && rule.GuardDescription == "" {
			issues = append(issues, Issue{
				Code:    "UNDESCRIBED_GUARD",
				Message: fmt.Sprintf("guard on %v in state %v has no description", rule.Trigger, rule.From),
				State:   fmt.Sprint(rule.From),
			})
		}
	}

	return issues
}

// guardedExitRule reports non-terminal states whose every way out is
// guarded, so an entity can get stuck there.
type guardedExitRule[S, T comparable, D any] struct{}

func (r *guardedExitRule[S, T, D]) Name() string {
	return "GuardedExit"
}

func (r *guardedExitRule[S, T, D]) Severity() Severity {
	return SeverityWarning
}

func (r *guardedExitRule[S, T, D]) Check(table *statemachine.Table[S, T, D], _ S) []Issue {
	var issues []Issue

	for _, state := range table.States() {
		if table.IsTerminal(state) {
			continue
		}

		exits := slices.DeleteFunc(table.RulesFrom(state), func(rule statemachine.Rule[S, T, D]) bool {
			return rule.Reentrant
		})

		if !slices.ContainsFunc(exits, func(rule statemachine.Rule[S, T, D]) bool { return !rule.Guarded() }) {
			issues = append(issues, Issue{
				Code:    "GUARDED_EXIT",
				Message: fmt.Sprintf("every transition out of %v is guarded", state),
				State:   fmt.Sprint(state),
			})
		}
	}

	return issues
}
