// Package validator lints transition tables. Build already rejects tables
// that cannot work; the rules here catch tables that work but are probably
// not what their author meant.
package validator

import (
	"fmt"
	"strings"

	"github.com/statecart/statecart/statemachine"
)

// Result contains the findings of a validation run.
type Result struct {
	Valid    bool
	Errors   []Issue
	Warnings []Issue
}

// Issue is a single finding.
type Issue struct {
	Code    string // Issue code like "UNREACHABLE_STATE"
	Message string
	State   string // State name if applicable
}

func (i Issue) String() string {
	return i.Code + ": " + i.Message
}

// String renders one finding per line, errors first.
func (r Result) String() string {
	if len(r.Errors) == 0 && len(r.Warnings) == 0 {
		return "OK"
	}

	var sb strings.Builder

	for _, e := range r.Errors {
		fmt.Fprintf(&sb, "error   %s\n", e)
	}

	for _, w := range r.Warnings {
		fmt.Fprintf(&sb, "warning %s\n", w)
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

// Validate runs the default rules against table.
func Validate[S, T comparable, D any](table *statemachine.Table[S, T, D], initial S) Result {
	return ValidateWithRules(table, initial, DefaultRules[S, T, D]())
}

// ValidateWithRules runs the given rules against table.
func ValidateWithRules[S, T comparable, D any](
	table *statemachine.Table[S, T, D],
	initial S,
	rules []Rule[S, T, D],
) Result {
	result := Result{Valid: true}

	if table == nil {
		result.Valid = false
		result.Errors = append(result.Errors, Issue{Code: "NIL_TABLE", Message: "table is nil"})

		return result
	}

	for _, rule := range rules {
		issues := rule.Check(table, initial)

		switch rule.Severity() {
		case SeverityError:
			result.Errors = append(result.Errors, issues...)
		case SeverityWarning:
			result.Warnings = append(result.Warnings, issues...)
		}
	}

	if len(result.Errors) > 0 {
		result.Valid = false
	}

	return result
}

// ValidateStrict treats warnings as errors.
func ValidateStrict[S, T comparable, D any](table *statemachine.Table[S, T, D], initial S) Result {
	result := Validate(table, initial)

	result.Errors = append(result.Errors, result.Warnings...)
	result.Warnings = nil
	result.Valid = len(result.Errors) == 0

	return result
}
