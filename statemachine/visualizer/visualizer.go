// Package visualizer generates Mermaid and Graphviz diagrams from transition
// tables.
package visualizer

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/statecart/statecart/statemachine"
)

// Visualizer errors.
var (
	ErrTableNil            = errors.New("table cannot be nil")
	ErrUndeclaredInitState = errors.New("initial state is not declared in the table")
)

// GenerateMermaid converts a table to a Mermaid state diagram.
func GenerateMermaid[S, T comparable, D any](table *statemachine.Table[S, T, D], initial S) (string, error) {
	return GenerateMermaidWithOptions(table, initial, DefaultOptions())
}

// GenerateMermaidWithOptions generates a Mermaid diagram with custom options.
func GenerateMermaidWithOptions[S, T comparable, D any](
	table *statemachine.Table[S, T, D],
	initial S,
	opts Options,
) (string, error) {
	if err := check(table, initial); err != nil {
		return "", err
	}

	var sb strings.Builder

	if opts.Fenced {
		sb.WriteString("```mermaid\n")
	}

	sb.WriteString("stateDiagram-v2\n")

	if opts.Direction != "" {
		fmt.Fprintf(&sb, "    direction %s\n", opts.Direction)
	}

	fmt.Fprintf(&sb, "    [*] --> %v\n", initial)

	for _, state := range table.States() {
		for _, rule := range table.RulesFrom(state) {
			if rule.Reentrant && !opts.ShowReentry {
				continue
			}

			fmt.Fprintf(&sb, "    %v --> %v: %s\n", rule.From, rule.To, label(rule, opts))
		}

		if table.IsTerminal(state) {
			fmt.Fprintf(&sb, "    %v --> [*]\n", state)
		}
	}

	// Apply styling based on state type and highlighting
	for _, state := range table.States() {
		name := fmt.Sprint(state)

		switch {
		case slices.Contains(opts.HighlightPath, name):
			fmt.Fprintf(&sb, "    class %s highlighted\n", name)
		case table.IsTerminal(state):
			fmt.Fprintf(&sb, "    class %s finalState\n", name)
		}
	}

	sb.WriteString("\n")
	sb.WriteString("    classDef finalState fill:#c8e6c9,stroke:#2e7d32,stroke-width:2px\n")
	sb.WriteString("    classDef highlighted fill:#fff9c4,stroke:#f57f17,stroke-width:3px\n")

	if opts.Fenced {
		sb.WriteString("```\n")
	}

	return sb.String(), nil
}

// GenerateDOT converts a table to a Graphviz digraph.
func GenerateDOT[S, T comparable, D any](table *statemachine.Table[S, T, D], initial S, opts Options) (string, error) {
	if err := check(table, initial); err != nil {
		return "", err
	}

	rankdir := opts.Direction
	if rankdir == "" {
		rankdir = "LR"
	}

	var sb strings.Builder

	sb.WriteString("digraph statemachine {\n")
	fmt.Fprintf(&sb, "    rankdir=%s;\n", rankdir)
	sb.WriteString("    node [shape=box, style=rounded];\n")
	sb.WriteString("    __start [shape=point];\n")

	for _, state := range table.States() {
		name := fmt.Sprint(state)

		var attrs []string

		if table.IsTerminal(state) {
			attrs = append(attrs, "peripheries=2")
		}

		if slices.Contains(opts.HighlightPath, name) {
			attrs = append(attrs, `style="rounded,filled"`, `fillcolor="#fff9c4"`)
		}

		if len(attrs) > 0 {
			fmt.Fprintf(&sb, "    %q [%s];\n", name, strings.Join(attrs, ", "))
		} else {
			fmt.Fprintf(&sb, "    %q;\n", name)
		}
	}

	fmt.Fprintf(&sb, "    __start -> %q;\n", fmt.Sprint(initial))

	for _, rule := range table.Rules() {
		if rule.Reentrant && !opts.ShowReentry {
			continue
		}

		fmt.Fprintf(&sb, "    %q -> %q [label=%q];\n", fmt.Sprint(rule.From), fmt.Sprint(rule.To), label(rule, opts))
	}

	sb.WriteString("}\n")

	return sb.String(), nil
}

func check[S, T comparable, D any](table *statemachine.Table[S, T, D], initial S) error {
	if table == nil {
		return ErrTableNil
	}

	if !slices.Contains(table.States(), initial) {
		return fmt.Errorf("%w: %v", ErrUndeclaredInitState, initial)
	}

	return nil
}

func label[S, T comparable, D any](rule statemachine.Rule[S, T, D], opts Options) string {
	text := fmt.Sprint(rule.Trigger)

	if opts.ShowGuards && rule.Guarded() {
		guard := rule.GuardDescription
		if guard == "" {
			guard = "guarded"
		}

		text += " [" + guard + "]"
	}

	return text
}
