package cart

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownState is returned when a state name does not match any cart state.
	ErrUnknownState = errors.New("unknown cart state")

	// ErrUnknownTrigger is returned when a trigger name does not match any cart trigger.
	ErrUnknownTrigger = errors.New("unknown cart trigger")
)

// State is the lifecycle state of a cart.
type State int

const (
	Draft State = iota
	Saved
	Purchased
	Deleted
)

var stateNames = [...]string{ //nolint:gochecknoglobals
	Draft:     "Draft",
	Saved:     "Saved",
	Purchased: "Purchased",
	Deleted:   "Deleted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}

	return stateNames[s]
}

// AllStates returns every cart state in declaration order.
func AllStates() []State {
	return []State{Draft, Saved, Purchased, Deleted}
}

// ParseState maps a state name, case-insensitively, to a State.
func ParseState(name string) (State, error) {
	for _, s := range AllStates() {
		if strings.EqualFold(s.String(), name) {
			return s, nil
		}
	}

	return Draft, fmt.Errorf("%w: %q", ErrUnknownState, name)
}

// Trigger is an input to the cart lifecycle. Triggers are never stored.
type Trigger int

const (
	AddItem Trigger = iota
	RemoveItem
	PurchaseCart
	DeleteCart
	AddNote
	SaveCart
	EditCart
)

var triggerNames = [...]string{ //nolint:gochecknoglobals
	AddItem:      "AddItem",
	RemoveItem:   "RemoveItem",
	PurchaseCart: "PurchaseCart",
	DeleteCart:   "DeleteCart",
	AddNote:      "AddNote",
	SaveCart:     "SaveCart",
	EditCart:     "EditCart",
}

func (t Trigger) String() string {
	if t < 0 || int(t) >= len(triggerNames) {
		return fmt.Sprintf("Trigger(%d)", int(t))
	}

	return triggerNames[t]
}

// AllTriggers returns every cart trigger in declaration order.
func AllTriggers() []Trigger {
	return []Trigger{AddItem, RemoveItem, PurchaseCart, DeleteCart, AddNote, SaveCart, EditCart}
}

// ParseTrigger maps a trigger name, case-insensitively, to a Trigger.
func ParseTrigger(name string) (Trigger, error) {
	for _, t := range AllTriggers() {
		if strings.EqualFold(t.String(), name) {
			return t, nil
		}
	}

	return AddItem, fmt.Errorf("%w: %q", ErrUnknownTrigger, name)
}

// Data is the business data the cart's guards read.
type Data struct {
	ItemCount int
}

// HasItems reports whether the cart holds at least one item.
func HasItems(d Data) bool {
	return d.ItemCount > 0
}
