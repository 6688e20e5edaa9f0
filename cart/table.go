package cart

import (
	"sync"

	"github.com/statecart/statecart/statemachine"
)

// Table is the cart's transition table type.
type Table = statemachine.Table[State, Trigger, Data]

const hasItemsDescription = "cart has items"

// NewTable builds the cart lifecycle table:
//
//	Draft  AddItem       -> Draft (reentry)
//	Draft  RemoveItem    -> Draft (reentry, cart has items)
//	Draft  DeleteCart    -> Deleted
//	Draft  PurchaseCart  -> Purchased (cart has items)
//	Draft  SaveCart      -> Saved
//	Saved  DeleteCart    -> Deleted
//	Saved  EditCart      -> Draft
//	Saved  PurchaseCart  -> Purchased (cart has items)
//	*      AddNote       -> * (reentry)
func NewTable() (*Table, error) {
	b := statemachine.NewBuilder[State, Trigger, Data](AllStates()...)

	b.Configure(Draft).
		PermitReentry(AddItem).
		PermitReentryIf(RemoveItem, hasItemsDescription, HasItems).
		Permit(DeleteCart, Deleted).
		PermitIf(PurchaseCart, Purchased, hasItemsDescription, HasItems).
		Permit(SaveCart, Saved)

	b.Configure(Saved).
		Permit(DeleteCart, Deleted).
		Permit(EditCart, Draft).
		PermitIf(PurchaseCart, Purchased, hasItemsDescription, HasItems)

	b.ForEachState(func(cfg *statemachine.StateConfig[State, Trigger, Data]) {
		cfg.PermitReentry(AddNote)
	})

	return b.Build()
}

// DefaultTable returns the shared cart table. Tables are immutable, so every
// cart can use the same one.
var DefaultTable = sync.OnceValues(NewTable) //nolint:gochecknoglobals
