// Package cart implements the shopping cart lifecycle on top of the generic
// statemachine engine. A Cart owns its state cell, item count and audit log;
// the engine only reaches the state through the accessor the cart hands it.
package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/statecart/statecart/logger"
	"github.com/statecart/statecart/statemachine"
	"github.com/statecart/statecart/statestore"
)

// MachineName labels cart engines in logs, metrics and spans.
const MachineName = "cart"

// Entry is a cart audit log entry.
type Entry = statemachine.Entry[State, Trigger]

// Option configures a Cart.
type Option func(*options)

type options struct {
	id     string
	store  statestore.Store
	logger statemachine.Logger
	quiet  bool
	clock  func() time.Time
	table  *Table
}

// WithID sets the cart ID. A random UUID is used otherwise.
func WithID(id string) Option {
	return func(o *options) {
		o.id = id
	}
}

// WithStateStore persists the state cell. Every state write goes through the
// store synchronously, and New restores a previously stored state.
func WithStateStore(store statestore.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithLogger sets the engine logging hooks. Passing nil silences them.
func WithLogger(l statemachine.Logger) Option {
	return func(o *options) {
		o.logger = l
		o.quiet = l == nil
	}
}

// WithClock sets the time source for audit entries.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithTable replaces the default cart table.
func WithTable(table *Table) Option {
	return func(o *options) {
		o.table = table
	}
}

// Cart is a shopping cart. All methods are safe for concurrent use; triggers
// fired on one cart are serialized.
type Cart struct {
	id    string
	store statestore.Store

	// Guarded by the engine lock.
	state     State
	itemCount int

	engine *statemachine.Engine[State, Trigger, Data]
}

// New creates a cart in Draft with no items and an empty log. With a state
// store, a state saved earlier under the same ID is restored instead, and a
// new cart's initial state is saved.
func New(ctx context.Context, opts ...Option) (*Cart, error) {
	var o options

	for _, opt := range opts {
		opt(&o)
	}

	if o.id == "" {
		o.id = uuid.NewString()
	}

	if o.table == nil {
		table, err := DefaultTable()
		if err != nil {
			return nil, fmt.Errorf("building cart table: %w", err)
		}

		o.table = table
	}

	c := &Cart{
		id:    o.id,
		store: o.store,
		state: Draft,
	}

	if err := c.restore(ctx); err != nil {
		return nil, err
	}

	engineOpts := []statemachine.Option{statemachine.WithName(MachineName)}
	if o.logger != nil || o.quiet {
		engineOpts = append(engineOpts, statemachine.WithLogger(o.logger))
	}

	if o.clock != nil {
		engineOpts = append(engineOpts, statemachine.WithClock(o.clock))
	}

	accessor := statemachine.StateFuncs[State]{
		Get: func() State { return c.state },
		Set: c.writeState,
	}

	engine, err := statemachine.NewEngine(o.table, statemachine.StateAccessor[State](accessor), c.data, nil, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating cart engine: %w", err)
	}

	c.engine = engine

	return c, nil
}

func (c *Cart) restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	stored, found, err := c.store.Load(ctx, c.id)
	if err != nil {
		return fmt.Errorf("loading cart %s: %w", c.id, err)
	}

	if !found {
		if err := c.store.Save(ctx, c.id, c.state.String()); err != nil {
			return fmt.Errorf("saving cart %s: %w", c.id, err)
		}

		return nil
	}

	state, err := ParseState(stored)
	if err != nil {
		return fmt.Errorf("loading cart %s: %w", c.id, err)
	}

	c.state = state

	logger.Get(logger.WithCartID(ctx, c.id)).Debug("Restored cart state", "state", state.String())

	return nil
}

// writeState is the engine's setter. The store is written first so that a
// failed write leaves memory and storage in agreement.
func (c *Cart) writeState(ctx context.Context, state State) error {
	if c.store != nil {
		if err := c.store.Save(ctx, c.id, state.String()); err != nil {
			return fmt.Errorf("saving cart %s: %w", c.id, err)
		}
	}

	c.state = state

	return nil
}

func (c *Cart) data() Data {
	return Data{ItemCount: c.itemCount}
}

// ID returns the cart ID.
func (c *Cart) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *Cart) State() State {
	return c.engine.State()
}

// ItemCount returns the number of items in the cart.
func (c *Cart) ItemCount() int {
	var n int

	c.engine.View(func(State) {
		n = c.itemCount
	})

	return n
}

// CanFire reports whether trigger would be accepted right now.
func (c *Cart) CanFire(trigger Trigger) bool {
	return c.engine.CanFire(trigger)
}

// PermittedTriggers returns the triggers that would be accepted right now.
func (c *Cart) PermittedTriggers() []Trigger {
	return c.engine.PermittedTriggers()
}

// Log returns a copy of the audit log.
func (c *Cart) Log() []Entry {
	return c.engine.Log().Entries()
}

// LogLines returns the audit log rendered one line per entry.
func (c *Cart) LogLines() []string {
	return c.engine.Log().Strings()
}

// Table returns the cart's transition table.
func (c *Cart) Table() *Table {
	return c.engine.Table()
}

// Snapshot is a consistent view of a cart between two fires.
type Snapshot struct {
	ID        string
	State     State
	ItemCount int
	Log       []string
}

// Snapshot returns the cart's state, item count and log as of a single point
// in time.
func (c *Cart) Snapshot() Snapshot {
	snap := Snapshot{ID: c.id}

	c.engine.View(func(state State) {
		snap.State = state
		snap.ItemCount = c.itemCount
		snap.Log = c.engine.Log().Strings()
	})

	return snap
}

// AddItem adds one item. Only accepted in Draft.
func (c *Cart) AddItem(ctx context.Context) error {
	return c.fire(ctx, AddItem)
}

// RemoveItem removes one item. Only accepted in Draft with at least one item.
func (c *Cart) RemoveItem(ctx context.Context) error {
	return c.fire(ctx, RemoveItem)
}

// PurchaseCart moves a Draft or Saved cart with items to Purchased.
func (c *Cart) PurchaseCart(ctx context.Context) error {
	return c.fire(ctx, PurchaseCart)
}

// SaveCart moves a Draft cart to Saved.
func (c *Cart) SaveCart(ctx context.Context) error {
	return c.fire(ctx, SaveCart)
}

// EditCart moves a Saved cart back to Draft.
func (c *Cart) EditCart(ctx context.Context) error {
	return c.fire(ctx, EditCart)
}

// DeleteCart moves a Draft or Saved cart to Deleted.
func (c *Cart) DeleteCart(ctx context.Context) error {
	return c.fire(ctx, DeleteCart)
}

// AddNote records a note. Accepted in every state and never changes it.
func (c *Cart) AddNote(ctx context.Context) error {
	return c.fire(ctx, AddNote)
}

// Fire fires trigger by value, for hosts that dispatch on user input.
// Declined triggers return nil and change nothing.
func (c *Cart) Fire(ctx context.Context, trigger Trigger) error {
	_, err := c.FireDecision(ctx, trigger)

	return err
}

// FireDecision is Fire, also reporting whether the cart accepted the
// trigger. The answer is taken under the cart's lock, so it stays correct
// when other triggers race on the same cart.
func (c *Cart) FireDecision(ctx context.Context, trigger Trigger) (statemachine.Decision[State], error) {
	if trigger < 0 || int(trigger) >= len(triggerNames) {
		return statemachine.Decision[State]{}, fmt.Errorf("%w: %v", ErrUnknownTrigger, trigger)
	}

	return c.fireDecision(ctx, trigger)
}

func (c *Cart) fire(ctx context.Context, trigger Trigger) error {
	_, err := c.fireDecision(ctx, trigger)

	return err
}

func (c *Cart) fireDecision(ctx context.Context, trigger Trigger) (statemachine.Decision[State], error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx = logger.WithCartID(ctx, c.id)

	return c.engine.FireDecision(ctx, trigger, c.action(trigger))
}

// action returns the post-transition action for trigger. It runs with the
// engine lock held.
func (c *Cart) action(trigger Trigger) statemachine.Action {
	switch trigger { //nolint:exhaustive
	case AddItem:
		return func(ctx context.Context) error {
			c.itemCount++

			logger.Get(ctx).Debug("Item added", "item_count", c.itemCount)

			return nil
		}
	case RemoveItem:
		return func(ctx context.Context) error {
			c.itemCount--

			logger.Get(ctx).Debug("Item removed", "item_count", c.itemCount)

			return nil
		}
	default:
		return nil
	}
}
