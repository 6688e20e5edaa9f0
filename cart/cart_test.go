package cart

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/statecart/statecart/statemachine"
	"github.com/statecart/statecart/statestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

var (
	errStoreDown = errors.New("store down") //nolint:err113
	testTime     = time.Date(2024, time.May, 4, 12, 0, 0, 0, time.UTC)
)

func newTestCart(t *testing.T, opts ...Option) *Cart {
	t.Helper()

	opts = append([]Option{
		WithLogger(statemachine.NewSlogLogger(slogt.New(t))),
		WithClock(func() time.Time { return testTime }),
	}, opts...)

	c, err := New(t.Context(), opts...)
	require.NoError(t, err)

	return c
}

// newCartIn returns a cart driven to state holding items items.
func newCartIn(t *testing.T, state State, items int) *Cart {
	t.Helper()

	c := newTestCart(t)
	ctx := t.Context()

	for range items {
		require.NoError(t, c.AddItem(ctx))
	}

	switch state {
	case Draft:
	case Saved:
		require.NoError(t, c.SaveCart(ctx))
	case Purchased:
		require.NoError(t, c.PurchaseCart(ctx))
	case Deleted:
		require.NoError(t, c.DeleteCart(ctx))
	}

	require.Equal(t, state, c.State())
	require.Equal(t, items, c.ItemCount())

	return c
}

func TestNewCart(t *testing.T) {
	t.Parallel()

	c := newTestCart(t)

	assert.NotEmpty(t, c.ID())
	assert.Equal(t, Draft, c.State())
	assert.Zero(t, c.ItemCount())
	assert.Empty(t, c.Log())
	assert.Empty(t, c.LogLines())

	named := newTestCart(t, WithID("cart-42"))
	assert.Equal(t, "cart-42", named.ID())
}

func TestAddItemKeepsDraft(t *testing.T) {
	t.Parallel()

	c := newTestCart(t)

	require.NoError(t, c.AddItem(t.Context()))

	assert.Equal(t, Draft, c.State())
	assert.Equal(t, 1, c.ItemCount())

	entries := c.Log()
	require.Len(t, entries, 1)
	assert.Equal(t, Draft, entries[0].From)
	assert.Equal(t, AddItem, entries[0].Trigger)
	assert.False(t, entries[0].Transitioned)
	assert.Equal(t, "2024-05-04 12:00:00 - In state Draft. Fired trigger AddItem.", entries[0].String())
}

func TestRemoveItem(t *testing.T) {
	t.Parallel()

	empty := newTestCart(t)
	assert.False(t, empty.CanFire(RemoveItem))
	require.NoError(t, empty.RemoveItem(t.Context()))
	assert.Zero(t, empty.ItemCount())
	assert.Empty(t, empty.Log())

	full := newCartIn(t, Draft, 2)
	assert.True(t, full.CanFire(RemoveItem))
	require.NoError(t, full.RemoveItem(t.Context()))
	assert.Equal(t, 1, full.ItemCount())
	assert.Equal(t, Draft, full.State())
	assert.Len(t, full.Log(), 3)
}

func TestPurchaseCart(t *testing.T) {
	t.Parallel()

	empty := newTestCart(t)
	assert.False(t, empty.CanFire(PurchaseCart))
	require.NoError(t, empty.PurchaseCart(t.Context()))
	assert.Equal(t, Draft, empty.State())
	assert.Empty(t, empty.Log())

	full := newCartIn(t, Draft, 1)
	require.NoError(t, full.PurchaseCart(t.Context()))
	assert.Equal(t, Purchased, full.State())

	last := full.Log()[len(full.Log())-1]
	assert.Equal(t, Draft, last.From)
	assert.Equal(t, Purchased, last.To)
	assert.True(t, last.Transitioned)
	assert.Equal(t, "2024-05-04 12:00:00 - In state Draft. Fired trigger PurchaseCart. Transitioned to Purchased",
		last.String())
}

func TestSaveAndEditCart(t *testing.T) {
	t.Parallel()

	c := newTestCart(t)

	require.NoError(t, c.SaveCart(t.Context()))
	assert.Equal(t, Saved, c.State())

	// EditCart has no guard: an empty saved cart goes back to Draft.
	require.NoError(t, c.EditCart(t.Context()))
	assert.Equal(t, Draft, c.State())

	assert.Equal(t, []string{
		"2024-05-04 12:00:00 - In state Draft. Fired trigger SaveCart. Transitioned to Saved",
		"2024-05-04 12:00:00 - In state Saved. Fired trigger EditCart. Transitioned to Draft",
	}, c.LogLines())
}

func TestAddNoteFromEveryState(t *testing.T) {
	t.Parallel()

	for _, state := range AllStates() {
		t.Run(state.String(), func(t *testing.T) {
			t.Parallel()

			c := newCartIn(t, state, 1)
			before := len(c.Log())

			assert.True(t, c.CanFire(AddNote))
			require.NoError(t, c.AddNote(t.Context()))

			assert.Equal(t, state, c.State())
			require.Len(t, c.Log(), before+1)

			last := c.Log()[before]
			assert.False(t, last.Transitioned)
			assert.Equal(t,
				fmt.Sprintf("2024-05-04 12:00:00 - In state %s. Fired trigger AddNote.", state),
				last.String())
		})
	}
}

// TestDeniedTriggersAreNoOps fires every trigger the table has no rule for
// in each state and checks that nothing changes.
func TestDeniedTriggersAreNoOps(t *testing.T) {
	t.Parallel()

	table, err := NewTable()
	require.NoError(t, err)

	for _, state := range AllStates() {
		for _, trigger := range AllTriggers() {
			if table.IsConfigured(state, trigger) {
				continue
			}

			t.Run(state.String()+"/"+trigger.String(), func(t *testing.T) {
				t.Parallel()

				c := newCartIn(t, state, 1)
				before := c.Snapshot()

				assert.False(t, c.CanFire(trigger))
				require.NoError(t, c.Fire(t.Context(), trigger))

				assert.Equal(t, before, c.Snapshot())
			})
		}
	}
}

func TestPermittedTriggers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		items int
		want  []Trigger
	}{
		{Draft, 0, []Trigger{AddItem, DeleteCart, SaveCart, AddNote}},
		{Draft, 1, []Trigger{AddItem, RemoveItem, DeleteCart, PurchaseCart, SaveCart, AddNote}},
		{Saved, 0, []Trigger{DeleteCart, EditCart, AddNote}},
		{Saved, 2, []Trigger{DeleteCart, EditCart, PurchaseCart, AddNote}},
		{Purchased, 1, []Trigger{AddNote}},
		{Deleted, 0, []Trigger{AddNote}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.state, tt.items), func(t *testing.T) {
			t.Parallel()

			c := newCartIn(t, tt.state, tt.items)
			assert.ElementsMatch(t, tt.want, c.PermittedTriggers())

			for _, trigger := range AllTriggers() {
				assert.Equal(t, c.CanFire(trigger), slices.Contains(tt.want, trigger), trigger.String())
			}
		})
	}
}

func TestFireUnknownTrigger(t *testing.T) {
	t.Parallel()

	c := newTestCart(t)

	require.ErrorIs(t, c.Fire(t.Context(), Trigger(99)), ErrUnknownTrigger)
	require.ErrorIs(t, c.Fire(t.Context(), Trigger(-1)), ErrUnknownTrigger)
	assert.Empty(t, c.Log())
}

func TestFireDispatchesByValue(t *testing.T) {
	t.Parallel()

	c := newTestCart(t)

	require.NoError(t, c.Fire(t.Context(), AddItem))
	require.NoError(t, c.Fire(t.Context(), SaveCart))

	assert.Equal(t, Saved, c.State())
	assert.Equal(t, 1, c.ItemCount())
}

func TestFireDecisionReportsAcceptance(t *testing.T) {
	t.Parallel()

	c := newCartIn(t, Purchased, 1)

	decision, err := c.FireDecision(t.Context(), DeleteCart)
	require.NoError(t, err)
	assert.False(t, decision.Allowed())

	decision, err = c.FireDecision(t.Context(), AddNote)
	require.NoError(t, err)
	assert.Equal(t, statemachine.Decision[State]{Kind: statemachine.AllowedReentry, To: Purchased}, decision)

	_, err = c.FireDecision(t.Context(), Trigger(42))
	require.ErrorIs(t, err, ErrUnknownTrigger)
}

func TestFireDecisionUnderContention(t *testing.T) {
	t.Parallel()

	c := newCartIn(t, Purchased, 1)

	before := len(c.Log())

	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
	)

	for range 200 {
		wg.Add(2)

		go func() {
			defer wg.Done()

			decision, err := c.FireDecision(context.Background(), DeleteCart)
			assert.NoError(t, err)

			if decision.Allowed() {
				accepted.Inc()
			}
		}()

		go func() {
			defer wg.Done()

			assert.NoError(t, c.AddNote(context.Background()))
		}()
	}

	wg.Wait()

	assert.Zero(t, accepted.Load())
	assert.Equal(t, Purchased, c.State())
	assert.Len(t, c.Log(), before+200)
}

func TestEndToEnd(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	c := newTestCart(t)

	for range 3 {
		require.NoError(t, c.AddItem(ctx))
	}

	require.NoError(t, c.SaveCart(ctx))
	require.NoError(t, c.PurchaseCart(ctx))

	assert.Equal(t, Purchased, c.State())
	assert.Equal(t, 3, c.ItemCount())

	assert.False(t, c.CanFire(DeleteCart))
	require.NoError(t, c.DeleteCart(ctx))

	assert.Equal(t, Purchased, c.State())
	assert.Equal(t, 3, c.ItemCount())

	assert.Equal(t, []string{
		"2024-05-04 12:00:00 - In state Draft. Fired trigger AddItem.",
		"2024-05-04 12:00:00 - In state Draft. Fired trigger AddItem.",
		"2024-05-04 12:00:00 - In state Draft. Fired trigger AddItem.",
		"2024-05-04 12:00:00 - In state Draft. Fired trigger SaveCart. Transitioned to Saved",
		"2024-05-04 12:00:00 - In state Saved. Fired trigger PurchaseCart. Transitioned to Purchased",
	}, c.LogLines())
}

func TestConcurrentFiresAreSerialized(t *testing.T) {
	t.Parallel()

	const workers = 100

	c := newTestCart(t, WithLogger(nil))
	triggers := AllTriggers()

	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, c.Fire(context.Background(), triggers[rand.IntN(len(triggers))])) //nolint:gosec
		}()
	}

	wg.Wait()

	entries := c.Log()

	// Replaying the accepted triggers in sequence order on a fresh cart
	// must produce the same state, item count and log shape.
	replay := newTestCart(t, WithLogger(nil))

	for i, entry := range entries {
		assert.Equal(t, uint64(i+1), entry.Seq)
		require.Equal(t, entry.From, replay.State(), "entry %d", entry.Seq)
		require.True(t, replay.CanFire(entry.Trigger), "entry %d", entry.Seq)
		require.NoError(t, replay.Fire(t.Context(), entry.Trigger))
	}

	assert.Equal(t, c.State(), replay.State())
	assert.Equal(t, c.ItemCount(), replay.ItemCount())
	assert.Len(t, replay.Log(), len(entries))
}

func TestCartsAreIndependent(t *testing.T) {
	t.Parallel()

	first := newTestCart(t)
	second := newTestCart(t)

	require.NoError(t, first.AddItem(t.Context()))
	require.NoError(t, first.SaveCart(t.Context()))

	assert.Equal(t, Saved, first.State())
	assert.Equal(t, Draft, second.State())
	assert.Zero(t, second.ItemCount())
	assert.Empty(t, second.Log())
}

func TestStateStorePersistsAndRestores(t *testing.T) {
	t.Parallel()

	store := statestore.NewMemory()

	c := newTestCart(t, WithID("cart-7"), WithStateStore(store))

	stored, found, err := store.Load(t.Context(), "cart-7")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Draft", stored)

	require.NoError(t, c.SaveCart(t.Context()))

	stored, _, err = store.Load(t.Context(), "cart-7")
	require.NoError(t, err)
	assert.Equal(t, "Saved", stored)

	restored := newTestCart(t, WithID("cart-7"), WithStateStore(store))
	assert.Equal(t, Saved, restored.State())
	assert.Empty(t, restored.Log())
}

func TestStateStoreRejectsUnknownState(t *testing.T) {
	t.Parallel()

	store := statestore.NewMemory()
	require.NoError(t, store.Save(t.Context(), "cart-x", "Abandoned"))

	_, err := New(t.Context(), WithID("cart-x"), WithStateStore(store))
	require.ErrorIs(t, err, ErrUnknownState)
}

// failingStore fails every Save once armed.
type failingStore struct {
	*statestore.Memory

	mu    sync.Mutex
	armed bool
}

func (f *failingStore) arm() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.armed = true
}

func (f *failingStore) Save(ctx context.Context, id, state string) error {
	f.mu.Lock()
	armed := f.armed
	f.mu.Unlock()

	if armed {
		return errStoreDown
	}

	return f.Memory.Save(ctx, id, state)
}

func TestStateStoreWriteFailureAbortsFire(t *testing.T) {
	t.Parallel()

	store := &failingStore{Memory: statestore.NewMemory()}
	c := newTestCart(t, WithStateStore(store))

	store.arm()

	err := c.AddItem(t.Context())
	require.ErrorIs(t, err, statemachine.ErrStateWrite)
	require.ErrorIs(t, err, errStoreDown)

	// Neither the action nor the audit append ran.
	assert.Zero(t, c.ItemCount())
	assert.Equal(t, Draft, c.State())
	assert.Empty(t, c.Log())

	stored, _, err := store.Load(t.Context(), c.ID())
	require.NoError(t, err)
	assert.Equal(t, "Draft", stored)
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	c := newCartIn(t, Saved, 2)

	snap := c.Snapshot()
	assert.Equal(t, c.ID(), snap.ID)
	assert.Equal(t, Saved, snap.State)
	assert.Equal(t, 2, snap.ItemCount)
	assert.Len(t, snap.Log, 3)
}
