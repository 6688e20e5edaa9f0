package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/statecart/statecart/statestore"
)

// ErrCartNotFound is returned by Registry.Get for an ID with no loaded cart
// and no stored state.
var ErrCartNotFound = errors.New("cart not found")

// Registry keeps the live carts of a process. Carts are loaded from the
// state store on first use. Only the state survives a reload; item counts
// start at zero.
type Registry struct {
	mu    sync.Mutex
	carts map[string]*Cart
	store statestore.Store
	opts  []Option
}

// NewRegistry returns a registry backed by store. A nil store keeps
// everything in memory. opts are applied to every cart the registry creates.
func NewRegistry(store statestore.Store, opts ...Option) *Registry {
	if store == nil {
		store = statestore.NewMemory()
	}

	return &Registry{
		carts: make(map[string]*Cart),
		store: store,
		opts:  opts,
	}
}

// Store returns the backing state store.
func (r *Registry) Store() statestore.Store {
	return r.store
}

// Create makes a new cart with a random ID.
func (r *Registry) Create(ctx context.Context) (*Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.newCart(ctx, "")
	if err != nil {
		return nil, err
	}

	r.carts[c.ID()] = c

	return c, nil
}

// Get returns the cart with the given ID, loading it from the store if it
// is not live yet.
func (r *Registry) Get(ctx context.Context, id string) (*Cart, error) {
	if id == "" {
		return nil, statestore.ErrEmptyID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.carts[id]; ok {
		return c, nil
	}

	_, found, err := r.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("looking up cart %s: %w", id, err)
	}

	if !found {
		return nil, fmt.Errorf("%w: %s", ErrCartNotFound, id)
	}

	return r.load(ctx, id)
}

// Open returns the cart with the given ID, creating it in Draft if it does
// not exist anywhere. An empty id is rejected; use Create for a fresh ID.
func (r *Registry) Open(ctx context.Context, id string) (*Cart, error) {
	if id == "" {
		return nil, statestore.ErrEmptyID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.carts[id]; ok {
		return c, nil
	}

	return r.load(ctx, id)
}

// List returns the stored state of every cart, keyed by ID.
func (r *Registry) List(ctx context.Context) (map[string]string, error) {
	return r.store.List(ctx)
}

// Len returns the number of live carts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.carts)
}

// load must be called with r.mu held.
func (r *Registry) load(ctx context.Context, id string) (*Cart, error) {
	c, err := r.newCart(ctx, id)
	if err != nil {
		return nil, err
	}

	r.carts[c.ID()] = c

	return c, nil
}

func (r *Registry) newCart(ctx context.Context, id string) (*Cart, error) {
	opts := make([]Option, 0, len(r.opts)+2) //nolint:mnd
	opts = append(opts, r.opts...)
	opts = append(opts, WithStateStore(r.store))

	if id != "" {
		opts = append(opts, WithID(id))
	}

	return New(ctx, opts...)
}
