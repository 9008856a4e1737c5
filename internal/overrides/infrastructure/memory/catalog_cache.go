package memory

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/said46/autoSOC/internal/observability/metrics"
	overrides "github.com/said46/autoSOC/internal/overrides/domain"
)

// CachedCatalog keeps catalog answers for the lifetime of a session.
// Concurrent misses for the same key share one fetch. Failures are not cached.
type CachedCatalog struct {
	inner overrides.Catalog
	group singleflight.Group

	mu      sync.RWMutex
	methods map[int64][]overrides.OverrideMethod
	states  map[int64]overrides.StateSet
}

// NewCachedCatalog wraps inner.
func NewCachedCatalog(inner overrides.Catalog) *CachedCatalog {
	return &CachedCatalog{
		inner:   inner,
		methods: make(map[int64][]overrides.OverrideMethod),
		states:  make(map[int64]overrides.StateSet),
	}
}

// Types passes through to the wrapped catalog when it lists types.
func (c *CachedCatalog) Types(ctx context.Context) ([]overrides.OverrideType, error) {
	lister, ok := c.inner.(overrides.TypeLister)
	if !ok {
		return overrides.DefaultTypes(), nil
	}
	return lister.Types(ctx)
}

// MethodsForType returns the cached methods of typeID, fetching on miss.
func (c *CachedCatalog) MethodsForType(ctx context.Context, typeID int64) ([]overrides.OverrideMethod, error) {
	if c.inner == nil {
		return nil, errors.New("memory: nil catalog")
	}
	c.mu.RLock()
	cached, ok := c.methods[typeID]
	c.mu.RUnlock()
	metrics.IncCatalogCache("methods", ok)
	if ok {
		return cloneMethods(cached), nil
	}

	v, err := c.shared(ctx, "m:"+strconv.FormatInt(typeID, 10), func(ctx context.Context) (any, error) {
		methods, err := c.inner.MethodsForType(ctx, typeID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.methods[typeID] = methods
		c.mu.Unlock()
		return methods, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneMethods(v.([]overrides.OverrideMethod)), nil
}

// StatesForMethod returns the cached states of methodID, fetching on miss.
func (c *CachedCatalog) StatesForMethod(ctx context.Context, methodID int64) (overrides.StateSet, error) {
	if c.inner == nil {
		return overrides.StateSet{}, errors.New("memory: nil catalog")
	}
	c.mu.RLock()
	cached, ok := c.states[methodID]
	c.mu.RUnlock()
	metrics.IncCatalogCache("states", ok)
	if ok {
		return cloneStates(cached), nil
	}

	v, err := c.shared(ctx, "s:"+strconv.FormatInt(methodID, 10), func(ctx context.Context) (any, error) {
		states, err := c.inner.StatesForMethod(ctx, methodID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.states[methodID] = states
		c.mu.Unlock()
		return states, nil
	})
	if err != nil {
		return overrides.StateSet{}, err
	}
	return cloneStates(v.(overrides.StateSet)), nil
}

// shared runs fetch once per key. The fetch is detached from the caller's
// cancellation since other sessions may be waiting on it; a cancelled caller
// stops waiting and gets ctx.Err().
func (c *CachedCatalog) shared(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return fetch(detached)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// Invalidate drops every cached entry so the next read re-fetches.
func (c *CachedCatalog) Invalidate() {
	c.mu.Lock()
	c.methods = make(map[int64][]overrides.OverrideMethod)
	c.states = make(map[int64]overrides.StateSet)
	c.mu.Unlock()
}

func cloneMethods(in []overrides.OverrideMethod) []overrides.OverrideMethod {
	return append([]overrides.OverrideMethod(nil), in...)
}

func cloneStates(in overrides.StateSet) overrides.StateSet {
	return overrides.StateSet{
		Applied: append([]overrides.OverrideState(nil), in.Applied...),
		Removed: append([]overrides.OverrideState(nil), in.Removed...),
	}
}
