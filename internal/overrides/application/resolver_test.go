package application

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	overrides "github.com/said46/autoSOC/internal/overrides/domain"
)

func newTestResolver(t *testing.T, cat overrides.Catalog) *Resolver {
	t.Helper()
	r, err := NewResolver(cat)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func waitIdle(t *testing.T, r *Resolver) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
}

func methodIDs(methods []overrides.OverrideMethod) []int64 {
	ids := make([]int64, 0, len(methods))
	for _, m := range methods {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestResolverCascade(t *testing.T) {
	r := newTestResolver(t, newFixtureCatalog())

	require.NoError(t, r.SelectType(1))
	waitIdle(t, r)
	assert.Equal(t, []int64{1, 2}, methodIDs(r.Snapshot().Methods))

	require.NoError(t, r.SelectMethod(1))
	waitIdle(t, r)
	require.NoError(t, r.SelectAppliedState(1))
	require.NoError(t, r.SelectRemovedState(2))

	sel, err := r.Record()
	require.NoError(t, err)
	assert.Equal(t, Selection{TypeID: 1, MethodID: 1, AppliedStateID: 1, RemovedStateID: 2, TypeTitle: "Bypass", MethodTitle: "Software"}, sel)
}

func TestResolverParentChangeClearsChildrenSynchronously(t *testing.T) {
	r := newTestResolver(t, newFixtureCatalog())
	require.NoError(t, r.SelectType(1))
	waitIdle(t, r)
	require.NoError(t, r.SelectMethod(1))
	waitIdle(t, r)
	require.NoError(t, r.SelectAppliedState(1))
	require.NoError(t, r.SelectRemovedState(2))

	require.NoError(t, r.SelectType(2))
	snap := r.Snapshot()
	assert.Equal(t, int64(2), snap.TypeID)
	assert.Zero(t, snap.MethodID)
	assert.Zero(t, snap.AppliedStateID)
	assert.Zero(t, snap.RemovedStateID)
	assert.Empty(t, snap.Methods)
	assert.Empty(t, snap.Applied)

	waitIdle(t, r)
	require.NoError(t, r.SelectMethod(5))
	snap = r.Snapshot()
	assert.True(t, snap.StatesLoading)
	assert.Empty(t, snap.Applied)
	assert.Empty(t, snap.Removed)
}

func TestResolverSelectMethodAfterTypeChange(t *testing.T) {
	r := newTestResolver(t, newFixtureCatalog())
	require.NoError(t, r.SelectType(1))
	waitIdle(t, r)
	require.NoError(t, r.SelectMethod(1))

	require.NoError(t, r.SelectType(2))
	waitIdle(t, r)
	err := r.SelectMethod(1)
	require.Error(t, err)
	assert.ErrorIs(t, err, overrides.ErrInvalidSelection)
	var invalid *overrides.InvalidSelectionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, overrides.SlotMethod, invalid.Slot)
	assert.Zero(t, r.Snapshot().MethodID)
}

func TestResolverRefusesSelectionWhileLoading(t *testing.T) {
	cat := newFixtureCatalog()
	cat.gate = make(chan *pendingCall, 4)
	r := newTestResolver(t, cat)

	require.NoError(t, r.SelectType(1))
	call := <-cat.gate
	assert.True(t, r.Snapshot().MethodsLoading)
	assert.ErrorIs(t, r.SelectMethod(1), overrides.ErrInvalidSelection)

	close(call.release)
	waitIdle(t, r)
	assert.NoError(t, r.SelectMethod(1))
	close((<-cat.gate).release)
	waitIdle(t, r)
}

func TestResolverStateSelectionRules(t *testing.T) {
	r := newTestResolver(t, newFixtureCatalog())
	assert.ErrorIs(t, r.SelectAppliedState(1), overrides.ErrInvalidSelection)
	assert.ErrorIs(t, r.SelectMethod(1), overrides.ErrInvalidSelection)
	assert.ErrorIs(t, r.SelectType(0), overrides.ErrInvalidSelection)

	require.NoError(t, r.SelectType(1))
	waitIdle(t, r)
	require.NoError(t, r.SelectMethod(1))
	waitIdle(t, r)

	assert.ErrorIs(t, r.SelectAppliedState(2), overrides.ErrInvalidSelection, "removed state is not an applied option")
	assert.ErrorIs(t, r.SelectRemovedState(1), overrides.ErrInvalidSelection)
	assert.ErrorIs(t, r.SelectAppliedState(6), overrides.ErrInvalidSelection, "state of another method")
	assert.NoError(t, r.SelectAppliedState(1))
}

func TestResolverSupersededMethodsDiscarded(t *testing.T) {
	cat := newFixtureCatalog()
	cat.gate = make(chan *pendingCall, 4)
	r := newTestResolver(t, cat)

	require.NoError(t, r.SelectType(1))
	first := <-cat.gate
	require.NoError(t, r.SelectType(2))
	second := <-cat.gate
	assert.Equal(t, int64(1), first.key)
	assert.Equal(t, int64(2), second.key)

	close(second.release)
	require.Eventually(t, func() bool { return !r.Snapshot().MethodsLoading }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []int64{5, 6}, methodIDs(r.Snapshot().Methods))

	close(first.release)
	waitIdle(t, r)
	snap := r.Snapshot()
	assert.Equal(t, int64(2), snap.TypeID)
	assert.Equal(t, []int64{5, 6}, methodIDs(snap.Methods))
	assert.ErrorIs(t, r.SelectMethod(1), overrides.ErrInvalidSelection)
}

func TestResolverStaleResultArrivingFirstIsDiscarded(t *testing.T) {
	cat := newFixtureCatalog()
	cat.gate = make(chan *pendingCall, 4)
	r := newTestResolver(t, cat)

	require.NoError(t, r.SelectType(1))
	first := <-cat.gate
	require.NoError(t, r.SelectType(3))
	second := <-cat.gate

	close(first.release)
	time.Sleep(20 * time.Millisecond)
	snap := r.Snapshot()
	assert.True(t, snap.MethodsLoading)
	assert.Empty(t, snap.Methods)

	close(second.release)
	waitIdle(t, r)
	assert.Equal(t, []int64{8}, methodIDs(r.Snapshot().Methods))
}

func TestResolverSupersededStatesDiscarded(t *testing.T) {
	cat := newFixtureCatalog()
	r := newTestResolver(t, cat)
	require.NoError(t, r.SelectType(1))
	waitIdle(t, r)

	cat.mu.Lock()
	cat.gate = make(chan *pendingCall, 4)
	cat.mu.Unlock()

	require.NoError(t, r.SelectMethod(1))
	first := <-cat.gate
	require.NoError(t, r.SelectMethod(2))
	second := <-cat.gate

	close(second.release)
	close(first.release)
	waitIdle(t, r)
	snap := r.Snapshot()
	assert.Equal(t, int64(2), snap.MethodID)
	require.Len(t, snap.Applied, 1)
	assert.Equal(t, int64(3), snap.Applied[0].ID)
}

func TestResolverReset(t *testing.T) {
	cat := newFixtureCatalog()
	cat.gate = make(chan *pendingCall, 4)
	r := newTestResolver(t, cat)

	require.NoError(t, r.SelectType(1))
	call := <-cat.gate
	r.Reset()
	assert.Equal(t, Snapshot{}, r.Snapshot())

	close(call.release)
	waitIdle(t, r)
	assert.Equal(t, Snapshot{}, r.Snapshot())

	_, err := r.Record()
	assert.ErrorIs(t, err, overrides.ErrInvalidSelection)
}

func TestResolverCatalogFailure(t *testing.T) {
	cat := newFixtureCatalog()
	cat.setFailing(true)
	r := newTestResolver(t, cat)

	require.NoError(t, r.SelectType(1))
	waitIdle(t, r)
	snap := r.Snapshot()
	assert.ErrorIs(t, snap.Err, overrides.ErrCatalogUnavailable)
	assert.False(t, snap.MethodsLoading)
	assert.ErrorIs(t, r.SelectMethod(1), overrides.ErrInvalidSelection)

	cat.setFailing(false)
	require.NoError(t, r.SelectType(1))
	waitIdle(t, r)
	assert.NoError(t, r.Snapshot().Err)
	assert.NoError(t, r.SelectMethod(1))
	waitIdle(t, r)
}

func TestResolverByTitle(t *testing.T) {
	r := newTestResolver(t, newFixtureCatalog())

	id, err := r.SelectTypeByTitle("bypass")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	waitIdle(t, r)

	id, err = r.SelectMethodByTitle("soft")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	waitIdle(t, r)

	_, err = r.SelectAppliedStateByTitle("BYPASSED")
	require.NoError(t, err)
	_, err = r.SelectRemovedStateByTitle("nothing like it")
	assert.ErrorIs(t, err, overrides.ErrInvalidSelection)
	_, err = r.SelectTypeByTitle("")
	assert.ErrorIs(t, err, overrides.ErrInvalidSelection)
}

func TestResolverWaitHonorsContext(t *testing.T) {
	cat := newFixtureCatalog()
	cat.gate = make(chan *pendingCall, 4)
	r := newTestResolver(t, cat)

	require.NoError(t, r.SelectType(1))
	call := <-cat.gate
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)

	close(call.release)
	waitIdle(t, r)
}

// checkInvariant asserts every set slot is a valid child of its parent.
func checkInvariant(t *testing.T, cat *fixtureCatalog, snap Snapshot) {
	t.Helper()
	if snap.MethodID != 0 {
		require.NotZero(t, snap.TypeID)
		require.True(t, cat.validMethod(snap.TypeID, snap.MethodID), "method %d under type %d", snap.MethodID, snap.TypeID)
	}
	if snap.AppliedStateID != 0 {
		require.NotZero(t, snap.MethodID)
		require.True(t, cat.validState(snap.MethodID, snap.AppliedStateID, overrides.RoleApplied))
	}
	if snap.RemovedStateID != 0 {
		require.NotZero(t, snap.MethodID)
		require.True(t, cat.validState(snap.MethodID, snap.RemovedStateID, overrides.RoleRemoved))
	}
	for _, m := range snap.Methods {
		require.Equal(t, snap.TypeID, m.TypeID)
		require.True(t, cat.validMethod(snap.TypeID, m.ID))
	}
	for _, s := range snap.Applied {
		require.Equal(t, snap.MethodID, s.MethodID)
		require.True(t, cat.validState(snap.MethodID, s.ID, overrides.RoleApplied))
	}
	for _, s := range snap.Removed {
		require.Equal(t, snap.MethodID, s.MethodID)
		require.True(t, cat.validState(snap.MethodID, s.ID, overrides.RoleRemoved))
	}
}

func TestResolverRandomInterleavings(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		var rngMu sync.Mutex
		cat := newFixtureCatalog()
		cat.latency = func() time.Duration {
			rngMu.Lock()
			defer rngMu.Unlock()
			return time.Duration(rng.Intn(2000)) * time.Microsecond
		}
		r, err := NewResolver(cat)
		require.NoError(t, err)

		done := make(chan struct{})
		observed := make(chan Snapshot, 64)
		go func() {
			defer close(observed)
			for {
				select {
				case <-done:
					return
				default:
				}
				select {
				case observed <- r.Snapshot():
				case <-done:
					return
				}
				time.Sleep(50 * time.Microsecond)
			}
		}()
		var snaps []Snapshot
		collected := make(chan struct{})
		go func() {
			defer close(collected)
			for s := range observed {
				snaps = append(snaps, s)
			}
		}()

		for step := 0; step < 150; step++ {
			rngMu.Lock()
			op := rng.Intn(10)
			id := int64(rng.Intn(13))
			pause := time.Duration(rng.Intn(500)) * time.Microsecond
			rngMu.Unlock()
			switch {
			case op < 3:
				_ = r.SelectType(id%4 + 1)
			case op < 6:
				_ = r.SelectMethod(id)
			case op == 6:
				_ = r.SelectAppliedState(id)
			case op == 7:
				_ = r.SelectRemovedState(id)
			case op == 8:
				r.Reset()
			default:
				time.Sleep(pause)
			}
			checkInvariant(t, cat, r.Snapshot())
		}
		waitIdle(t, r)
		checkInvariant(t, cat, r.Snapshot())
		close(done)
		<-collected
		r.Close()

		for _, s := range snaps {
			checkInvariant(t, cat, s)
		}
	}
}
