package application

import (
	"context"
	"sync"
	"time"

	overrides "github.com/said46/autoSOC/internal/overrides/domain"
)

// pendingCall is a lookup held by a gated fixtureCatalog until released.
type pendingCall struct {
	kind    string
	key     int64
	release chan struct{}
}

// fixtureCatalog serves fixed catalog data. With a gate every call parks
// until the test releases it, so completions can be reordered.
type fixtureCatalog struct {
	methods map[int64][]overrides.OverrideMethod
	states  map[int64]overrides.StateSet

	mu          sync.Mutex
	gate        chan *pendingCall
	latency     func() time.Duration
	failing     bool
	methodCalls int
	stateCalls  int
}

func state(id int64, title string, methodID int64, role overrides.Role) overrides.OverrideState {
	return overrides.OverrideState{ID: id, Title: title, MethodID: methodID, Role: role}
}

func newFixtureCatalog() *fixtureCatalog {
	return &fixtureCatalog{
		methods: map[int64][]overrides.OverrideMethod{
			1: {{ID: 1, Title: "Software", TypeID: 1}, {ID: 2, Title: "Hardware jumper", TypeID: 1}},
			2: {{ID: 5, Title: "Key switch", TypeID: 2}, {ID: 6, Title: "Software block", TypeID: 2}},
			3: {{ID: 8, Title: "Forced value", TypeID: 3}},
		},
		states: map[int64]overrides.StateSet{
			1: {Applied: []overrides.OverrideState{state(1, "Bypassed", 1, overrides.RoleApplied)}, Removed: []overrides.OverrideState{state(2, "Normal", 1, overrides.RoleRemoved)}},
			2: {Applied: []overrides.OverrideState{state(3, "Jumpered", 2, overrides.RoleApplied)}, Removed: []overrides.OverrideState{state(4, "Removed", 2, overrides.RoleRemoved)}},
			5: {Applied: []overrides.OverrideState{state(6, "Blocked", 5, overrides.RoleApplied)}, Removed: []overrides.OverrideState{state(7, "Unblocked", 5, overrides.RoleRemoved)}},
			6: {Applied: []overrides.OverrideState{state(11, "Blocked", 6, overrides.RoleApplied)}, Removed: []overrides.OverrideState{state(12, "Released", 6, overrides.RoleRemoved)}},
			8: {Applied: []overrides.OverrideState{state(9, "Forced", 8, overrides.RoleApplied)}, Removed: []overrides.OverrideState{state(10, "Unforced", 8, overrides.RoleRemoved)}},
		},
	}
}

func (f *fixtureCatalog) hold(ctx context.Context, kind string, key int64) error {
	f.mu.Lock()
	gate, latency, failing := f.gate, f.latency, f.failing
	if kind == "methods" {
		f.methodCalls++
	} else {
		f.stateCalls++
	}
	f.mu.Unlock()

	if gate != nil {
		call := &pendingCall{kind: kind, key: key, release: make(chan struct{})}
		gate <- call
		<-call.release
	}
	if latency != nil {
		select {
		case <-time.After(latency()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failing {
		return overrides.ErrCatalogUnavailable
	}
	return nil
}

func (f *fixtureCatalog) MethodsForType(ctx context.Context, typeID int64) ([]overrides.OverrideMethod, error) {
	if err := f.hold(ctx, "methods", typeID); err != nil {
		return nil, err
	}
	return append([]overrides.OverrideMethod(nil), f.methods[typeID]...), nil
}

func (f *fixtureCatalog) StatesForMethod(ctx context.Context, methodID int64) (overrides.StateSet, error) {
	if err := f.hold(ctx, "states", methodID); err != nil {
		return overrides.StateSet{}, err
	}
	s := f.states[methodID]
	return overrides.StateSet{
		Applied: append([]overrides.OverrideState(nil), s.Applied...),
		Removed: append([]overrides.OverrideState(nil), s.Removed...),
	}, nil
}

func (f *fixtureCatalog) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *fixtureCatalog) calls() (methods, states int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.methodCalls, f.stateCalls
}

func (f *fixtureCatalog) validMethod(typeID, methodID int64) bool {
	_, ok := overrides.FindMethod(f.methods[typeID], methodID)
	return ok
}

func (f *fixtureCatalog) validState(methodID, stateID int64, role overrides.Role) bool {
	s := f.states[methodID]
	options := s.Applied
	if role == overrides.RoleRemoved {
		options = s.Removed
	}
	_, ok := overrides.FindState(options, stateID)
	return ok
}
