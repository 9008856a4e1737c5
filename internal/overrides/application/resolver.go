package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/said46/autoSOC/internal/observability/metrics"
	overrides "github.com/said46/autoSOC/internal/overrides/domain"
	"github.com/said46/autoSOC/internal/platform/logger"
)

// Snapshot is a consistent view of a resolver.
type Snapshot struct {
	TypeID         int64
	MethodID       int64
	AppliedStateID int64
	RemovedStateID int64

	// Methods are the options for the current type; Applied and Removed
	// the options for the current method.
	Methods []overrides.OverrideMethod
	Applied []overrides.OverrideState
	Removed []overrides.OverrideState

	MethodsLoading bool
	StatesLoading  bool
	// Err is the last fetch failure for the current selection.
	Err error
}

// Selection is a complete, consistent selection tuple.
type Selection struct {
	TypeID         int64
	MethodID       int64
	AppliedStateID int64
	RemovedStateID int64
	TypeTitle      string
	MethodTitle    string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger.
func WithResolverLogger(l *logger.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithResolverTypes sets the types matched by SelectTypeByTitle.
func WithResolverTypes(types []overrides.OverrideType) ResolverOption {
	return func(r *Resolver) {
		if len(types) > 0 {
			r.types = append([]overrides.OverrideType(nil), types...)
		}
	}
}

// Resolver keeps a Type -> Method -> State selection consistent while
// catalog lookups complete asynchronously. Changing a slot clears its
// children before returning. A lookup result is applied only when the
// generation and value that triggered it are still current.
type Resolver struct {
	catalog overrides.Catalog
	types   []overrides.OverrideType
	logger  *logger.Logger

	ctx  context.Context
	stop context.CancelFunc

	mu sync.Mutex

	typeID    int64
	methodID  int64
	appliedID int64
	removedID int64

	methods        []overrides.OverrideMethod
	methodsLoaded  bool
	methodsLoading bool
	methodsErr     error
	typeGen        uint64
	cancelType     context.CancelFunc

	states        overrides.StateSet
	statesLoaded  bool
	statesLoading bool
	statesErr     error
	methodGen     uint64
	cancelMethod  context.CancelFunc

	pending int
	idle    chan struct{}
}

// NewResolver constructs a resolver over catalog.
func NewResolver(catalog overrides.Catalog, opts ...ResolverOption) (*Resolver, error) {
	if catalog == nil {
		return nil, errors.New("resolver: nil catalog")
	}
	ctx, stop := context.WithCancel(context.Background())
	r := &Resolver{
		catalog: catalog,
		types:   overrides.DefaultTypes(),
		logger:  logger.Nop(),
		ctx:     ctx,
		stop:    stop,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// SelectType sets the type, clears every child slot and starts the method
// lookup. A lookup still running for an earlier type is superseded.
func (r *Resolver) SelectType(id int64) error {
	if id <= 0 {
		return &overrides.InvalidSelectionError{Slot: overrides.SlotType, ID: id, Reason: "not a positive id"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.abortMethodLocked()
	r.abortTypeLocked()
	r.typeID = id
	r.methods, r.methodsLoaded, r.methodsLoading, r.methodsErr = nil, false, true, nil
	r.clearMethodLocked()

	r.typeGen++
	gen := r.typeGen
	ctx, cancel := context.WithCancel(r.ctx)
	r.cancelType = cancel
	r.beginLocked()
	go r.fetchMethods(ctx, gen, id)
	r.logger.Debug("resolver type selected", "type_id", id, "generation", gen)
	return nil
}

// SelectMethod sets the method when it is one of the loaded options of
// the current type. Selection is refused while the options are loading.
func (r *Resolver) SelectMethod(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.typeID == 0 {
		return &overrides.InvalidSelectionError{Slot: overrides.SlotMethod, ID: id, Reason: "no type selected"}
	}
	if !r.methodsLoaded {
		return &overrides.InvalidSelectionError{Slot: overrides.SlotMethod, ID: id, Reason: fmt.Sprintf("methods of type %d not loaded", r.typeID)}
	}
	if _, ok := overrides.FindMethod(r.methods, id); !ok {
		return &overrides.InvalidSelectionError{Slot: overrides.SlotMethod, ID: id, Reason: fmt.Sprintf("not a method of type %d", r.typeID)}
	}

	r.abortMethodLocked()
	r.clearMethodLocked()
	r.methodID = id
	r.statesLoading = true

	r.methodGen++
	gen := r.methodGen
	ctx, cancel := context.WithCancel(r.ctx)
	r.cancelMethod = cancel
	r.beginLocked()
	go r.fetchStates(ctx, gen, id)
	r.logger.Debug("resolver method selected", "type_id", r.typeID, "method_id", id, "generation", gen)
	return nil
}

// SelectAppliedState sets the applied state of the current method.
func (r *Resolver) SelectAppliedState(id int64) error {
	return r.selectState(overrides.SlotAppliedState, id)
}

// SelectRemovedState sets the removed state of the current method.
func (r *Resolver) SelectRemovedState(id int64) error {
	return r.selectState(overrides.SlotRemovedState, id)
}

func (r *Resolver) selectState(slot overrides.Slot, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.methodID == 0 {
		return &overrides.InvalidSelectionError{Slot: slot, ID: id, Reason: "no method selected"}
	}
	if !r.statesLoaded {
		return &overrides.InvalidSelectionError{Slot: slot, ID: id, Reason: fmt.Sprintf("states of method %d not loaded", r.methodID)}
	}
	options, dst := r.states.Applied, &r.appliedID
	if slot == overrides.SlotRemovedState {
		options, dst = r.states.Removed, &r.removedID
	}
	if _, ok := overrides.FindState(options, id); !ok {
		return &overrides.InvalidSelectionError{Slot: slot, ID: id, Reason: fmt.Sprintf("not a %s of method %d", slot, r.methodID)}
	}
	*dst = id
	return nil
}

// SelectTypeByTitle selects the type whose title matches.
func (r *Resolver) SelectTypeByTitle(title string) (int64, error) {
	r.mu.Lock()
	titles := make([]string, len(r.types))
	for i, t := range r.types {
		titles[i] = t.Title
	}
	idx := overrides.MatchTitle(titles, title)
	var id int64
	if idx >= 0 {
		id = r.types[idx].ID
	}
	r.mu.Unlock()
	if idx < 0 {
		return 0, &overrides.InvalidSelectionError{Slot: overrides.SlotType, Reason: fmt.Sprintf("no single type matches %q", title)}
	}
	return id, r.SelectType(id)
}

// SelectMethodByTitle selects the loaded method whose title matches.
func (r *Resolver) SelectMethodByTitle(title string) (int64, error) {
	r.mu.Lock()
	titles := make([]string, len(r.methods))
	for i, m := range r.methods {
		titles[i] = m.Title
	}
	idx := overrides.MatchTitle(titles, title)
	var id int64
	if idx >= 0 {
		id = r.methods[idx].ID
	}
	r.mu.Unlock()
	if idx < 0 {
		return 0, &overrides.InvalidSelectionError{Slot: overrides.SlotMethod, Reason: fmt.Sprintf("no single method matches %q", title)}
	}
	return id, r.SelectMethod(id)
}

// SelectAppliedStateByTitle selects the loaded applied state whose title matches.
func (r *Resolver) SelectAppliedStateByTitle(title string) (int64, error) {
	return r.selectStateByTitle(overrides.SlotAppliedState, title)
}

// SelectRemovedStateByTitle selects the loaded removed state whose title matches.
func (r *Resolver) SelectRemovedStateByTitle(title string) (int64, error) {
	return r.selectStateByTitle(overrides.SlotRemovedState, title)
}

func (r *Resolver) selectStateByTitle(slot overrides.Slot, title string) (int64, error) {
	r.mu.Lock()
	options := r.states.Applied
	if slot == overrides.SlotRemovedState {
		options = r.states.Removed
	}
	titles := make([]string, len(options))
	for i, s := range options {
		titles[i] = s.Title
	}
	idx := overrides.MatchTitle(titles, title)
	var id int64
	if idx >= 0 {
		id = options[idx].ID
	}
	r.mu.Unlock()
	if idx < 0 {
		return 0, &overrides.InvalidSelectionError{Slot: slot, Reason: fmt.Sprintf("no single %s matches %q", slot, title)}
	}
	return id, r.selectState(slot, id)
}

// Reset clears every slot and cancels running lookups.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abortMethodLocked()
	r.abortTypeLocked()
	r.typeGen++
	r.typeID = 0
	r.methods, r.methodsLoaded, r.methodsLoading, r.methodsErr = nil, false, false, nil
	r.clearMethodLocked()
}

// Close resets the resolver and releases its lookups.
func (r *Resolver) Close() {
	r.Reset()
	r.stop()
}

// Snapshot returns the current state. Option slices are copies.
func (r *Resolver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{
		TypeID:         r.typeID,
		MethodID:       r.methodID,
		AppliedStateID: r.appliedID,
		RemovedStateID: r.removedID,
		Methods:        append([]overrides.OverrideMethod(nil), r.methods...),
		Applied:        append([]overrides.OverrideState(nil), r.states.Applied...),
		Removed:        append([]overrides.OverrideState(nil), r.states.Removed...),
		MethodsLoading: r.methodsLoading,
		StatesLoading:  r.statesLoading,
	}
	if r.methodsErr != nil {
		s.Err = r.methodsErr
	} else {
		s.Err = r.statesErr
	}
	return s
}

// Record returns the complete selection.
func (r *Resolver) Record() (Selection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slots := []struct {
		slot overrides.Slot
		id   int64
	}{
		{overrides.SlotType, r.typeID},
		{overrides.SlotMethod, r.methodID},
		{overrides.SlotAppliedState, r.appliedID},
		{overrides.SlotRemovedState, r.removedID},
	}
	for _, s := range slots {
		if s.id == 0 {
			return Selection{}, &overrides.InvalidSelectionError{Slot: s.slot, Reason: "not selected"}
		}
	}
	sel := Selection{
		TypeID:         r.typeID,
		MethodID:       r.methodID,
		AppliedStateID: r.appliedID,
		RemovedStateID: r.removedID,
	}
	for _, t := range r.types {
		if t.ID == r.typeID {
			sel.TypeTitle = t.Title
		}
	}
	if m, ok := overrides.FindMethod(r.methods, r.methodID); ok {
		sel.MethodTitle = m.Title
	}
	return sel, nil
}

// Wait blocks until no lookup is running or ctx is done.
func (r *Resolver) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		if r.pending == 0 {
			r.mu.Unlock()
			return nil
		}
		idle := r.idle
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
		}
	}
}

func (r *Resolver) fetchMethods(ctx context.Context, gen uint64, typeID int64) {
	defer r.end()
	methods, err := r.catalog.MethodsForType(ctx, typeID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.typeGen || typeID != r.typeID {
		metrics.IncSuperseded(string(overrides.SlotType))
		r.logger.Debug("resolver discarded superseded methods", "type_id", typeID, "generation", gen, "current", r.typeGen)
		return
	}
	r.methodsLoading = false
	if err != nil {
		r.methodsErr = catalogError(err)
		r.logger.Warn("resolver methods lookup failed", "type_id", typeID, "error", err)
		return
	}
	r.methods = r.methods[:0]
	for _, m := range methods {
		if m.TypeID == 0 {
			m.TypeID = typeID
		}
		if m.TypeID == typeID {
			r.methods = append(r.methods, m)
		}
	}
	r.methodsLoaded = true
}

func (r *Resolver) fetchStates(ctx context.Context, gen uint64, methodID int64) {
	defer r.end()
	states, err := r.catalog.StatesForMethod(ctx, methodID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.methodGen || methodID != r.methodID {
		metrics.IncSuperseded(string(overrides.SlotMethod))
		r.logger.Debug("resolver discarded superseded states", "method_id", methodID, "generation", gen, "current", r.methodGen)
		return
	}
	r.statesLoading = false
	if err != nil {
		r.statesErr = catalogError(err)
		r.logger.Warn("resolver states lookup failed", "method_id", methodID, "error", err)
		return
	}
	r.states = overrides.StateSet{
		Applied: ownStates(states.Applied, methodID, overrides.RoleApplied),
		Removed: ownStates(states.Removed, methodID, overrides.RoleRemoved),
	}
	r.statesLoaded = true
}

// clearMethodLocked unsets the method and both states.
func (r *Resolver) clearMethodLocked() {
	r.methodGen++
	r.methodID, r.appliedID, r.removedID = 0, 0, 0
	r.states, r.statesLoaded, r.statesLoading, r.statesErr = overrides.StateSet{}, false, false, nil
}

func (r *Resolver) abortTypeLocked() {
	if r.cancelType != nil {
		r.cancelType()
		r.cancelType = nil
	}
}

func (r *Resolver) abortMethodLocked() {
	if r.cancelMethod != nil {
		r.cancelMethod()
		r.cancelMethod = nil
	}
}

func (r *Resolver) beginLocked() {
	if r.pending == 0 {
		r.idle = make(chan struct{})
	}
	r.pending++
}

func (r *Resolver) end() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending--
	if r.pending == 0 {
		close(r.idle)
	}
}

func ownStates(in []overrides.OverrideState, methodID int64, role overrides.Role) []overrides.OverrideState {
	out := make([]overrides.OverrideState, 0, len(in))
	for _, s := range in {
		if s.MethodID != 0 && s.MethodID != methodID {
			continue
		}
		s.MethodID = methodID
		s.Role = role
		out = append(out, s)
	}
	return out
}

func catalogError(err error) error {
	if errors.Is(err, overrides.ErrCatalogUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", overrides.ErrCatalogUnavailable, err)
}
