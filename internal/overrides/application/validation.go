package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/said46/autoSOC/internal/observability/metrics"
	overrides "github.com/said46/autoSOC/internal/overrides/domain"
	"github.com/said46/autoSOC/internal/platform/logger"
)

// ValidationError is one structural problem of a batch. Position is the
// 1-based record position, 0 for batch-level problems.
type ValidationError struct {
	Position  int
	TagNumber string
	Err       error
}

func (e ValidationError) Error() string {
	if e.Position == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("record %d (%s): %v", e.Position, e.TagNumber, e.Err)
}

func (e ValidationError) Unwrap() error { return e.Err }

// ValidationErrors lists every problem found in a batch.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return "overrides: validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Unwrap() []error {
	out := make([]error, 0, len(v))
	for _, e := range v {
		out = append(out, e)
	}
	return out
}

// Validator checks a batch against the catalog before submission.
type Validator struct {
	catalog overrides.Catalog
	logger  *logger.Logger
}

// NewValidator constructs a validator.
func NewValidator(catalog overrides.Catalog, log *logger.Logger) (*Validator, error) {
	if catalog == nil {
		return nil, errors.New("validator: nil catalog")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Validator{catalog: catalog, logger: log}, nil
}

// Validate returns every structural problem of set. Parent/child relations
// are re-checked against the catalog. A catalog outage is returned as the
// error, never as a validation error.
func (v *Validator) Validate(ctx context.Context, set *overrides.CertificateOverrideSet) (ValidationErrors, error) {
	if set.Len() == 0 {
		return nil, overrides.ErrEmptySet
	}
	var problems ValidationErrors
	add := func(pos int, tag, kind string, err error) {
		metrics.IncValidationFailure(kind)
		problems = append(problems, ValidationError{Position: pos, TagNumber: tag, Err: err})
	}

	if set.CertificateID <= 0 {
		add(0, "", "certificate_id", fmt.Errorf("%w: %d", overrides.ErrInvalidCertificateID, set.CertificateID))
	}

	methods := make(map[int64][]overrides.OverrideMethod)
	states := make(map[int64]overrides.StateSet)

	for i, rec := range set.Records {
		pos := i + 1
		if missing := overrides.MissingFields(intentOf(rec)); len(missing) > 0 {
			add(pos, rec.TagNumber, "missing_field", &overrides.MissingRequiredFieldError{Position: pos, Fields: missing})
		}
		if rec.CertificateID != set.CertificateID {
			add(pos, rec.TagNumber, "certificate_mismatch",
				fmt.Errorf("%w: record has %d, set has %d", overrides.ErrCertificateMismatch, rec.CertificateID, set.CertificateID))
		}
		if rec.TypeID == 0 || rec.MethodID == 0 {
			continue
		}

		options, ok := methods[rec.TypeID]
		if !ok {
			fetched, err := v.catalog.MethodsForType(ctx, rec.TypeID)
			if err != nil {
				return nil, catalogError(err)
			}
			options = fetched
			methods[rec.TypeID] = options
		}
		if _, ok := overrides.FindMethod(options, rec.MethodID); !ok {
			add(pos, rec.TagNumber, "invalid_selection", &overrides.InvalidSelectionError{
				Slot: overrides.SlotMethod, ID: rec.MethodID, Reason: fmt.Sprintf("not a method of type %d", rec.TypeID),
			})
			continue
		}

		stateSet, ok := states[rec.MethodID]
		if !ok {
			fetched, err := v.catalog.StatesForMethod(ctx, rec.MethodID)
			if err != nil {
				return nil, catalogError(err)
			}
			stateSet = fetched
			states[rec.MethodID] = stateSet
		}
		if rec.AppliedStateID != 0 {
			if _, ok := overrides.FindState(stateSet.Applied, rec.AppliedStateID); !ok {
				add(pos, rec.TagNumber, "invalid_selection", &overrides.InvalidSelectionError{
					Slot: overrides.SlotAppliedState, ID: rec.AppliedStateID, Reason: fmt.Sprintf("not an applied state of method %d", rec.MethodID),
				})
			}
		}
		if rec.RemovedStateID != 0 {
			if _, ok := overrides.FindState(stateSet.Removed, rec.RemovedStateID); !ok {
				add(pos, rec.TagNumber, "invalid_selection", &overrides.InvalidSelectionError{
					Slot: overrides.SlotRemovedState, ID: rec.RemovedStateID, Reason: fmt.Sprintf("not a removed state of method %d", rec.MethodID),
				})
			}
		}
	}

	if err := checkOrder(set.Records); err != nil {
		add(0, "", "invalid_order", err)
	}

	if len(problems) > 0 {
		v.logger.Warn("batch failed validation", "certificate_id", set.CertificateID, "problems", len(problems))
		return problems, nil
	}
	return nil, nil
}

// checkOrder requires order indexes to be exactly 1..n.
func checkOrder(records []overrides.OverrideRecord) error {
	got := make([]int, len(records))
	for i, rec := range records {
		got[i] = rec.OrderIndex
	}
	sorted := append([]int(nil), got...)
	sort.Ints(sorted)
	for i, idx := range sorted {
		if idx != i+1 {
			return fmt.Errorf("%w: got %v, want 1..%d", overrides.ErrInvalidOrder, got, len(records))
		}
	}
	return nil
}

func intentOf(rec overrides.OverrideRecord) overrides.Intent {
	return overrides.Intent{
		TagNumber:      rec.TagNumber,
		Description:    rec.Description,
		TypeID:         rec.TypeID,
		MethodID:       rec.MethodID,
		AppliedStateID: rec.AppliedStateID,
		RemovedStateID: rec.RemovedStateID,
	}
}
