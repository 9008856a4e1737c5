package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	overrides "github.com/said46/autoSOC/internal/overrides/domain"
)

func valveIntent() overrides.Intent {
	return overrides.Intent{TagNumber: "VALVE-001", Description: "Bypass", TypeID: 1, MethodID: 1, AppliedStateID: 1, RemovedStateID: 2}
}

func newTestValidator(t *testing.T, cat overrides.Catalog) *Validator {
	t.Helper()
	v, err := NewValidator(cat, nil)
	require.NoError(t, err)
	return v
}

func buildSet(t *testing.T, intents ...overrides.Intent) *overrides.CertificateOverrideSet {
	t.Helper()
	set, err := overrides.NewRecordFactory().Build(1054470, intents)
	require.NoError(t, err)
	return set
}

func TestValidateAcceptsConsistentBatch(t *testing.T) {
	v := newTestValidator(t, newFixtureCatalog())
	second := valveIntent()
	second.TagNumber, second.MethodID, second.AppliedStateID, second.RemovedStateID = "PT-200", 2, 3, 4

	problems, err := v.Validate(context.Background(), buildSet(t, valveIntent(), second))
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestValidateMethodOfAnotherType(t *testing.T) {
	cat := newFixtureCatalog()
	cat.methods[1] = nil
	cat.methods[2] = append(cat.methods[2], overrides.OverrideMethod{ID: 1, Title: "Software", TypeID: 2})
	v := newTestValidator(t, cat)

	problems, err := v.Validate(context.Background(), buildSet(t, valveIntent()))
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.ErrorIs(t, problems, overrides.ErrInvalidSelection)
	var invalid *overrides.InvalidSelectionError
	require.True(t, errors.As(problems, &invalid))
	assert.Equal(t, overrides.SlotMethod, invalid.Slot)
	assert.Contains(t, invalid.Error(), "type 1")
	assert.Equal(t, 1, problems[0].Position)
}

func TestValidateStatesOfAnotherMethod(t *testing.T) {
	v := newTestValidator(t, newFixtureCatalog())
	in := valveIntent()
	in.AppliedStateID, in.RemovedStateID = 3, 1

	problems, err := v.Validate(context.Background(), buildSet(t, in))
	require.NoError(t, err)
	require.Len(t, problems, 2)
	var first, second *overrides.InvalidSelectionError
	require.True(t, errors.As(problems[0], &first))
	require.True(t, errors.As(problems[1], &second))
	assert.Equal(t, overrides.SlotAppliedState, first.Slot)
	assert.Equal(t, overrides.SlotRemovedState, second.Slot)
}

func TestValidateOrderIndex(t *testing.T) {
	v := newTestValidator(t, newFixtureCatalog())
	cases := map[string][]int{
		"duplicate":      {1, 1, 3},
		"gap":            {1, 3},
		"zero based":     {0, 1},
		"reordered okay": {2, 1},
	}
	for name, order := range cases {
		t.Run(name, func(t *testing.T) {
			intents := make([]overrides.Intent, len(order))
			for i := range intents {
				intents[i] = valveIntent()
			}
			set := buildSet(t, intents...)
			for i, idx := range order {
				set.Records[i].OrderIndex = idx
			}
			problems, err := v.Validate(context.Background(), set)
			require.NoError(t, err)
			if name == "reordered okay" {
				assert.Empty(t, problems)
				return
			}
			require.Len(t, problems, 1)
			assert.ErrorIs(t, problems, overrides.ErrInvalidOrder)
			assert.Zero(t, problems[0].Position)
		})
	}
}

func TestValidateCertificateMismatchAndMissingFields(t *testing.T) {
	v := newTestValidator(t, newFixtureCatalog())
	set := buildSet(t, valveIntent(), valveIntent())
	set.Records[0].CertificateID = 999
	set.Records[1].Description = ""

	problems, err := v.Validate(context.Background(), set)
	require.NoError(t, err)
	require.Len(t, problems, 2)
	assert.ErrorIs(t, problems[0], overrides.ErrCertificateMismatch)
	assert.ErrorIs(t, problems[1], overrides.ErrMissingRequiredField)
	var missing *overrides.MissingRequiredFieldError
	require.True(t, errors.As(problems[1], &missing))
	assert.Equal(t, []string{"description"}, missing.Fields)
	assert.Equal(t, 2, missing.Position)
	assert.Contains(t, problems.Error(), "record 2 (VALVE-001)")
}

func TestValidateCatalogOutageIsNotAValidationError(t *testing.T) {
	cat := newFixtureCatalog()
	cat.setFailing(true)
	v := newTestValidator(t, cat)

	problems, err := v.Validate(context.Background(), buildSet(t, valveIntent()))
	assert.Nil(t, problems)
	assert.ErrorIs(t, err, overrides.ErrCatalogUnavailable)
}

func TestValidateFetchesEachKeyOnce(t *testing.T) {
	cat := newFixtureCatalog()
	v := newTestValidator(t, cat)
	_, err := v.Validate(context.Background(), buildSet(t, valveIntent(), valveIntent(), valveIntent()))
	require.NoError(t, err)
	methods, states := cat.calls()
	assert.Equal(t, 1, methods)
	assert.Equal(t, 1, states)
}

func TestValidateEmptySet(t *testing.T) {
	v := newTestValidator(t, newFixtureCatalog())
	_, err := v.Validate(context.Background(), nil)
	assert.ErrorIs(t, err, overrides.ErrEmptySet)
}
