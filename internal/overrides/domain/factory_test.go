package overrides

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIntent(tag string) Intent {
	return Intent{
		TagNumber:      tag,
		Description:    "Bypass",
		TypeID:         1,
		MethodID:       1,
		AppliedStateID: 1,
		RemovedStateID: 2,
	}
}

func TestBuildRecordMissingFields(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Intent)
		missing []string
	}{
		{"tag", func(i *Intent) { i.TagNumber = "" }, []string{"tagNumber"}},
		{"description", func(i *Intent) { i.Description = "" }, []string{"description"}},
		{"selections", func(i *Intent) { i.TypeID, i.MethodID = 0, 0 }, []string{"typeId", "methodId"}},
		{"states", func(i *Intent) { i.AppliedStateID, i.RemovedStateID = 0, 0 }, []string{"appliedStateId", "removedStateId"}},
		{"everything", func(i *Intent) { *i = Intent{Comment: "only a comment"} }, []string{
			"tagNumber", "description", "typeId", "methodId", "appliedStateId", "removedStateId",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validIntent("VALVE-001")
			tc.mutate(&in)
			_, err := NewRecordFactory().BuildRecord(in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingRequiredField)
			var missing *MissingRequiredFieldError
			require.True(t, errors.As(err, &missing))
			assert.Equal(t, tc.missing, missing.Fields)
		})
	}
}

func TestBuildDefaultsSystemFields(t *testing.T) {
	f := NewRecordFactory()
	f.Titles = func(typeID, methodID int64) (string, string) { return "Bypass", "Software" }
	in := validIntent("VALVE-001")
	in.Comment = "temporary"

	set, err := f.Build(1054470, []Intent{in})
	require.NoError(t, err)
	require.Len(t, set.Records, 1)

	rec := set.Records[0]
	assert.Equal(t, 1, rec.OrderIndex)
	assert.Equal(t, NotAppliedStateID, rec.CurrentStateID)
	assert.Equal(t, int64(1054470), rec.CertificateID)
	assert.True(t, rec.IsNew())
	assert.Equal(t, "Bypass / Software", rec.Label)
	assert.Equal(t, "temporary", rec.Comment)
	assert.Empty(t, rec.AdditionalValueRemoved)
}

func TestBuildAssignsDenseOrder(t *testing.T) {
	intents := []Intent{validIntent("A"), validIntent("B"), validIntent("C"), validIntent("D")}
	set, err := NewRecordFactory().Build(7, intents)
	require.NoError(t, err)
	for i, rec := range set.Records {
		assert.Equal(t, i+1, rec.OrderIndex)
		assert.Equal(t, intents[i].TagNumber, rec.TagNumber)
		assert.Equal(t, int64(7), rec.CertificateID)
	}
}

func TestBuildKeepsServerIdentity(t *testing.T) {
	in := validIntent("A")
	in.ServerID = 991
	set, err := NewRecordFactory().Build(7, []Intent{in})
	require.NoError(t, err)
	assert.Equal(t, int64(991), set.Records[0].ServerID)
	assert.False(t, set.Records[0].IsNew())
}

func TestBuildReportsEveryFailingIntent(t *testing.T) {
	bad1 := validIntent("")
	bad2 := validIntent("C")
	bad2.MethodID = 0
	_, err := NewRecordFactory().Build(7, []Intent{bad1, validIntent("B"), bad2})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredField)
	assert.Contains(t, err.Error(), "intent 1: missing required field(s): tagNumber")
	assert.Contains(t, err.Error(), "intent 3: missing required field(s): methodId")
}

func TestBuildRejectsBadCertificate(t *testing.T) {
	_, err := NewRecordFactory().Build(0, []Intent{validIntent("A")})
	assert.ErrorIs(t, err, ErrInvalidCertificateID)

	_, err = NewRecordFactory().Build(5, nil)
	assert.ErrorIs(t, err, ErrEmptySet)
}

func TestCustomSentinel(t *testing.T) {
	f := RecordFactory{CurrentStateID: 42}
	rec, err := f.BuildRecord(validIntent("A"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), rec.CurrentStateID)
}
