package capture

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	overrides "github.com/said46/autoSOC/internal/overrides/domain"
	"github.com/said46/autoSOC/internal/overrides/infrastructure/soc"
)

func generatedBody(t *testing.T, token string) []byte {
	t.Helper()
	set, err := overrides.NewRecordFactory().Build(1054470, []overrides.Intent{
		{TagNumber: "VALVE-001", Description: "Bypass", TypeID: 1, MethodID: 1, AppliedStateID: 1, RemovedStateID: 2},
		{TagNumber: "PT-200", Description: "High alarm", TypeID: 1, MethodID: 2, AppliedStateID: 3, RemovedStateID: 4},
	})
	require.NoError(t, err)
	form, err := soc.EncodeForm(set, token, true)
	require.NoError(t, err)
	return []byte(form.Encode())
}

// mutate rewrites one record field of a form body.
func mutate(t *testing.T, body []byte, record int, field string, value any) []byte {
	t.Helper()
	form, err := url.ParseQuery(string(body))
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(form.Get(soc.FieldOverrides)), &records))
	if value == nil {
		delete(records[record], field)
	} else {
		records[record][field] = value
	}
	raw, err := json.Marshal(records)
	require.NoError(t, err)
	form.Set(soc.FieldOverrides, string(raw))
	return []byte(form.Encode())
}

func mustParse(t *testing.T, body []byte) Payload {
	t.Helper()
	p, err := ParsePayload(body)
	require.NoError(t, err)
	return p
}

func TestDiffIdenticalPayloads(t *testing.T) {
	ref := mustParse(t, generatedBody(t, "reference-token"))
	gen := mustParse(t, generatedBody(t, "generated-token"))

	report := Diff(ref, gen)
	assert.True(t, report.Empty(), report.String())
	assert.Equal(t, "payloads match\n", report.String())
}

func TestDiffRequestTokenOptIn(t *testing.T) {
	ref := mustParse(t, generatedBody(t, "a"))
	gen := mustParse(t, generatedBody(t, "b"))

	report := Diff(ref, gen, CompareRequestToken())
	require.Len(t, report.Differences, 1)
	assert.Equal(t, Difference{
		Record: TopLevel, Field: soc.FieldRequestToken, Kind: ValueMismatch,
		Reference: `"a"`, Generated: `"b"`,
	}, report.Differences[0])
}

func TestDiffStringVersusNumberIsDrift(t *testing.T) {
	gen := generatedBody(t, "tok")
	ref := mutate(t, gen, 1, "CurrentOverrideStateId", 1)

	report := Diff(mustParse(t, ref), mustParse(t, gen))
	require.Len(t, report.Differences, 1)
	d := report.Differences[0]
	assert.Equal(t, 1, d.Record)
	assert.Equal(t, "CurrentOverrideStateId", d.Field)
	assert.Equal(t, ValueMismatch, d.Kind)
	assert.Equal(t, "1", d.Reference)
	assert.Equal(t, `"1"`, d.Generated)
}

func TestDiffMissingFields(t *testing.T) {
	gen := generatedBody(t, "tok")
	ref := mutate(t, gen, 0, "Comment", nil)
	ref = mutate(t, ref, 1, "ExtraFlag", true)

	report := Diff(mustParse(t, ref), mustParse(t, mutate(t, gen, 0, "Comment", "x")))
	want := []Difference{
		{Record: 0, Field: "Comment", Kind: MissingInReference, Generated: `"x"`},
		{Record: 1, Field: "ExtraFlag", Kind: MissingInGenerated, Reference: "true"},
	}
	if d := cmp.Diff(want, report.Differences); d != "" {
		t.Fatalf("differences mismatch (-want +got):\n%s", d)
	}

	byRecord := report.ByRecord()
	assert.Contains(t, byRecord[1], "ExtraFlag")
	assert.Contains(t, report.String(), "record 1 ExtraFlag: missing in generated")
}

func TestDiffExtraRecord(t *testing.T) {
	gen := mustParse(t, generatedBody(t, "tok"))
	ref := gen
	ref.Records = gen.Records[:1]

	report := Diff(ref, gen)
	require.NotEmpty(t, report.Differences)
	for _, d := range report.Differences {
		assert.Equal(t, 1, d.Record)
		assert.Equal(t, MissingInReference, d.Kind)
	}
	assert.Len(t, report.Differences, len(gen.Records[1]))
}

func TestDiffTopLevelField(t *testing.T) {
	gen := mustParse(t, generatedBody(t, "tok"))
	form, err := url.ParseQuery(string(generatedBody(t, "tok")))
	require.NoError(t, err)
	form.Set(soc.FieldCertificateID, "1797350")
	ref := mustParse(t, []byte(form.Encode()))

	report := Diff(ref, gen)
	require.Len(t, report.Differences, 1)
	assert.Equal(t, TopLevel, report.Differences[0].Record)
	assert.True(t, strings.HasPrefix(report.String(), "form SystemOverrideCertificateId"))
}

func TestDiffIgnoreFields(t *testing.T) {
	gen := generatedBody(t, "tok")
	ref := mutate(t, gen, 0, "Description", "changed")

	report := Diff(mustParse(t, ref), mustParse(t, gen), IgnoreFields("Description"))
	assert.True(t, report.Empty())
}

func TestCanonicalSortsKeys(t *testing.T) {
	assert.Equal(t, canonical(json.RawMessage(`{"b":1, "a":[1, 2]}`)), canonical(json.RawMessage(`{"a":[1,2],"b":1}`)))
	assert.Equal(t, "12345678901234567890", canonical(json.RawMessage(` 12345678901234567890 `)))
}
