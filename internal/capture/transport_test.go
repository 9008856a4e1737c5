package capture

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	overrides "github.com/said46/autoSOC/internal/overrides/domain"
	"github.com/said46/autoSOC/internal/overrides/infrastructure/soc"
	"github.com/said46/autoSOC/internal/overrides/infrastructure/soc/soctest"
)

func sampleSet(t *testing.T) *overrides.CertificateOverrideSet {
	t.Helper()
	set, err := overrides.NewRecordFactory().Build(1054470, []overrides.Intent{
		{TagNumber: "VALVE-001", Description: "Bypass", TypeID: 1, MethodID: 1, AppliedStateID: 1, RemovedStateID: 2},
	})
	require.NoError(t, err)
	return set
}

func TestRecordingTransportForwards(t *testing.T) {
	fake := soctest.NewServer(soctest.DefaultFixture())
	srv := fake.Start()
	defer srv.Close()

	rec := &RecordingTransport{PathContains: soc.DefaultPaths().Submit}
	client, err := soc.NewClient(srv.URL, soc.WithHTTPClient(&http.Client{Transport: rec}))
	require.NoError(t, err)

	_, err = client.MethodsForType(context.Background(), 1)
	require.NoError(t, err)
	result, err := client.Submit(context.Background(), sampleSet(t), soc.Credential{})
	require.NoError(t, err)
	assert.Equal(t, soc.OutcomeSubmitted, result.Outcome)

	captured := rec.Captured()
	require.Len(t, captured, 1, "catalog GETs are not recorded")
	assert.Equal(t, http.MethodPost, captured[0].Method)
	require.Len(t, fake.Submissions(), 1)

	p, err := captured[0].Payload()
	require.NoError(t, err)
	require.Len(t, p.Records, 1)
	assert.JSONEq(t, `"VALVE-001"`, string(p.Records[0]["TagNumber"]))
}

func TestRecordingTransportDryRun(t *testing.T) {
	fake := soctest.NewServer(soctest.DefaultFixture())
	srv := fake.Start()
	defer srv.Close()

	rec := &RecordingTransport{PathContains: soc.DefaultPaths().Submit, DryRun: true}
	client, err := soc.NewClient(srv.URL, soc.WithHTTPClient(&http.Client{Transport: rec}))
	require.NoError(t, err)

	result, err := client.Submit(context.Background(), sampleSet(t), soc.Credential{})
	require.NoError(t, err)
	assert.Equal(t, soc.OutcomeSubmitted, result.Outcome)
	assert.Empty(t, fake.Submissions())

	last, ok := rec.Last()
	require.True(t, ok)
	assert.Contains(t, last.URL, "SaveOverrides")
}

func TestNewRodCapturerRequiresInputs(t *testing.T) {
	_, err := NewRodCapturer("", "/Soc/SaveOverrides")
	assert.Error(t, err)
	_, err = NewRodCapturer("ws://127.0.0.1:9222/devtools/browser/x", " ")
	assert.Error(t, err)

	c, err := NewRodCapturer("ws://127.0.0.1:9222/devtools/browser/x", "/Soc/SaveOverrides", WithCaptureTimeout(0))
	require.NoError(t, err)
	assert.Equal(t, defaultCaptureTimeout, c.timeout)
}
