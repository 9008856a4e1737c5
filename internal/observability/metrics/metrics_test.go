package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	Init(prometheus.NewRegistry())

	ObserveCatalog("methods", nil, 10*time.Millisecond)
	ObserveCatalog("methods", errors.New("boom"), time.Millisecond)
	IncCatalogCache("states", true)
	ObserveSubmission("submitted", 3, 50*time.Millisecond)
	ObserveSubmission("rejected", 3, 50*time.Millisecond)
	IncSuperseded("method")
	IncValidationFailure("invalid_order")

	assert.Equal(t, 1.0, testutil.ToFloat64(catalogRequests.WithLabelValues("methods", resultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(catalogRequests.WithLabelValues("methods", resultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(catalogCache.WithLabelValues("states", "hit")))
	assert.Equal(t, 3.0, testutil.ToFloat64(submissionRecords))
	assert.Equal(t, 1.0, testutil.ToFloat64(submissionTotal.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(resolverSuperseded.WithLabelValues("method")))
	assert.Equal(t, 1.0, testutil.ToFloat64(validationFailures.WithLabelValues("invalid_order")))
}
