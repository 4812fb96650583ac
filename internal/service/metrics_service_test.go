package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/marsha-lti/internal/models"
)

func TestMetricsServiceCountsResolutions(t *testing.T) {
	f := newResolverFixture(t)
	metrics := NewMetricsService()
	f.resolver.metrics = metrics

	ctx := context.Background()
	_, err := f.resolver.GetOrCreateResource(ctx, launchFor(f.site1, "X", "abc", false))
	require.NoError(t, err)
	_, err = f.resolver.GetOrCreateResource(ctx, launchFor(f.site1, "X", "abc", true))
	require.NoError(t, err)
	_, err = f.resolver.GetOrCreateResource(ctx, launchFor(f.site1, "X", "abc", false))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.resolutions.WithLabelValues("video", OutcomeUnavailable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.resolutions.WithLabelValues("video", OutcomeCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.resolutions.WithLabelValues("video", OutcomeExactMatch)))
}

func TestMetricsServiceCountsDedupeOnlyForRealRuns(t *testing.T) {
	store, _, _ := scenarioStore()
	metrics := NewMetricsService()
	dry := NewAccountDeduplicator(store, memUsers{store}, memIdentities{store}, memRelations{store}, metrics, nil, DedupeOptions{DryRun: true})
	_, err := dry.Deduplicate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, testutil.CollectAndCount(metrics.dedupePairs))

	real := NewAccountDeduplicator(store, memUsers{store}, memIdentities{store}, memRelations{store}, metrics, nil, DedupeOptions{})
	_, err = real.Deduplicate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.dedupePairs.WithLabelValues(string(StrategySameAccount), "merged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.dedupeRelations.WithLabelValues(string(CategoryPlaylistAccesses))))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.dedupeRelations), "empty transfers are not recorded")
}

func TestMetricsServiceCacheRatioAndHandler(t *testing.T) {
	metrics := NewMetricsService()
	metrics.RecordCacheOperation(true, time.Millisecond)
	metrics.RecordCacheOperation(false, time.Millisecond)
	metrics.RecordCacheOperation(true, time.Millisecond)
	metrics.ObserveHTTPRequest(http.MethodPost, "/api/v1/lti/:kind/launch", http.StatusOK, 10*time.Millisecond)

	assert.InDelta(t, 2.0/3.0, testutil.ToFloat64(metrics.cacheHitRatio), 1e-9)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marsha_http_requests_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetricsServiceIsNilSafe(t *testing.T) {
	var metrics *MetricsService
	assert.NotPanics(t, func() {
		metrics.RecordResolution(models.ResourceVideo, OutcomeCreated)
		metrics.RecordDedupePair("merge", "merged")
		metrics.RecordDedupeTransfer("playlist accesses", 2)
		metrics.RecordCacheOperation(true, 0)
		metrics.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, 0)
	})

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
