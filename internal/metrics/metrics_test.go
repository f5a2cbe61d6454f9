package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/journey-tracker/internal/metrics"
)

func TestCollector_NilSafe(t *testing.T) {
	var c *metrics.Collector

	assert.NotPanics(t, func() {
		c.ReportIngested("vehicle", true)
		c.FusionComputed(0.9, 2)
		c.TrustPersistFailed()
		c.StoreWriteFailed("enqueue")
		c.Enqueued("CREATE_ORDER")
		c.QueueState(1, 0)
		c.SyncPass("ok", time.Second)
		c.SyncItem("END_JOURNEY", "processed")
		c.LocationsSynced(3)
		c.SetBackendOnline(true)
		c.RealtimePublish("nats", nil)
		c.HTTPRequest("GET", "/health", 200)
	})
}

func TestCollector_Counters(t *testing.T) {
	c := metrics.NewCollector()

	c.ReportIngested("passenger", false)
	c.ReportIngested("passenger", true)
	c.RealtimePublish("mqtt", errors.New("down"))
	c.SetBackendOnline(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.ReportsIngested.WithLabelValues("passenger", "spoofed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.SpoofDetected.WithLabelValues("passenger")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RealtimePublishErrs.WithLabelValues("mqtt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.BackendOnline))
}

func TestCollector_Handler(t *testing.T) {
	c := metrics.NewCollector()
	c.QueueState(4, 1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "journey_queue_pending 4")
}
