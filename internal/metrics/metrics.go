package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector - метрики трекинга. Все методы безопасны для nil получателя,
// поэтому компоненты работают и без метрик.
type Collector struct {
	reg *prometheus.Registry

	ReportsIngested *prometheus.CounterVec // source_type, outcome: accepted|spoofed
	SpoofDetected   *prometheus.CounterVec // source_type
	FusedConfidence prometheus.Gauge
	WindowSources   prometheus.Gauge

	TrustPersistErrors prometheus.Counter
	StoreWriteErrors   *prometheus.CounterVec // op

	QueueEnqueued    *prometheus.CounterVec // action
	QueuePending     prometheus.Gauge
	QueueDeadLetters prometheus.Gauge

	SyncPasses        *prometheus.CounterVec // result: ok|error|busy
	SyncItems         *prometheus.CounterVec // action, outcome: processed|failed|discarded
	SyncDuration      prometheus.Histogram
	LocationsUploaded prometheus.Counter

	BackendOnline prometheus.Gauge

	RealtimePublished   *prometheus.CounterVec // driver
	RealtimePublishErrs *prometheus.CounterVec // driver

	HTTPRequests *prometheus.CounterVec // method, route, status
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ReportsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journey_reports_ingested_total",
			Help: "Position reports ingested by the fusion engine.",
		}, []string{"source_type", "outcome"}),
		SpoofDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journey_spoofing_detected_total",
			Help: "Reports flagged as physically implausible.",
		}, []string{"source_type"}),
		FusedConfidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "journey_fused_confidence",
			Help: "Confidence of the latest fused position.",
		}),
		WindowSources: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "journey_fusion_window_sources",
			Help: "Sources contributing to the latest fused position.",
		}),
		TrustPersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journey_trust_persist_errors_total",
			Help: "Trust records that could not be written to the local store.",
		}),
		StoreWriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journey_store_write_errors_total",
			Help: "Local store write failures.",
		}, []string{"op"}),
		QueueEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journey_queue_enqueued_total",
			Help: "Queue items created.",
		}, []string{"action"}),
		QueuePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "journey_queue_pending",
			Help: "Unprocessed queue items.",
		}),
		QueueDeadLetters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "journey_queue_dead_letters",
			Help: "Queue items that exhausted their attempts.",
		}),
		SyncPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journey_sync_passes_total",
			Help: "Sync passes by result.",
		}, []string{"result"}),
		SyncItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journey_sync_items_total",
			Help: "Queue items replayed by action and outcome.",
		}, []string{"action", "outcome"}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "journey_sync_duration_seconds",
			Help:    "Duration of a sync pass.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		LocationsUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journey_locations_uploaded_total",
			Help: "Location samples uploaded to the backend.",
		}),
		BackendOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "journey_backend_online",
			Help: "1 if the backend is reachable, 0 otherwise.",
		}),
		RealtimePublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journey_realtime_published_total",
			Help: "Events published on the realtime channel.",
		}, []string{"driver"}),
		RealtimePublishErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journey_realtime_publish_errors_total",
			Help: "Realtime publish errors.",
		}, []string{"driver"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journey_http_requests_total",
			Help: "HTTP requests served by the API.",
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		c.ReportsIngested, c.SpoofDetected, c.FusedConfidence, c.WindowSources,
		c.TrustPersistErrors, c.StoreWriteErrors,
		c.QueueEnqueued, c.QueuePending, c.QueueDeadLetters,
		c.SyncPasses, c.SyncItems, c.SyncDuration, c.LocationsUploaded,
		c.BackendOnline, c.RealtimePublished, c.RealtimePublishErrs,
		c.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Serve поднимает отдельный HTTP сервер с /metrics
func (c *Collector) Serve(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()
	logger.Info("Metrics listening", zap.String("addr", addr))
	return srv
}

func (c *Collector) ReportIngested(sourceType string, spoofed bool) {
	if c == nil {
		return
	}
	outcome := "accepted"
	if spoofed {
		outcome = "spoofed"
		c.SpoofDetected.WithLabelValues(sourceType).Inc()
	}
	c.ReportsIngested.WithLabelValues(sourceType, outcome).Inc()
}

func (c *Collector) FusionComputed(confidence float64, sources int) {
	if c == nil {
		return
	}
	c.FusedConfidence.Set(confidence)
	c.WindowSources.Set(float64(sources))
}

func (c *Collector) TrustPersistFailed() {
	if c == nil {
		return
	}
	c.TrustPersistErrors.Inc()
}

func (c *Collector) StoreWriteFailed(op string) {
	if c == nil {
		return
	}
	c.StoreWriteErrors.WithLabelValues(op).Inc()
}

func (c *Collector) Enqueued(action string) {
	if c == nil {
		return
	}
	c.QueueEnqueued.WithLabelValues(action).Inc()
}

func (c *Collector) QueueState(pending, deadLetters int) {
	if c == nil {
		return
	}
	c.QueuePending.Set(float64(pending))
	c.QueueDeadLetters.Set(float64(deadLetters))
}

func (c *Collector) SyncPass(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.SyncPasses.WithLabelValues(result).Inc()
	if d > 0 {
		c.SyncDuration.Observe(d.Seconds())
	}
}

func (c *Collector) SyncItem(action, outcome string) {
	if c == nil {
		return
	}
	c.SyncItems.WithLabelValues(action, outcome).Inc()
}

func (c *Collector) LocationsSynced(n int) {
	if c == nil {
		return
	}
	c.LocationsUploaded.Add(float64(n))
}

func (c *Collector) SetBackendOnline(online bool) {
	if c == nil {
		return
	}
	if online {
		c.BackendOnline.Set(1)
	} else {
		c.BackendOnline.Set(0)
	}
}

func (c *Collector) RealtimePublish(driver string, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.RealtimePublishErrs.WithLabelValues(driver).Inc()
		return
	}
	c.RealtimePublished.WithLabelValues(driver).Inc()
}

func (c *Collector) HTTPRequest(method, route string, status int) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, http.StatusText(status)).Inc()
}
