package nottorney

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ankihub/nottorney/internal/transport"
)

// Metrics is a Prometheus-backed observability sink for a Client. The zero
// value (or one built by newMetrics(nil)) is safe to use and records
// nothing; every method nil-checks its own counters. When a collector is
// already registered under the same name (e.g. a caller who shares one
// registerer across several Clients), the existing collector is reused
// and the Clients count into it together; on any other registration
// error the collector is kept unregistered, so it counts but is not
// exported.
type Metrics struct {
	requests        *prometheus.CounterVec
	retries         prometheus.Counter
	pagesFetched    *prometheus.CounterVec
	bytesDownloaded prometheus.Counter
	notesMerged     *prometheus.CounterVec
}

// newMetrics registers a Metrics' collectors against reg. A nil reg yields
// a Metrics whose methods are all safe, silent no-ops — the default for a
// Client built without WithMetricsRegisterer.
func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{}
	if reg == nil {
		return m
	}

	m.requests = mustRegisterCounterVec(reg, prometheus.CounterOpts{
		Namespace: "nottorney",
		Name:      "requests_total",
		Help:      "HTTP requests issued by the transport, by method and status.",
	}, []string{"method", "status"})

	m.retries = mustRegisterCounter(reg, prometheus.CounterOpts{
		Namespace: "nottorney",
		Name:      "transport_retries_total",
		Help:      "Transient transport failures that triggered a retry.",
	})

	m.pagesFetched = mustRegisterCounterVec(reg, prometheus.CounterOpts{
		Namespace: "nottorney",
		Name:      "pages_fetched_total",
		Help:      "Pagination pages fetched, by stream.",
	}, []string{"stream"})

	m.bytesDownloaded = mustRegisterCounter(reg, prometheus.CounterOpts{
		Namespace: "nottorney",
		Name:      "snapshot_bytes_downloaded_total",
		Help:      "Bytes read from signed snapshot URLs.",
	})

	m.notesMerged = mustRegisterCounterVec(reg, prometheus.CounterOpts{
		Namespace: "nottorney",
		Name:      "notes_merged_total",
		Help:      "Notes contributed to a merged DeckUpdates, by provenance.",
	}, []string{"provenance"})

	return m
}

func mustRegisterCounter(reg prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Counter)
		}
		return c
	}
	return c
}

func mustRegisterCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
		return c
	}
	return c
}

// ObserveRequest implements transport.Metrics.
func (m *Metrics) ObserveRequest(_ transport.Target, method string, _ int, statusCode int) {
	if m == nil || m.requests == nil {
		return
	}
	m.requests.WithLabelValues(method, statusCodeLabel(statusCode)).Inc()
}

// ObserveRetry implements transport.Metrics.
func (m *Metrics) ObserveRetry() {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) observePage(stream string) {
	if m == nil || m.pagesFetched == nil {
		return
	}
	m.pagesFetched.WithLabelValues(stream).Inc()
}

func (m *Metrics) observeBytesDownloaded(n int) {
	if m == nil || m.bytesDownloaded == nil {
		return
	}
	m.bytesDownloaded.Add(float64(n))
}

func (m *Metrics) observeNotesMerged(provenance string, n int) {
	if m == nil || m.notesMerged == nil || n == 0 {
		return
	}
	m.notesMerged.WithLabelValues(provenance).Add(float64(n))
}

func statusCodeLabel(statusCode int) string {
	if statusCode == 0 {
		return "error"
	}
	return strconv.Itoa(statusCode)
}
