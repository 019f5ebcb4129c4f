package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sync_sends_total",
			Help: "Total number of optimistic sends by terminal result.",
		},
		[]string{"result"},
	)
	pushEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sync_push_events_total",
			Help: "Total number of push events folded into the timeline.",
		},
		[]string{"type"},
	)
	reconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sync_reconciliations_total",
			Help: "Total number of resolved correlations by winning path.",
		},
		[]string{"path"},
	)
	staleReferencesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sync_stale_references_total",
			Help: "Total number of events or watermarks referencing messages outside the loaded window.",
		},
		[]string{"kind"},
	)
	pagesLoadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sync_pages_loaded_total",
			Help: "Total number of older-message pages merged.",
		},
	)
	correlationEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sync_correlation_evictions_total",
			Help: "Total number of correlation entries evicted by the TTL/size bound.",
		},
	)
	wsReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sync_ws_reconnects_total",
			Help: "Total number of push channel reconnects.",
		},
	)
	wsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sync_ws_connected",
			Help: "Whether the push channel is currently connected.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		sendsTotal,
		pushEventsTotal,
		reconciliationsTotal,
		staleReferencesTotal,
		pagesLoadedTotal,
		correlationEvictionsTotal,
		wsReconnectsTotal,
		wsConnected,
	)
}

func IncSend(result string) {
	sendsTotal.WithLabelValues(result).Inc()
}

func IncPushEvent(eventType string) {
	pushEventsTotal.WithLabelValues(eventType).Inc()
}

func IncReconciliation(path string) {
	reconciliationsTotal.WithLabelValues(path).Inc()
}

func IncStaleReference(kind string) {
	staleReferencesTotal.WithLabelValues(kind).Inc()
}

func IncPageLoaded() {
	pagesLoadedTotal.Inc()
}

func IncCorrelationEviction() {
	correlationEvictionsTotal.Inc()
}

func IncWSReconnect() {
	wsReconnectsTotal.Inc()
}

func SetWSConnected(connected bool) {
	if connected {
		wsConnected.Set(1)
		return
	}
	wsConnected.Set(0)
}
