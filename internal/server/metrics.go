package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry     *prometheus.Registry
	plansTotal   *prometheus.CounterVec
	relaysTotal  *prometheus.CounterVec
	scansTotal   *prometheus.CounterVec
	openOffers   prometheus.Gauge
	skippedScan  prometheus.Gauge
	dlqDepth     prometheus.Gauge
	planDuration *prometheus.HistogramVec
}

func newMetricsRegistry() *metricsRegistry {
	plans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_plans_total",
		Help: "Total number of trade plans requested",
	}, []string{"action", "status"})

	relays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_relays_total",
		Help: "Total number of signed transactions relayed",
	}, []string{"status"})

	scans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_offer_scans_total",
		Help: "Open offer scans by result",
	}, []string{"result"})

	open := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_open_offers",
		Help: "Open offers seen by the last scan",
	})

	skipped := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_scan_skipped_accounts",
		Help: "Accounts the last scan could not decode",
	})

	dlq := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_dlq_depth",
		Help: "Number of failed relays in the DLQ",
	})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "escrow_plan_duration_seconds",
		Help:    "Time to build a plan, ledger reads included",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	r := prometheus.NewRegistry()
	r.MustRegister(plans, relays, scans, open, skipped, dlq, duration)

	return &metricsRegistry{
		registry:     r,
		plansTotal:   plans,
		relaysTotal:  relays,
		scansTotal:   scans,
		openOffers:   open,
		skippedScan:  skipped,
		dlqDepth:     dlq,
		planDuration: duration,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incPlan(action, status string) {
	m.plansTotal.WithLabelValues(action, status).Inc()
}

func (m *metricsRegistry) observePlan(action string, seconds float64) {
	m.planDuration.WithLabelValues(action).Observe(seconds)
}

func (m *metricsRegistry) incRelay(status string) {
	m.relaysTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) recordScan(result string, open, skipped int) {
	m.scansTotal.WithLabelValues(result).Inc()
	if result == "ok" {
		m.openOffers.Set(float64(open))
		m.skippedScan.Set(float64(skipped))
	}
}

func (m *metricsRegistry) setDLQDepth(depth int) {
	m.dlqDepth.Set(float64(depth))
}
