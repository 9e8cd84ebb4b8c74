// Package metrics счетчики Prometheus сервиса кошельков
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pvx_wallet"

type Metrics struct {
	registry *prometheus.Registry

	WalletsCreated    *prometheus.CounterVec
	Transfers         *prometheus.CounterVec
	AuthFailures      *prometheus.CounterVec
	RateLimited       *prometheus.CounterVec
	LedgerSubmissions *prometheus.CounterVec
}

// New собственный реестр (не глобальный), чтобы тесты не конфликтовали
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		WalletsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallets_created_total",
			Help:      "Wallets created, by source (create, import).",
		}, []string{"source"}),
		Transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Transfers by final status.",
		}, []string{"status"}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Failed passphrase verifications, by operation.",
		}, []string{"operation"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by route.",
		}, []string{"route"}),
		LedgerSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_submissions_total",
			Help:      "Committed transfers handed to ledger sinks, by sink and result.",
		}, []string{"sink", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.WalletsCreated,
		m.Transfers,
		m.AuthFailures,
		m.RateLimited,
		m.LedgerSubmissions,
	)

	return m
}

func (m *Metrics) WalletCreated(source string) {
	m.WalletsCreated.WithLabelValues(source).Inc()
}

func (m *Metrics) TransferFinished(status string) {
	m.Transfers.WithLabelValues(status).Inc()
}

func (m *Metrics) AuthFailed(operation string) {
	m.AuthFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) Limited(route string) {
	m.RateLimited.WithLabelValues(route).Inc()
}

func (m *Metrics) LedgerSubmitted(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.LedgerSubmissions.WithLabelValues(sink, result).Inc()
}

// Handler обработчик /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
