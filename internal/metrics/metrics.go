package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total requests handled, by route and status code",
		},
		[]string{"route", "status"},
	)

	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_admissions_total",
			Help: "Admission decisions on metered routes",
		},
		[]string{"tier", "decision"},
	)

	DenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_denials_total",
			Help: "Refused requests by reason",
		},
		[]string{"reason"},
	)

	ProofsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_proofs_total",
			Help: "Proof verification outcomes",
		},
		[]string{"outcome"},
	)

	BackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "gateway_backend_duration_seconds",
			Help: "Latency of forwarded backend calls",
		},
		[]string{"path"},
	)
)
