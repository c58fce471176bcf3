package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 生成结果标签
const (
	OutcomeSuccess       = "success"
	OutcomeInvalid       = "invalid"
	OutcomeNotFound      = "not_found"
	OutcomeEngineFailure = "engine_failure"
	OutcomeError         = "error"
)

// Metrics 领域指标；nil 接收者上的方法均为空操作
type Metrics struct {
	Generations    *prometheus.CounterVec
	Validations    *prometheus.CounterVec
	EngineDuration *prometheus.HistogramVec
	InFlight       prometheus.Gauge
	CatalogReloads *prometheus.CounterVec
}

// NewMetrics 创建并注册指标
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paramcad",
			Name:      "generations_total",
			Help:      "Generation requests by piece code and outcome.",
		}, []string{"piece_code", "outcome"}),
		Validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paramcad",
			Name:      "validations_total",
			Help:      "Parameter validations by piece code and result.",
		}, []string{"piece_code", "result"}),
		EngineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paramcad",
			Name:      "engine_duration_seconds",
			Help:      "External generation engine call duration.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"piece_code"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "paramcad",
			Name:      "generations_in_flight",
			Help:      "Engine calls currently running.",
		}),
		CatalogReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paramcad",
			Name:      "catalog_reloads_total",
			Help:      "Catalog reloads by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Generations, m.Validations, m.EngineDuration, m.InFlight, m.CatalogReloads)
	}
	return m
}

func (m *Metrics) generation(pieceCode, outcome string) {
	if m == nil {
		return
	}
	if pieceCode == "" {
		pieceCode = "unknown"
	}
	m.Generations.WithLabelValues(pieceCode, outcome).Inc()
}

func (m *Metrics) validation(pieceCode string, valid bool) {
	if m == nil {
		return
	}
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.Validations.WithLabelValues(pieceCode, result).Inc()
}

func (m *Metrics) engineStarted() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

func (m *Metrics) engineFinished(pieceCode string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.EngineDuration.WithLabelValues(pieceCode).Observe(elapsed.Seconds())
}

func (m *Metrics) catalogReload(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CatalogReloads.WithLabelValues(result).Inc()
}
