package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics — Prometheus метрики контейнера сервисов и pipeline.
//
// Все методы безопасны для nil-получателя: компоненты без метрик
// просто передают nil.
type Metrics struct {
	serviceTransitions *prometheus.CounterVec
	serviceStartErrors prometheus.Counter
	servicesByState    *prometheus.GaugeVec
	serviceStartTime   prometheus.Histogram

	deployments       *prometheus.CounterVec
	processorDuration *prometheus.HistogramVec
	rolledBack        prometheus.Counter

	problems *prometheus.GaugeVec
}

// NewMetrics создаёт метрики и регистрирует их в reg.
// Для тестов удобно передавать prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		serviceTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deployer_service_transitions_total",
				Help: "Number of service state transitions by target state.",
			},
			[]string{"state"},
		),
		serviceStartErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "deployer_service_start_failures_total",
				Help: "Number of service start hooks that returned an error.",
			},
		),
		servicesByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "deployer_services",
				Help: "Number of installed services by state.",
			},
			[]string{"state"},
		),
		serviceStartTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "deployer_service_start_duration_seconds",
				Help:    "Time spent in service start hooks.",
				Buckets: prometheus.DefBuckets,
			},
		),
		deployments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deployer_deployments_total",
				Help: "Number of deployment unit runs by final status.",
			},
			[]string{"status"},
		),
		processorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deployer_processor_duration_seconds",
				Help:    "Time spent in deployment processors by phase.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		rolledBack: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "deployer_rolled_back_services_total",
				Help: "Number of services removed by compensating rollback.",
			},
		),
		problems: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "deployer_diagnostics_problems",
				Help: "Services reported by the last diagnostics run by problem kind.",
			},
			[]string{"kind"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.serviceTransitions,
			m.serviceStartErrors,
			m.servicesByState,
			m.serviceStartTime,
			m.deployments,
			m.processorDuration,
			m.rolledBack,
			m.problems,
		)
	}

	return m
}

// ServiceTransition учитывает переход сервиса from → to.
// from пустой для только что установленного сервиса, to пустой для удалённого.
func (m *Metrics) ServiceTransition(from, to string) {
	if m == nil {
		return
	}
	if from != "" {
		m.servicesByState.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.servicesByState.WithLabelValues(to).Inc()
		m.serviceTransitions.WithLabelValues(to).Inc()
	}
}

// ServiceStarted учитывает длительность start hook и его результат.
func (m *Metrics) ServiceStarted(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.serviceStartTime.Observe(d.Seconds())
	if err != nil {
		m.serviceStartErrors.Inc()
	}
}

// ProcessorDone учитывает длительность processor в фазе.
func (m *Metrics) ProcessorDone(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.processorDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// DeploymentFinished учитывает завершение unit и количество откаченных сервисов.
func (m *Metrics) DeploymentFinished(status string, rolledBack int) {
	if m == nil {
		return
	}
	m.deployments.WithLabelValues(status).Inc()
	m.rolledBack.Add(float64(rolledBack))
}

// DiagnosticsReported выставляет результат последнего отчёта диагностики.
func (m *Metrics) DiagnosticsReported(kind string, n int) {
	if m == nil {
		return
	}
	m.problems.WithLabelValues(kind).Set(float64(n))
}
