// Package diagnostics периодически сообщает о сервисах, которые
// не могут подняться: с неразрешёнными зависимостями, упавших
// и ожидающих в DOWN.
package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Deployer/internal/container"
	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/telemetry"
)

// Виды проблем.
const (
	KindUnresolved = "unresolved"
	KindFailed     = "failed"
	KindWaiting    = "waiting"
)

// ServiceLister — источник снимка сервисов (container.Container).
type ServiceLister interface {
	Services() []container.ServiceInfo
}

// Problem — сервис, который не находится в UP.
type Problem struct {
	Service    string              `json:"service"`
	Kind       string              `json:"kind"`
	State      domain.ServiceState `json:"state"`
	Owner      string              `json:"owner,omitempty"`
	Unresolved []string            `json:"unresolved,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Report — результат одного прохода диагностики.
type Report struct {
	At       time.Time `json:"at"`
	Total    int       `json:"total"`
	Up       int       `json:"up"`
	Problems []Problem `json:"problems,omitempty"`
}

// Healthy — все сервисы в UP.
func (r Report) Healthy() bool {
	return len(r.Problems) == 0
}

// Count возвращает число проблем вида kind.
func (r Report) Count(kind string) int {
	n := 0
	for _, p := range r.Problems {
		if p.Kind == kind {
			n++
		}
	}
	return n
}

// Build строит отчёт по снимку сервисов.
//
// Сервисы в STARTING и STOPPING не считаются проблемой: это переходные состояния.
func Build(services []container.ServiceInfo, at time.Time) Report {
	r := Report{At: at, Total: len(services)}
	for _, s := range services {
		p := Problem{Service: s.Name, State: s.State, Owner: s.Owner}
		switch {
		case s.State == domain.ServiceStateUp:
			r.Up++
			continue
		case s.State == domain.ServiceStateFailed:
			p.Kind = KindFailed
			p.Error = s.Error
		case s.State == domain.ServiceStateDown && len(s.Unresolved) > 0:
			p.Kind = KindUnresolved
			p.Unresolved = append([]string(nil), s.Unresolved...)
		case s.State == domain.ServiceStateDown:
			p.Kind = KindWaiting
		default:
			continue
		}
		r.Problems = append(r.Problems, p)
	}
	return r
}

// Config — конфигурация Reporter.
type Config struct {
	// Source — контейнер сервисов.
	Source ServiceLister

	// Schedule — cron выражение (стандартный формат или @every 1m).
	Schedule string

	// Metrics — Prometheus метрики (опционально).
	Metrics *telemetry.Metrics

	Logger *slog.Logger
}

// Reporter — периодическая диагностика контейнера.
type Reporter struct {
	source   ServiceLister
	schedule string
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	mu   sync.RWMutex
	last *Report
	now  func() time.Time
}

// New создаёт Reporter.
func New(cfg Config) *Reporter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		source:   cfg.Source,
		schedule: cfg.Schedule,
		metrics:  cfg.Metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Tick строит отчёт, логирует проблемы и сохраняет отчёт как последний.
func (r *Reporter) Tick(ctx context.Context) Report {
	report := Build(r.source.Services(), r.now().UTC())

	for _, kind := range []string{KindUnresolved, KindFailed, KindWaiting} {
		r.metrics.DiagnosticsReported(kind, report.Count(kind))
	}

	for _, p := range report.Problems {
		attrs := []any{"service", p.Service, "kind", p.Kind, "state", p.State}
		if p.Owner != "" {
			attrs = append(attrs, "owner", p.Owner)
		}
		switch p.Kind {
		case KindUnresolved:
			r.logger.Warn("service has missing dependencies", append(attrs, "missing", p.Unresolved)...)
		case KindFailed:
			r.logger.Warn("service failed to start", append(attrs, "error", p.Error)...)
		default:
			r.logger.Debug("service waiting for dependencies", attrs...)
		}
	}

	r.logger.Info("diagnostics completed",
		"services", report.Total,
		"up", report.Up,
		"problems", len(report.Problems),
	)

	r.mu.Lock()
	r.last = &report
	r.mu.Unlock()
	return report
}

// Last возвращает последний отчёт.
func (r *Reporter) Last() (Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return Report{}, false
	}
	return *r.last, true
}

// Run запускает Tick по расписанию и блокируется до отмены ctx.
// Тики не перекрываются: следующий пропускается, пока идёт предыдущий.
func (r *Reporter) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(r.schedule, func() { r.Tick(ctx) }); err != nil {
		return fmt.Errorf("diagnostics schedule %q: %w", r.schedule, err)
	}

	r.logger.Info("diagnostics started", "schedule", r.schedule)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()

	r.logger.Info("diagnostics stopped")
	return nil
}
