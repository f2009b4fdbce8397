package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Deployer/internal/container"
	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/telemetry"
)

// Default configuration values.
const (
	defaultConcurrency = 4
)

// Recorder получает итог каждого Run и Undeploy.
// Ошибки Recorder логируются и не меняют результат.
type Recorder interface {
	Record(ctx context.Context, d *domain.Deployment) error
}

// RecorderFunc — адаптер функции к Recorder.
type RecorderFunc func(ctx context.Context, d *domain.Deployment) error

// Record реализует Recorder.
func (f RecorderFunc) Record(ctx context.Context, d *domain.Deployment) error {
	return f(ctx, d)
}

// Config — конфигурация Pipeline.
type Config struct {
	// Container — контейнер, в который processors устанавливают сервисы.
	Container *container.Container

	// Recorders — получатели итогов (журнал, шина событий).
	Recorders []Recorder

	// Concurrency — максимум units, обрабатываемых DeployAll одновременно (default: 4).
	Concurrency int

	// Metrics — Prometheus метрики (опционально).
	Metrics *telemetry.Metrics

	// Logger
	Logger *slog.Logger
}

// Pipeline проводит unit через фиксированные фазы.
//
// Внутри одного unit обработка последовательна: каждый processor видит
// вложения всех предыдущих. Разные units могут обрабатываться параллельно,
// общим у них остаётся только контейнер.
type Pipeline struct {
	regs        []Registration
	container   *container.Container
	recorders   []Recorder
	concurrency int
	metrics     *telemetry.Metrics
	logger      *slog.Logger
}

// Result — итог обработки unit.
type Result struct {
	Unit       *Unit
	Deployment *domain.Deployment

	tracked *container.TrackedTarget
	mu      sync.Mutex
	undone  bool
}

// Services возвращает сервисы, установленные processors unit.
func (r *Result) Services() []string {
	return r.tracked.Installed()
}

func newPipeline(regs []Registration, cfg Config) *Pipeline {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := cfg.Container
	if c == nil {
		c = container.New(container.Config{Logger: logger, Metrics: cfg.Metrics})
	}

	return &Pipeline{
		regs:        regs,
		container:   c,
		recorders:   cfg.Recorders,
		concurrency: concurrency,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

// Container возвращает контейнер pipeline.
func (p *Pipeline) Container() *container.Container {
	return p.container
}

// Registrations возвращает processors в порядке выполнения.
func (p *Pipeline) Registrations() []Registration {
	return append([]Registration(nil), p.regs...)
}

// Run проводит unit через все фазы.
//
// Первая ошибка processor прерывает обработку: последующие processors
// этой и следующих фаз не вызываются. Перед возвратом ошибки все сервисы,
// установленные через ServiceTarget unit, удаляются в обратном порядке.
// Ошибка имеет тип *ProcessingError.
//
// Result возвращается всегда, Deployment в нём содержит итог.
// Вложения unit сбрасываются по завершении.
func (p *Pipeline) Run(ctx context.Context, u *Unit) (*Result, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.ensure()

	tracked := p.container.Track(u.ID.String())
	u.target = tracked
	defer func() {
		u.target = nil
		u.Discard()
	}()

	logger := telemetry.WithUnitID(p.logger, u.ID.String())
	ctx = telemetry.WithLogger(ctx, logger)

	d := &domain.Deployment{
		ID:        u.ID,
		Name:      u.Name,
		Status:    domain.DeploymentStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	res := &Result{Unit: u, Deployment: d, tracked: tracked}

	logger.Info("deploying unit", "unit", u.Name, "processors", len(p.regs))

	for _, reg := range p.regs {
		err := ctx.Err()
		if err == nil {
			err = p.process(ctx, reg, u)
		}
		if err != nil {
			perr := p.fail(ctx, u, reg, tracked, err)
			d.Status = domain.DeploymentStatusFailed
			d.FailedPhase = reg.Phase.String()
			d.FailedProcessor = reg.Name
			d.Error = err.Error()
			d.RolledBack = perr.RolledBack
			d.FinishedAt = time.Now().UTC()
			p.finish(ctx, d)
			return res, perr
		}
	}

	d.Status = domain.DeploymentStatusDeployed
	d.Services = tracked.Installed()
	d.FinishedAt = time.Now().UTC()
	p.finish(ctx, d)

	logger.Info("unit deployed",
		"unit", u.Name,
		"services", len(d.Services),
		"duration", d.Duration(),
	)
	return res, nil
}

// process вызывает processor, превращая панику в ошибку.
func (p *Pipeline) process(ctx context.Context, reg Registration, u *Unit) (err error) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in processor: %v", r)
		}
		p.metrics.ProcessorDone(reg.Phase.String(), time.Since(started))
	}()

	telemetry.WithPhase(telemetry.FromContext(ctx), reg.Phase.String(), reg.Name).Debug("running processor")
	return reg.Processor.Process(ctx, u)
}

// fail откатывает сервисы unit и собирает ProcessingError.
func (p *Pipeline) fail(ctx context.Context, u *Unit, reg Registration, tracked *container.TrackedTarget, err error) *ProcessingError {
	logger := telemetry.FromContext(ctx)

	// Откат выполняется и после отмены ctx
	removed, rbErr := tracked.Rollback(context.WithoutCancel(ctx))

	perr := &ProcessingError{
		UnitID:      u.ID,
		Unit:        u.Name,
		Phase:       reg.Phase,
		Subsystem:   reg.Subsystem,
		Processor:   reg.Name,
		Err:         err,
		RolledBack:  removed,
		RollbackErr: rbErr,
	}

	logger.Error("unit deployment failed",
		"unit", u.Name,
		"phase", reg.Phase.String(),
		"processor", reg.Name,
		"error", err,
		"rolled_back", removed,
	)
	if rbErr != nil {
		logger.Warn("rollback incomplete", "unit", u.Name, "error", rbErr)
	}
	return perr
}

// finish передаёт итог recorders и учитывает метрики.
func (p *Pipeline) finish(ctx context.Context, d *domain.Deployment) {
	p.metrics.DeploymentFinished(string(d.Status), len(d.RolledBack))

	ctx = context.WithoutCancel(ctx)
	for _, r := range p.recorders {
		if err := r.Record(ctx, d); err != nil {
			telemetry.FromContext(ctx).Warn("failed to record deployment",
				"deployment_id", d.ID,
				"status", d.Status,
				"error", err,
			)
		}
	}
}

// Undeploy снимает развёрнутый unit.
//
// Вызывает Undeployer processors в обратном порядке, затем удаляет
// сервисы unit в обратном порядке установки.
func (p *Pipeline) Undeploy(ctx context.Context, res *Result) error {
	if res == nil {
		return ErrNotDeployed
	}

	res.mu.Lock()
	defer res.mu.Unlock()
	if res.undone || res.Deployment == nil || res.Deployment.Status != domain.DeploymentStatusDeployed {
		return ErrNotDeployed
	}
	res.undone = true

	logger := telemetry.WithUnitID(p.logger, res.Unit.ID.String())
	ctx = telemetry.WithLogger(ctx, logger)

	for i := len(p.regs) - 1; i >= 0; i-- {
		if u, ok := p.regs[i].Processor.(Undeployer); ok {
			u.Undeploy(ctx, *res.Deployment)
		}
	}

	removed, err := res.tracked.Rollback(ctx)

	d := *res.Deployment
	d.Status = domain.DeploymentStatusUndeployed
	d.RolledBack = removed
	d.FinishedAt = time.Now().UTC()
	res.Deployment = &d
	p.finish(ctx, &d)

	logger.Info("unit undeployed", "unit", res.Unit.Name, "removed", removed)
	if err != nil {
		return fmt.Errorf("undeploy %s: %w", res.Unit.Name, err)
	}
	return nil
}

// DeployAll обрабатывает независимые units параллельно.
//
// Ошибка одного unit не прерывает остальные. results[i] соответствует units[i];
// ошибки всех упавших units объединяются.
func (p *Pipeline) DeployAll(ctx context.Context, units []*Unit) ([]*Result, error) {
	results := make([]*Result, len(units))
	errs := make([]error, len(units))

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i, u := range units {
		g.Go(func() error {
			results[i], errs[i] = p.Run(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}
