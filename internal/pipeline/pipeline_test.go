package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Deployer/internal/container"
	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/telemetry"
)

// trace записывает вызовы processors.
type trace struct {
	mu    sync.Mutex
	calls []string
}

func (tr *trace) processor(name string) Processor {
	return Func(name, func(ctx context.Context, u *Unit) error {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		tr.calls = append(tr.calls, name)
		return nil
	})
}

func (tr *trace) list() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.calls...)
}

func newTestContainer(t *testing.T) *container.Container {
	t.Helper()
	c := container.New(container.Config{Logger: telemetry.Discard()})
	t.Cleanup(func() {
		_ = c.Shutdown(context.Background())
	})
	return c
}

func build(t *testing.T, chain *Chain, recorders ...Recorder) *Pipeline {
	t.Helper()
	return chain.Build(Config{
		Container: newTestContainer(t),
		Recorders: recorders,
		Logger:    telemetry.Discard(),
	})
}

func mustAdd(t *testing.T, chain *Chain, phase domain.Phase, priority int, p Processor) {
	t.Helper()
	if err := chain.AddProcessor("test", phase, priority, p); err != nil {
		t.Fatalf("add processor: %v", err)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPipeline_Ordering(t *testing.T) {
	chain := NewChain()
	tr := &trace{}

	// Регистрируем вперемешку: порядок задают фаза и приоритет
	mustAdd(t, chain, domain.PhaseInstall, 10, tr.processor("install-10"))
	mustAdd(t, chain, domain.PhaseStructure, 20, tr.processor("structure-20"))
	mustAdd(t, chain, domain.PhaseParse, 5, tr.processor("parse-5"))
	mustAdd(t, chain, domain.PhaseStructure, 10, tr.processor("structure-10"))
	mustAdd(t, chain, domain.PhaseStructure, 10, tr.processor("structure-10b"))
	mustAdd(t, chain, domain.PhaseCleanup, 0, tr.processor("cleanup"))

	p := build(t, chain)
	if _, err := p.Run(context.Background(), NewUnit("a.rar", nil)); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{"structure-10", "structure-10b", "structure-20", "parse-5", "install-10", "cleanup"}
	if got := tr.list(); !equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestPipeline_AttachmentsVisibleToLaterProcessors(t *testing.T) {
	chain := NewChain()
	marker := NewKey[string]("marker")
	entries := NewKey[[]string]("entries")

	var seen string
	var seenEntries []string

	mustAdd(t, chain, domain.PhaseStructure, 0, Func("write", func(ctx context.Context, u *Unit) error {
		Attach(u, marker, "rar")
		Append(u, entries, "a")
		return nil
	}))
	mustAdd(t, chain, domain.PhaseStructure, 1, Func("append", func(ctx context.Context, u *Unit) error {
		Append(u, entries, "b", "c")
		return nil
	}))
	mustAdd(t, chain, domain.PhaseParse, 0, Func("read", func(ctx context.Context, u *Unit) error {
		seen, _ = Value(u, marker)
		seenEntries, _ = Value(u, entries)
		return nil
	}))

	u := NewUnit("a.rar", nil)
	if _, err := build(t, chain).Run(context.Background(), u); err != nil {
		t.Fatalf("run: %v", err)
	}

	if seen != "rar" {
		t.Errorf("expected marker rar, got %q", seen)
	}
	if !equal(seenEntries, []string{"a", "b", "c"}) {
		t.Errorf("expected entries [a b c], got %v", seenEntries)
	}
	if len(u.Keys()) != 0 {
		t.Errorf("attachments should be discarded after run, got %v", u.Keys())
	}
}

func TestPipeline_AbortOnFailure(t *testing.T) {
	chain := NewChain()
	tr := &trace{}
	boom := errors.New("bad descriptor")

	mustAdd(t, chain, domain.PhaseStructure, 0, tr.processor("structure"))
	mustAdd(t, chain, domain.PhaseParse, 0, Func("parse", func(ctx context.Context, u *Unit) error {
		return boom
	}))
	mustAdd(t, chain, domain.PhaseParse, 1, tr.processor("parse-after"))
	mustAdd(t, chain, domain.PhaseInstall, 0, tr.processor("install"))

	res, err := build(t, chain).Run(context.Background(), NewUnit("a.rar", nil))

	if !errors.Is(err, boom) {
		t.Fatalf("expected processor error, got %v", err)
	}
	if !errors.Is(err, ErrProcessing) {
		t.Errorf("expected ErrProcessing, got %v", err)
	}

	var perr *ProcessingError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProcessingError, got %T", err)
	}
	if perr.Phase != domain.PhaseParse || perr.Processor != "parse" || perr.Subsystem != "test" {
		t.Errorf("unexpected failure identity: %s/%s/%s", perr.Phase, perr.Processor, perr.Subsystem)
	}

	if got := tr.list(); !equal(got, []string{"structure"}) {
		t.Errorf("only structure should run, got %v", got)
	}

	if res == nil || res.Deployment.Status != domain.DeploymentStatusFailed {
		t.Fatalf("expected FAILED deployment, got %+v", res)
	}
	if res.Deployment.FailedPhase != "PARSE" {
		t.Errorf("expected failed phase PARSE, got %s", res.Deployment.FailedPhase)
	}
}

func TestPipeline_RollbackOnFailure(t *testing.T) {
	chain := NewChain()

	var stops []string
	var mu sync.Mutex
	service := func(name string) *container.Hooks {
		return &container.Hooks{OnStop: func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			stops = append(stops, name)
			return nil
		}}
	}

	mustAdd(t, chain, domain.PhaseInstall, 0, Func("install", func(ctx context.Context, u *Unit) error {
		target := u.ServiceTarget()
		if err := target.AddService("ra", service("ra")).Install(); err != nil {
			return err
		}
		return target.AddService("pool", service("pool")).Requires(container.Service("ra")).Install()
	}))
	mustAdd(t, chain, domain.PhaseCleanup, 0, Func("cleanup", func(ctx context.Context, u *Unit) error {
		return errors.New("cleanup failed")
	}))

	p := build(t, chain)

	// Сервис активатора не принадлежит unit и не откатывается
	if err := p.Container().AddService("mdr", &container.Hooks{}).Install(); err != nil {
		t.Fatalf("install mdr: %v", err)
	}

	_, err := p.Run(context.Background(), NewUnit("a.rar", nil))

	var perr *ProcessingError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProcessingError, got %v", err)
	}
	if !equal(perr.RolledBack, []string{"pool", "ra"}) {
		t.Errorf("expected rolled back [pool ra], got %v", perr.RolledBack)
	}
	if perr.RollbackErr != nil {
		t.Errorf("unexpected rollback error: %v", perr.RollbackErr)
	}

	services := p.Container().Services()
	if len(services) != 1 || services[0].Name != "mdr" {
		t.Errorf("only mdr should remain, got %+v", services)
	}
}

func TestPipeline_InstallErrorAbortsUnit(t *testing.T) {
	chain := NewChain()
	tr := &trace{}

	mustAdd(t, chain, domain.PhaseInstall, 0, Func("install", func(ctx context.Context, u *Unit) error {
		return u.ServiceTarget().AddService("mdr", &container.Hooks{}).Install()
	}))
	mustAdd(t, chain, domain.PhaseCleanup, 0, tr.processor("cleanup"))

	p := build(t, chain)
	if err := p.Container().AddService("mdr", &container.Hooks{}).Install(); err != nil {
		t.Fatalf("install mdr: %v", err)
	}

	_, err := p.Run(context.Background(), NewUnit("a.rar", nil))
	if !errors.Is(err, container.ErrDuplicateService) {
		t.Fatalf("expected ErrDuplicateService, got %v", err)
	}
	if len(tr.list()) != 0 {
		t.Error("cleanup should not run")
	}
	if _, err := p.Container().State("mdr"); err != nil {
		t.Errorf("existing mdr should not be touched: %v", err)
	}
}

func TestPipeline_EmptyChain(t *testing.T) {
	res, err := build(t, NewChain()).Run(context.Background(), NewUnit("empty.rar", nil))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Deployment.Status != domain.DeploymentStatusDeployed {
		t.Errorf("expected DEPLOYED, got %s", res.Deployment.Status)
	}
}

func TestChain_Validation(t *testing.T) {
	chain := NewChain()

	if err := chain.AddProcessor("test", domain.PhaseParse, 0, nil); !errors.Is(err, ErrNilProcessor) {
		t.Errorf("expected ErrNilProcessor, got %v", err)
	}
	if err := chain.AddProcessor("test", domain.Phase(42), 0, Func("x", nil)); !errors.Is(err, ErrUnknownPhase) {
		t.Errorf("expected ErrUnknownPhase, got %v", err)
	}

	chain.Build(Config{Container: newTestContainer(t), Logger: telemetry.Discard()})
	if err := chain.AddProcessor("test", domain.PhaseParse, 0, Func("late", nil)); !errors.Is(err, ErrChainFrozen) {
		t.Errorf("expected ErrChainFrozen, got %v", err)
	}
}

type structureProcessor struct{}

func (structureProcessor) Process(ctx context.Context, u *Unit) error { return nil }

func TestChain_ProcessorNames(t *testing.T) {
	chain := NewChain()
	mustAdd(t, chain, domain.PhaseStructure, 0, structureProcessor{})
	mustAdd(t, chain, domain.PhaseStructure, 1, &structureProcessor{})
	mustAdd(t, chain, domain.PhaseStructure, 2, Func("named", nil))

	regs := chain.Registrations()
	want := []string{"structureProcessor", "structureProcessor", "named"}
	for i, reg := range regs {
		if reg.Name != want[i] {
			t.Errorf("registration %d: expected %s, got %s", i, want[i], reg.Name)
		}
	}
}

func TestPipeline_ContextCancelled(t *testing.T) {
	chain := NewChain()
	tr := &trace{}

	ctx, cancel := context.WithCancel(context.Background())
	mustAdd(t, chain, domain.PhaseStructure, 0, Func("cancel", func(ctx context.Context, u *Unit) error {
		cancel()
		return nil
	}))
	mustAdd(t, chain, domain.PhaseParse, 0, tr.processor("parse"))

	_, err := build(t, chain).Run(ctx, NewUnit("a.rar", nil))

	var perr *ProcessingError
	if !errors.As(err, &perr) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ProcessingError wrapping context.Canceled, got %v", err)
	}
	if perr.Processor != "parse" {
		t.Errorf("expected failure at parse, got %s", perr.Processor)
	}
	if len(tr.list()) != 0 {
		t.Error("parse should not run after cancellation")
	}
}

func TestPipeline_PanicInProcessor(t *testing.T) {
	chain := NewChain()
	mustAdd(t, chain, domain.PhaseParse, 0, Func("panics", func(ctx context.Context, u *Unit) error {
		panic("nil descriptor")
	}))

	_, err := build(t, chain).Run(context.Background(), NewUnit("a.rar", nil))
	if !errors.Is(err, ErrProcessing) {
		t.Errorf("expected ErrProcessing, got %v", err)
	}
}

func TestPipeline_Recorders(t *testing.T) {
	chain := NewChain()
	mustAdd(t, chain, domain.PhaseInstall, 0, Func("install", func(ctx context.Context, u *Unit) error {
		return u.ServiceTarget().AddService("connector.ra."+u.Name, &container.Hooks{}).Install()
	}))

	var mu sync.Mutex
	var recorded []domain.Deployment
	ok := RecorderFunc(func(ctx context.Context, d *domain.Deployment) error {
		mu.Lock()
		defer mu.Unlock()
		recorded = append(recorded, *d)
		return nil
	})
	failing := RecorderFunc(func(ctx context.Context, d *domain.Deployment) error {
		return errors.New("journal unavailable")
	})

	p := build(t, chain, failing, ok)
	res, err := p.Run(context.Background(), NewUnit("mail.rar", nil))
	if err != nil {
		t.Fatalf("recorder errors must not fail the run: %v", err)
	}
	if !equal(res.Services(), []string{"connector.ra.mail.rar"}) {
		t.Errorf("unexpected services: %v", res.Services())
	}

	if err := p.Undeploy(context.Background(), res); err != nil {
		t.Fatalf("undeploy: %v", err)
	}
	if err := p.Undeploy(context.Background(), res); !errors.Is(err, ErrNotDeployed) {
		t.Errorf("second undeploy: expected ErrNotDeployed, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(recorded) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recorded))
	}
	if recorded[0].Status != domain.DeploymentStatusDeployed || recorded[1].Status != domain.DeploymentStatusUndeployed {
		t.Errorf("unexpected statuses: %s, %s", recorded[0].Status, recorded[1].Status)
	}
	if !equal(recorded[1].RolledBack, []string{"connector.ra.mail.rar"}) {
		t.Errorf("undeploy should remove unit services, got %v", recorded[1].RolledBack)
	}
}

// undeployProcessor записывает вызовы Undeploy вместе с сервисами deployment.
type undeployProcessor struct {
	name string
	tr   *trace
}

func (p undeployProcessor) Process(ctx context.Context, u *Unit) error {
	return u.ServiceTarget().AddService("svc."+p.name, &container.Hooks{}).Install()
}
func (p undeployProcessor) Name() string { return p.name }
func (p undeployProcessor) Undeploy(ctx context.Context, d domain.Deployment) {
	call := fmt.Sprintf("undeploy-%s:%s:%d", p.name, d.Name, len(d.Services))
	_ = p.tr.processor(call).Process(ctx, nil)
}

func TestPipeline_UndeployHooksReverseOrder(t *testing.T) {
	chain := NewChain()
	tr := &trace{}
	mustAdd(t, chain, domain.PhaseParse, 0, undeployProcessor{name: "parse", tr: tr})
	mustAdd(t, chain, domain.PhaseInstall, 0, undeployProcessor{name: "install", tr: tr})

	p := build(t, chain)
	res, err := p.Run(context.Background(), NewUnit("a.rar", nil))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := p.Undeploy(context.Background(), res); err != nil {
		t.Fatalf("undeploy: %v", err)
	}

	want := []string{"undeploy-install:a.rar:2", "undeploy-parse:a.rar:2"}
	if got := tr.list(); !equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestPipeline_UndeployFailedUnit(t *testing.T) {
	chain := NewChain()
	mustAdd(t, chain, domain.PhaseParse, 0, Func("fail", func(ctx context.Context, u *Unit) error {
		return errors.New("fail")
	}))

	p := build(t, chain)
	res, _ := p.Run(context.Background(), NewUnit("a.rar", nil))
	if err := p.Undeploy(context.Background(), res); !errors.Is(err, ErrNotDeployed) {
		t.Errorf("expected ErrNotDeployed, got %v", err)
	}
}

func TestPipeline_DeployAll(t *testing.T) {
	chain := NewChain()
	key := NewKey[string]("name")

	mustAdd(t, chain, domain.PhaseStructure, 0, Func("remember", func(ctx context.Context, u *Unit) error {
		Attach(u, key, u.Name)
		return nil
	}))
	mustAdd(t, chain, domain.PhaseInstall, 0, Func("install", func(ctx context.Context, u *Unit) error {
		name, _ := Value(u, key)
		if name != u.Name {
			return fmt.Errorf("attachment leaked between units: %s != %s", name, u.Name)
		}
		if u.Name == "bad.rar" {
			return errors.New("bad archive")
		}
		return u.ServiceTarget().AddService("connector.ra."+name, &container.Hooks{}).Install()
	}))

	p := build(t, chain)
	units := make([]*Unit, 0, 9)
	for i := 0; i < 8; i++ {
		units = append(units, NewUnit(fmt.Sprintf("u%d.rar", i), nil))
	}
	units = append(units, NewUnit("bad.rar", nil))

	results, err := p.DeployAll(context.Background(), units)

	var perr *ProcessingError
	if !errors.As(err, &perr) || perr.Unit != "bad.rar" {
		t.Fatalf("expected failure of bad.rar only, got %v", err)
	}
	for i, res := range results[:8] {
		if res.Deployment.Status != domain.DeploymentStatusDeployed {
			t.Errorf("unit %d: expected DEPLOYED, got %s (%s)", i, res.Deployment.Status, res.Deployment.Error)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if got, err := p.Container().AwaitState(ctx, "connector.ra.u7.rar", domain.ServiceStateUp); err != nil {
		t.Errorf("expected u7 service UP, got %s (%v)", got, err)
	}
	if len(p.Container().Services()) != 8 {
		t.Errorf("expected 8 services, got %d", len(p.Container().Services()))
	}
}

func TestPipeline_DeployAllSharedDependency(t *testing.T) {
	chain := NewChain()
	mustAdd(t, chain, domain.PhaseInstall, 0, Func("install", func(ctx context.Context, u *Unit) error {
		target := u.ServiceTarget()
		svc := "svc." + u.Name
		if err := target.AddService(svc, &container.Hooks{}).Requires(container.Service("shared")).Install(); err != nil {
			return err
		}
		return target.AddService(svc+".client", &container.Hooks{}).Requires(container.Service(svc)).Install()
	}))
	mustAdd(t, chain, domain.PhaseCleanup, 0, Func("verify", func(ctx context.Context, u *Unit) error {
		if u.Name[0] == 'b' {
			return errors.New("verification failed")
		}
		return nil
	}))

	p := build(t, chain)
	c := p.Container()
	if err := c.AddService("shared", &container.Hooks{}).Install(); err != nil {
		t.Fatalf("install shared: %v", err)
	}

	units := make([]*Unit, 0, 16)
	for i := 0; i < 8; i++ {
		units = append(units, NewUnit(fmt.Sprintf("good%d", i), nil), NewUnit(fmt.Sprintf("bad%d", i), nil))
	}

	results, err := p.DeployAll(context.Background(), units)
	if err == nil {
		t.Fatal("expected errors of bad units")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i, res := range results {
		name := units[i].Name
		if name[0] == 'b' {
			if res.Deployment.Status != domain.DeploymentStatusFailed || len(res.Deployment.RolledBack) != 2 {
				t.Errorf("%s: expected FAILED with 2 rolled back, got %s %v", name, res.Deployment.Status, res.Deployment.RolledBack)
			}
			if _, err := c.State("svc." + name); !errors.Is(err, container.ErrServiceNotFound) {
				t.Errorf("%s: expected service removed, got %v", name, err)
			}
			continue
		}
		if got, err := c.AwaitState(ctx, "svc."+name+".client", domain.ServiceStateUp); err != nil {
			t.Errorf("%s: expected client UP, got %s (%v)", name, got, err)
		}
	}

	if state, _ := c.State("shared"); state != domain.ServiceStateUp {
		t.Errorf("shared: expected UP, got %s", state)
	}
	if got := len(c.Services()); got != 1+2*8 {
		t.Errorf("expected 17 services, got %d", got)
	}
}
