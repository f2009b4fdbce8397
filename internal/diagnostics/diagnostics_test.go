package diagnostics

import (
	"context"
	"testing"
	"time"

	"github.com/shaiso/Deployer/internal/capability"
	"github.com/shaiso/Deployer/internal/container"
	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/telemetry"
)

type staticLister []container.ServiceInfo

func (s staticLister) Services() []container.ServiceInfo { return s }

func TestBuild(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	report := Build([]container.ServiceInfo{
		{Name: "mdr", State: domain.ServiceStateUp},
		{Name: "repo", State: domain.ServiceStateDown, Unresolved: []string{"capability org.wildfly.transactions"}},
		{Name: "ra", State: domain.ServiceStateDown},
		{Name: "cf", State: domain.ServiceStateFailed, Error: "boom", Owner: "unit-1"},
		{Name: "ao", State: domain.ServiceStateStarting},
	}, at)

	if report.Total != 5 || report.Up != 1 {
		t.Errorf("Total=%d Up=%d", report.Total, report.Up)
	}
	if report.Healthy() {
		t.Error("report should not be healthy")
	}
	if len(report.Problems) != 3 {
		t.Fatalf("problems = %+v", report.Problems)
	}

	want := []struct{ service, kind string }{
		{"repo", KindUnresolved},
		{"ra", KindWaiting},
		{"cf", KindFailed},
	}
	for i, w := range want {
		p := report.Problems[i]
		if p.Service != w.service || p.Kind != w.kind {
			t.Errorf("problem[%d] = %s/%s, want %s/%s", i, p.Service, p.Kind, w.service, w.kind)
		}
	}
	if report.Problems[2].Error != "boom" || report.Problems[2].Owner != "unit-1" {
		t.Errorf("failed problem = %+v", report.Problems[2])
	}
	if report.Count(KindUnresolved) != 1 || report.Count(KindFailed) != 1 {
		t.Errorf("counts: unresolved=%d failed=%d", report.Count(KindUnresolved), report.Count(KindFailed))
	}
}

func TestBuild_Healthy(t *testing.T) {
	report := Build([]container.ServiceInfo{{Name: "a", State: domain.ServiceStateUp}}, time.Now())
	if !report.Healthy() {
		t.Errorf("problems = %+v", report.Problems)
	}
}

func TestReporter_Tick(t *testing.T) {
	r := New(Config{
		Source: staticLister{{Name: "a", State: domain.ServiceStateFailed, Error: "x"}},
		Logger: telemetry.Discard(),
	})

	if _, ok := r.Last(); ok {
		t.Fatal("Last before first tick should be empty")
	}

	report := r.Tick(context.Background())
	last, ok := r.Last()
	if !ok {
		t.Fatal("Last after tick is empty")
	}
	if last.Count(KindFailed) != 1 || report.Count(KindFailed) != 1 {
		t.Errorf("last = %+v", last)
	}
}

func TestReporter_ContainerMissingCapability(t *testing.T) {
	c := container.New(container.Config{
		Registry: capability.NewRegistry(),
		Logger:   telemetry.Discard(),
	})
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	err := c.AddService("repo", nil).
		Requires(container.Capability("org.wildfly.transactions")).
		Install()
	if err != nil {
		t.Fatalf("install: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Settle(ctx); err != nil {
		t.Fatalf("settle: %v", err)
	}

	report := New(Config{Source: c, Logger: telemetry.Discard()}).Tick(ctx)
	if report.Count(KindUnresolved) != 1 {
		t.Fatalf("problems = %+v", report.Problems)
	}
	if got := report.Problems[0].Unresolved; len(got) != 1 {
		t.Errorf("unresolved = %v", got)
	}
}

func TestReporter_RunInvalidSchedule(t *testing.T) {
	r := New(Config{Source: staticLister{}, Schedule: "not a schedule", Logger: telemetry.Discard()})
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestReporter_RunStopsOnCancel(t *testing.T) {
	r := New(Config{Source: staticLister{}, Schedule: "@every 1h", Logger: telemetry.Discard()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
