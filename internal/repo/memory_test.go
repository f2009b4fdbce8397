package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Deployer/internal/domain"
)

func deployment(name string, status domain.DeploymentStatus, started time.Time) *domain.Deployment {
	return &domain.Deployment{
		ID:         uuid.New(),
		Name:       name,
		Status:     status,
		Services:   []string{"connector.ra." + name},
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
	}
}

func TestMemoryDeploymentRepo_RecordAndGet(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryDeploymentRepo()

	d := deployment("mail", domain.DeploymentStatusDeployed, time.Now())
	if err := r.Record(ctx, d); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Журнал хранит копию
	d.Services[0] = "mutated"

	got, err := r.GetByID(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Services[0] != "connector.ra.mail" {
		t.Errorf("stored services = %v", got.Services)
	}

	// Повторная запись заменяет статус
	undeployed := *got
	undeployed.Status = domain.DeploymentStatusUndeployed
	if err := r.Record(ctx, &undeployed); err != nil {
		t.Fatal(err)
	}
	got, _ = r.GetByID(ctx, d.ID)
	if got.Status != domain.DeploymentStatusUndeployed {
		t.Errorf("status = %s, want UNDEPLOYED", got.Status)
	}

	if _, err := r.GetByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryDeploymentRepo_Validation(t *testing.T) {
	r := NewMemoryDeploymentRepo()
	for _, d := range []*domain.Deployment{nil, {Name: "x"}, {ID: uuid.New()}} {
		if err := r.Record(context.Background(), d); !errors.Is(err, ErrInvalidDeployment) {
			t.Errorf("Record(%+v) err = %v, want ErrInvalidDeployment", d, err)
		}
	}
}

func TestMemoryDeploymentRepo_List(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryDeploymentRepo()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := deployment("a", domain.DeploymentStatusDeployed, base)
	b := deployment("b", domain.DeploymentStatusFailed, base.Add(time.Minute))
	c := deployment("c", domain.DeploymentStatusDeployed, base.Add(2*time.Minute))
	for _, d := range []*domain.Deployment{a, b, c} {
		if err := r.Record(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	names := func(ds []domain.Deployment) []string {
		out := make([]string, 0, len(ds))
		for _, d := range ds {
			out = append(out, d.Name)
		}
		return out
	}

	tests := []struct {
		name   string
		filter DeploymentFilter
		want   []string
	}{
		{"all newest first", DeploymentFilter{}, []string{"c", "b", "a"}},
		{"by status", DeploymentFilter{Status: domain.DeploymentStatusDeployed}, []string{"c", "a"}},
		{"by name", DeploymentFilter{Name: "b"}, []string{"b"}},
		{"limit", DeploymentFilter{Limit: 2}, []string{"c", "b"}},
		{"offset", DeploymentFilter{Offset: 2}, []string{"a"}},
		{"offset past end", DeploymentFilter{Offset: 5}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			gotNames := names(got)
			if len(gotNames) != len(tt.want) {
				t.Fatalf("List = %v, want %v", gotNames, tt.want)
			}
			for i := range gotNames {
				if gotNames[i] != tt.want[i] {
					t.Fatalf("List = %v, want %v", gotNames, tt.want)
				}
			}
		})
	}
}
