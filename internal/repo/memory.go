package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Deployer/internal/domain"
)

// MemoryDeploymentRepo — журнал deployments в памяти процесса.
// Используется, когда БД не сконфигурирована.
type MemoryDeploymentRepo struct {
	mu          sync.RWMutex
	deployments map[uuid.UUID]domain.Deployment
}

// NewMemoryDeploymentRepo создаёт пустой журнал.
func NewMemoryDeploymentRepo() *MemoryDeploymentRepo {
	return &MemoryDeploymentRepo{deployments: make(map[uuid.UUID]domain.Deployment)}
}

// Record сохраняет копию итога deployment.
func (r *MemoryDeploymentRepo) Record(ctx context.Context, d *domain.Deployment) error {
	if err := validate(d); err != nil {
		return err
	}

	cp := *d
	cp.Services = append([]string(nil), d.Services...)
	cp.RolledBack = append([]string(nil), d.RolledBack...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.deployments[d.ID] = cp
	return nil
}

// GetByID возвращает deployment по ID.
func (r *MemoryDeploymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Deployment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.deployments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

// List возвращает deployments, новые первыми.
func (r *MemoryDeploymentRepo) List(ctx context.Context, filter DeploymentFilter) ([]domain.Deployment, error) {
	r.mu.RLock()
	out := make([]domain.Deployment, 0, len(r.deployments))
	for _, d := range r.deployments {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if filter.Name != "" && d.Name != filter.Name {
			continue
		}
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if limit := filter.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var (
	_ DeploymentStore = (*DeploymentRepo)(nil)
	_ DeploymentStore = (*MemoryDeploymentRepo)(nil)
)
