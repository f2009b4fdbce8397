package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Deployer/internal/container"
	"github.com/shaiso/Deployer/internal/domain"
)

// Service DTOs

// ServiceResponse — ответ с сервисом контейнера.
type ServiceResponse struct {
	Name         string              `json:"name"`
	State        domain.ServiceState `json:"state"`
	Owner        string              `json:"owner,omitempty"`
	Dependencies []string            `json:"dependencies,omitempty"`
	Unresolved   []string            `json:"unresolved,omitempty"`
	Provides     []string            `json:"provides,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// ServiceFromInfo конвертирует container.ServiceInfo в ServiceResponse.
func ServiceFromInfo(s container.ServiceInfo) ServiceResponse {
	return ServiceResponse{
		Name:         s.Name,
		State:        s.State,
		Owner:        s.Owner,
		Dependencies: s.Dependencies,
		Unresolved:   s.Unresolved,
		Provides:     s.Provides,
		Error:        s.Error,
	}
}

// Deployment DTOs

// DeploymentResponse — ответ с итогом deployment.
type DeploymentResponse struct {
	ID              uuid.UUID               `json:"id"`
	Name            string                  `json:"name"`
	Status          domain.DeploymentStatus `json:"status"`
	Services        []string                `json:"services,omitempty"`
	FailedPhase     string                  `json:"failed_phase,omitempty"`
	FailedProcessor string                  `json:"failed_processor,omitempty"`
	Error           string                  `json:"error,omitempty"`
	RolledBack      []string                `json:"rolled_back,omitempty"`
	StartedAt       time.Time               `json:"started_at"`
	FinishedAt      *time.Time              `json:"finished_at,omitempty"`
	DurationMs      int64                   `json:"duration_ms"`
}

// DeploymentFromDomain конвертирует domain.Deployment в DeploymentResponse.
func DeploymentFromDomain(d domain.Deployment) DeploymentResponse {
	resp := DeploymentResponse{
		ID:              d.ID,
		Name:            d.Name,
		Status:          d.Status,
		Services:        d.Services,
		FailedPhase:     d.FailedPhase,
		FailedProcessor: d.FailedProcessor,
		Error:           d.Error,
		RolledBack:      d.RolledBack,
		StartedAt:       d.StartedAt,
		DurationMs:      d.Duration().Milliseconds(),
	}
	if !d.FinishedAt.IsZero() {
		finished := d.FinishedAt
		resp.FinishedAt = &finished
	}
	return resp
}
