package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Deployer/internal/domain"
)

// DeploymentStore — журнал итогов deployments.
//
// Record реализует pipeline.Recorder: повторная запись с тем же ID
// (например, после Undeploy) заменяет предыдущую.
type DeploymentStore interface {
	Record(ctx context.Context, d *domain.Deployment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Deployment, error)
	List(ctx context.Context, filter DeploymentFilter) ([]domain.Deployment, error)
}

// DeploymentFilter — параметры фильтрации deployments.
type DeploymentFilter struct {
	Status domain.DeploymentStatus
	Name   string
	Limit  int
	Offset int
}

const defaultListLimit = 100

func (f DeploymentFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// DeploymentRepo — журнал deployments в Postgres.
type DeploymentRepo struct {
	pool *pgxpool.Pool
}

// NewDeploymentRepo создаёт новый DeploymentRepo.
func NewDeploymentRepo(pool *pgxpool.Pool) *DeploymentRepo {
	return &DeploymentRepo{pool: pool}
}

// Record сохраняет итог deployment.
func (r *DeploymentRepo) Record(ctx context.Context, d *domain.Deployment) error {
	if err := validate(d); err != nil {
		return err
	}

	servicesJSON, err := json.Marshal(nonNil(d.Services))
	if err != nil {
		return fmt.Errorf("marshal services: %w", err)
	}
	rolledBackJSON, err := json.Marshal(nonNil(d.RolledBack))
	if err != nil {
		return fmt.Errorf("marshal rolled_back: %w", err)
	}

	query := `
		INSERT INTO deployments (id, name, status, services, failed_phase, failed_processor,
		                         error, rolled_back, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    services = EXCLUDED.services,
		    failed_phase = EXCLUDED.failed_phase,
		    failed_processor = EXCLUDED.failed_processor,
		    error = EXCLUDED.error,
		    rolled_back = EXCLUDED.rolled_back,
		    finished_at = EXCLUDED.finished_at
	`
	_, err = r.pool.Exec(ctx, query,
		d.ID,
		d.Name,
		d.Status,
		servicesJSON,
		nullString(d.FailedPhase),
		nullString(d.FailedProcessor),
		nullString(d.Error),
		rolledBackJSON,
		d.StartedAt,
		nullTime(d.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert deployment: %w", err)
	}
	return nil
}

// GetByID возвращает deployment по ID.
func (r *DeploymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Deployment, error) {
	query := `
		SELECT id, name, status, services, failed_phase, failed_processor,
		       error, rolled_back, started_at, finished_at
		FROM deployments
		WHERE id = $1
	`
	d, err := scanDeployment(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// List возвращает deployments, новые первыми.
func (r *DeploymentRepo) List(ctx context.Context, filter DeploymentFilter) ([]domain.Deployment, error) {
	query := `
		SELECT id, name, status, services, failed_phase, failed_processor,
		       error, rolled_back, started_at, finished_at
		FROM deployments
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR name = $2)
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.Status)),
		nullString(filter.Name),
		filter.limit(),
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var deployments []domain.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}
	return deployments, rows.Err()
}

// --- Helpers ---

// scanDeployment сканирует строку в Deployment.
// pgx.Rows удовлетворяет pgx.Row, поэтому хватает одной функции.
func scanDeployment(row pgx.Row) (*domain.Deployment, error) {
	var d domain.Deployment
	var servicesJSON, rolledBackJSON []byte
	var failedPhase, failedProcessor, depError *string
	var finishedAt *time.Time

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Status,
		&servicesJSON,
		&failedPhase,
		&failedProcessor,
		&depError,
		&rolledBackJSON,
		&d.StartedAt,
		&finishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan deployment: %w", err)
	}

	if err := unmarshalList(servicesJSON, &d.Services); err != nil {
		return nil, fmt.Errorf("unmarshal services: %w", err)
	}
	if err := unmarshalList(rolledBackJSON, &d.RolledBack); err != nil {
		return nil, fmt.Errorf("unmarshal rolled_back: %w", err)
	}

	d.FailedPhase = deref(failedPhase)
	d.FailedProcessor = deref(failedProcessor)
	d.Error = deref(depError)
	if finishedAt != nil {
		d.FinishedAt = *finishedAt
	}
	return &d, nil
}

func validate(d *domain.Deployment) error {
	if d == nil || d.ID == uuid.Nil || d.Name == "" {
		return ErrInvalidDeployment
	}
	return nil
}

func unmarshalList(data []byte, dst *[]string) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return err
	}
	if len(*dst) == 0 {
		*dst = nil
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullTime возвращает nil для нулевого времени.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
