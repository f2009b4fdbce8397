package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/Deployer/internal/connector"
	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/pipeline"
	"github.com/shaiso/Deployer/internal/repo"
)

const defaultListLimit = 50

// CreateDeployment проводит архив через pipeline.
// POST /api/v1/deployments
//
// Тело — connector.Archive. 201 при успехе, 422 с итогом deployment
// в details, если упал processor, 409 если архив с тем же именем уже развёрнут.
func (h *Handler) CreateDeployment(w http.ResponseWriter, r *http.Request) {
	var archive connector.Archive
	if err := json.NewDecoder(r.Body).Decode(&archive); err != nil {
		BadRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(archive.Name) == "" {
		BadRequest(w, "archive name is required")
		return
	}

	unit := pipeline.NewUnit(archive.Name, &archive)

	if !h.active.reserve(archive.Name, unit.ID) {
		Conflict(w, "deployment "+archive.Name+" already exists")
		return
	}

	res, err := h.pipeline.Run(r.Context(), unit)
	if err != nil {
		h.active.release(archive.Name, unit.ID)

		var perr *pipeline.ProcessingError
		if errors.As(err, &perr) {
			JSON(w, http.StatusUnprocessableEntity, ErrorResponse{
				Error: ErrorDetail{
					Code:    ErrCodeDeployFailed,
					Message: perr.Error(),
					Details: DeploymentFromDomain(*res.Deployment),
				},
			})
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	h.active.commit(res)
	Created(w, DeploymentFromDomain(*res.Deployment))
}

// ListDeployments возвращает журнал deployments.
// GET /api/v1/deployments?status=...&name=...&limit=...&offset=...
func (h *Handler) ListDeployments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.DeploymentFilter{
		Status: domain.DeploymentStatus(strings.ToUpper(q.Get("status"))),
		Name:   q.Get("name"),
		Limit:  parseInt(q.Get("limit"), defaultListLimit),
		Offset: parseInt(q.Get("offset"), 0),
	}

	deployments, err := h.store.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]DeploymentResponse, len(deployments))
	for i, d := range deployments {
		result[i] = DeploymentFromDomain(d)
	}

	List(w, result, len(result))
}

// GetDeployment возвращает deployment по ID.
// GET /api/v1/deployments/{id}
func (h *Handler) GetDeployment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid deployment id")
		return
	}

	d, err := h.store.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "deployment not found") {
		return
	}

	Success(w, DeploymentFromDomain(*d))
}

// DeleteDeployment снимает развёрнутый unit.
// DELETE /api/v1/deployments/{id}
func (h *Handler) DeleteDeployment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid deployment id")
		return
	}

	res, ok := h.active.get(id)
	if !ok {
		NotFound(w, "deployment not active")
		return
	}

	err = h.pipeline.Undeploy(r.Context(), res)
	h.active.release(res.Unit.Name, id)
	if errors.Is(err, pipeline.ErrNotDeployed) {
		InvalidState(w, err.Error())
		return
	}
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	NoContent(w)
}

// DeployArchives разворачивает архивы при старте сервера.
// Успешные units становятся активными, как развёрнутые через POST.
func (h *Handler) DeployArchives(ctx context.Context, archives []*connector.Archive) error {
	units := make([]*pipeline.Unit, 0, len(archives))
	for _, a := range archives {
		u := pipeline.NewUnit(a.Name, a)
		if !h.active.reserve(a.Name, u.ID) {
			for _, reserved := range units {
				h.active.release(reserved.Name, reserved.ID)
			}
			return fmt.Errorf("deployment %s: duplicate archive name", a.Name)
		}
		units = append(units, u)
	}

	results, err := h.pipeline.DeployAll(ctx, units)
	for i, res := range results {
		if res != nil && res.Deployment.Status == domain.DeploymentStatusDeployed {
			h.active.commit(res)
			continue
		}
		h.active.release(units[i].Name, units[i].ID)
	}
	return err
}

// UndeployAll снимает все развёрнутые через API units (при остановке сервера).
func (h *Handler) UndeployAll(ctx context.Context) {
	for _, res := range h.active.all() {
		if err := h.pipeline.Undeploy(ctx, res); err != nil {
			h.logger.Warn("undeploy failed", "unit", res.Unit.Name, "error", err)
		}
		h.active.release(res.Unit.Name, res.Unit.ID)
	}
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
