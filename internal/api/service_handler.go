package api

import (
	"net/http"
)

// ListServices возвращает сервисы контейнера в порядке установки.
// GET /api/v1/services?state=...&owner=...
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	owner := r.URL.Query().Get("owner")

	result := make([]ServiceResponse, 0)
	for _, s := range h.container.Services() {
		if state != "" && string(s.State) != state {
			continue
		}
		if owner != "" && s.Owner != owner {
			continue
		}
		result = append(result, ServiceFromInfo(s))
	}

	List(w, result, len(result))
}

// GetService возвращает сервис по имени.
// GET /api/v1/services/{name}
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	for _, s := range h.container.Services() {
		if s.Name == name {
			Success(w, ServiceFromInfo(s))
			return
		}
	}
	NotFound(w, "service not found")
}

// StartService снова делает сервис желаемым после Stop.
// POST /api/v1/services/{name}/start
func (h *Handler) StartService(w http.ResponseWriter, r *http.Request) {
	if HandleContainerError(w, h.logger, h.container.Start(r.PathValue("name"))) {
		return
	}
	h.respondService(w, r.PathValue("name"), http.StatusAccepted)
}

// StopService останавливает сервис вместе с зависящими от него.
// POST /api/v1/services/{name}/stop
func (h *Handler) StopService(w http.ResponseWriter, r *http.Request) {
	if HandleContainerError(w, h.logger, h.container.Stop(r.Context(), r.PathValue("name"))) {
		return
	}
	h.respondService(w, r.PathValue("name"), http.StatusOK)
}

// RetryService повторяет запуск упавшего сервиса.
// POST /api/v1/services/{name}/retry
func (h *Handler) RetryService(w http.ResponseWriter, r *http.Request) {
	if HandleContainerError(w, h.logger, h.container.Retry(r.PathValue("name"))) {
		return
	}
	h.respondService(w, r.PathValue("name"), http.StatusAccepted)
}

func (h *Handler) respondService(w http.ResponseWriter, name string, status int) {
	for _, s := range h.container.Services() {
		if s.Name == name {
			JSON(w, status, DataResponse{Data: ServiceFromInfo(s)})
			return
		}
	}
	NotFound(w, "service not found")
}

// ListCapabilities возвращает привязки capabilities.
// GET /api/v1/capabilities
func (h *Handler) ListCapabilities(w http.ResponseWriter, r *http.Request) {
	bindings := h.container.Registry().Bindings()
	List(w, bindings, len(bindings))
}

// GetDiagnostics возвращает последний отчёт диагностики.
// GET /api/v1/diagnostics?refresh=true строит отчёт заново.
func (h *Handler) GetDiagnostics(w http.ResponseWriter, r *http.Request) {
	if h.diagnostics == nil {
		Unavailable(w, "diagnostics disabled")
		return
	}

	report, ok := h.diagnostics.Last()
	if !ok || r.URL.Query().Get("refresh") == "true" {
		report = h.diagnostics.Tick(r.Context())
	}
	Success(w, report)
}
