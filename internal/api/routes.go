package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		RequestID(h.logger),
		Logging(h.logger),
		Recovery(h.logger),
	)

	// Services
	mux.Handle("GET /api/v1/services", chain(http.HandlerFunc(h.ListServices)))
	mux.Handle("GET /api/v1/services/{name}", chain(http.HandlerFunc(h.GetService)))
	mux.Handle("POST /api/v1/services/{name}/start", chain(http.HandlerFunc(h.StartService)))
	mux.Handle("POST /api/v1/services/{name}/stop", chain(http.HandlerFunc(h.StopService)))
	mux.Handle("POST /api/v1/services/{name}/retry", chain(http.HandlerFunc(h.RetryService)))

	// Capabilities
	mux.Handle("GET /api/v1/capabilities", chain(http.HandlerFunc(h.ListCapabilities)))

	// Deployments
	mux.Handle("GET /api/v1/deployments", chain(http.HandlerFunc(h.ListDeployments)))
	mux.Handle("POST /api/v1/deployments", chain(http.HandlerFunc(h.CreateDeployment)))
	mux.Handle("GET /api/v1/deployments/{id}", chain(http.HandlerFunc(h.GetDeployment)))
	mux.Handle("DELETE /api/v1/deployments/{id}", chain(http.HandlerFunc(h.DeleteDeployment)))

	// Diagnostics
	mux.Handle("GET /api/v1/diagnostics", chain(http.HandlerFunc(h.GetDiagnostics)))
}
