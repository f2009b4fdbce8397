package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shaiso/Deployer/internal/connector"
	"github.com/shaiso/Deployer/internal/container"
	"github.com/shaiso/Deployer/internal/diagnostics"
	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/pipeline"
	"github.com/shaiso/Deployer/internal/repo"
	"github.com/shaiso/Deployer/internal/telemetry"
)

type testServer struct {
	c   *container.Container
	h   *Handler
	mux *http.ServeMux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := telemetry.Discard()

	c := container.New(container.Config{Logger: logger})
	t.Cleanup(func() { _ = c.Shutdown(context.Background()) })

	activator := connector.NewActivator(connector.Config{}, logger)
	if err := activator.ActivateServices(c); err != nil {
		t.Fatalf("activate services: %v", err)
	}
	err := c.AddService("transactions.local", connector.LocalTransactions{}).
		Provides(connector.CapabilityTransactionIntegration).
		Install()
	if err != nil {
		t.Fatalf("install transactions: %v", err)
	}

	chain := pipeline.NewChain()
	if err := activator.ActivateProcessors(chain); err != nil {
		t.Fatalf("activate processors: %v", err)
	}

	store := repo.NewMemoryDeploymentRepo()
	p := chain.Build(pipeline.Config{
		Container: c,
		Recorders: []pipeline.Recorder{store},
		Logger:    logger,
	})

	h := NewHandler(Config{
		Pipeline:    p,
		Store:       store,
		Diagnostics: diagnostics.New(diagnostics.Config{Source: c, Logger: logger}),
		Logger:      logger,
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	return &testServer{c: c, h: h, mux: mux}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.c.Settle(ctx); err != nil {
		t.Fatalf("settle: %v", err)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type dataOf[T any] struct {
	Data T `json:"data"`
}

type listOf[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

type failureResponse struct {
	Error struct {
		Code    ErrorCode          `json:"code"`
		Details DeploymentResponse `json:"details"`
	} `json:"error"`
}

func mailArchive() connector.Archive {
	return connector.Archive{
		Name:    "mail.rar",
		Entries: map[string]string{"META-INF/ra.xml": "<connector/>"},
	}
}

func TestDeployments_Lifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/deployments", mailArchive())
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST status = %d, body = %s", rec.Code, rec.Body)
	}
	created := decode[dataOf[DeploymentResponse]](t, rec).Data
	if created.Status != domain.DeploymentStatusDeployed {
		t.Fatalf("status = %s", created.Status)
	}
	raService := connector.ResourceAdapterService("mail")
	if len(created.Services) != 1 || created.Services[0] != raService {
		t.Errorf("services = %v", created.Services)
	}

	// Повторный deploy того же архива
	if rec := s.do(t, http.MethodPost, "/api/v1/deployments", mailArchive()); rec.Code != http.StatusConflict {
		t.Errorf("duplicate POST status = %d", rec.Code)
	}

	s.settle(t)
	rec = s.do(t, http.MethodGet, "/api/v1/services?owner="+created.ID.String(), nil)
	owned := decode[listOf[ServiceResponse]](t, rec)
	if owned.Total != 1 || owned.Data[0].Name != raService || owned.Data[0].State != domain.ServiceStateUp {
		t.Errorf("owned services = %+v", owned)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/deployments/"+created.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", rec.Code)
	}

	rec = s.do(t, http.MethodDelete, "/api/v1/deployments/"+created.ID.String(), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, body = %s", rec.Code, rec.Body)
	}
	if rec := s.do(t, http.MethodDelete, "/api/v1/deployments/"+created.ID.String(), nil); rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE status = %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/deployments/"+created.ID.String(), nil)
	journal := decode[dataOf[DeploymentResponse]](t, rec).Data
	if journal.Status != domain.DeploymentStatusUndeployed {
		t.Errorf("journal status = %s, want UNDEPLOYED", journal.Status)
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/services/"+raService, nil); rec.Code != http.StatusNotFound {
		t.Errorf("removed service GET status = %d", rec.Code)
	}

	// После undeploy имя свободно
	if rec := s.do(t, http.MethodPost, "/api/v1/deployments", mailArchive()); rec.Code != http.StatusCreated {
		t.Errorf("redeploy status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestDeployments_ProcessorFailure(t *testing.T) {
	s := newTestServer(t)

	archive := connector.Archive{
		Name: "app.jar",
		Descriptor: &connector.Descriptor{
			ConnectionFactories: []connector.Definition{{Name: "java:app/cf"}},
		},
	}
	rec := s.do(t, http.MethodPost, "/api/v1/deployments", archive)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	resp := decode[failureResponse](t, rec)
	if resp.Error.Code != ErrCodeDeployFailed {
		t.Errorf("code = %s", resp.Error.Code)
	}
	if resp.Error.Details.FailedPhase != domain.PhasePostModule.String() {
		t.Errorf("failed phase = %q", resp.Error.Details.FailedPhase)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/deployments?status=failed", nil)
	failed := decode[listOf[DeploymentResponse]](t, rec)
	if failed.Total != 1 || failed.Data[0].Name != "app.jar" {
		t.Errorf("failed deployments = %+v", failed)
	}

	// Имя упавшего архива не занято
	archive.Descriptor.ConnectionFactories[0].ResourceAdapter = "mail"
	if rec := s.do(t, http.MethodPost, "/api/v1/deployments", archive); rec.Code != http.StatusCreated {
		t.Errorf("retry status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestDeployArchives(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	mail := mailArchive()
	broken := connector.Archive{
		Name: "app.jar",
		Descriptor: &connector.Descriptor{
			ConnectionFactories: []connector.Definition{{Name: "java:app/cf"}},
		},
	}
	if err := s.h.DeployArchives(ctx, []*connector.Archive{&mail, &broken}); err == nil {
		t.Fatal("expected error for broken archive")
	}

	// mail.rar активен, app.jar нет
	if rec := s.do(t, http.MethodPost, "/api/v1/deployments", mailArchive()); rec.Code != http.StatusConflict {
		t.Errorf("POST mail.rar status = %d", rec.Code)
	}
	broken.Descriptor.ConnectionFactories[0].ResourceAdapter = "mail"
	if rec := s.do(t, http.MethodPost, "/api/v1/deployments", broken); rec.Code != http.StatusCreated {
		t.Errorf("POST app.jar status = %d, body = %s", rec.Code, rec.Body)
	}

	s.h.UndeployAll(ctx)

	rec := s.do(t, http.MethodGet, "/api/v1/deployments?status=undeployed", nil)
	undeployed := decode[listOf[DeploymentResponse]](t, rec)
	if undeployed.Total != 2 {
		t.Errorf("undeployed = %+v", undeployed)
	}
}

func TestDeployArchives_DuplicateName(t *testing.T) {
	s := newTestServer(t)

	first, second := mailArchive(), mailArchive()
	jms := mailArchive()
	jms.Name = "jms.rar"
	err := s.h.DeployArchives(context.Background(), []*connector.Archive{&jms, &first, &second})
	if err == nil {
		t.Fatal("expected duplicate name error")
	}

	// Ничего не развёрнуто, имена свободны
	rec := s.do(t, http.MethodGet, "/api/v1/deployments", nil)
	if got := decode[listOf[DeploymentResponse]](t, rec); got.Total != 0 {
		t.Errorf("expected no deployments, got %+v", got)
	}
	for _, archive := range []connector.Archive{jms, mailArchive()} {
		if rec := s.do(t, http.MethodPost, "/api/v1/deployments", archive); rec.Code != http.StatusCreated {
			t.Errorf("POST %s status = %d, body = %s", archive.Name, rec.Code, rec.Body)
		}
	}
}

func TestDeployments_BadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing name", http.MethodPost, "/api/v1/deployments", connector.Archive{}, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/v1/deployments", "not an archive", http.StatusBadRequest},
		{"bad id", http.MethodGet, "/api/v1/deployments/xyz", nil, http.StatusBadRequest},
		{"unknown id", http.MethodGet, "/api/v1/deployments/00000000-0000-0000-0000-000000000001", nil, http.StatusNotFound},
		{"delete bad id", http.MethodDelete, "/api/v1/deployments/xyz", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := s.do(t, tt.method, tt.path, tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestServices(t *testing.T) {
	s := newTestServer(t)
	s.settle(t)

	rec := s.do(t, http.MethodGet, "/api/v1/services", nil)
	all := decode[listOf[ServiceResponse]](t, rec)
	if all.Total != 6 {
		t.Fatalf("expected 6 seed services, got %+v", all)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/services/"+connector.ServiceRaRepository, nil)
	svc := decode[dataOf[ServiceResponse]](t, rec).Data
	if svc.State != domain.ServiceStateUp || len(svc.Dependencies) != 2 {
		t.Errorf("ra repository = %+v", svc)
	}

	// Stop MDR останавливает и зависящие от него сервисы
	rec = s.do(t, http.MethodPost, "/api/v1/services/"+connector.ServiceMDR+"/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d, body = %s", rec.Code, rec.Body)
	}
	if state, _ := s.c.State(connector.ServiceRaRepository); state != domain.ServiceStateDown {
		t.Errorf("ra repository state after MDR stop = %s", state)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/services/"+connector.ServiceMDR+"/start", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d", rec.Code)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.c.AwaitState(ctx, connector.ServiceRaRepository, domain.ServiceStateUp); err != nil {
		t.Fatalf("ra repository did not come back: %v", err)
	}

	if rec := s.do(t, http.MethodPost, "/api/v1/services/"+connector.ServiceMDR+"/retry", nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("retry of UP service status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/v1/services/nope/stop", nil); rec.Code != http.StatusNotFound {
		t.Errorf("stop unknown status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/services/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("get unknown status = %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/capabilities", nil)
	caps := decode[listOf[map[string]string]](t, rec)
	if caps.Total != 1 || caps.Data[0]["capability"] != connector.CapabilityTransactionIntegration {
		t.Errorf("capabilities = %+v", caps)
	}
}

func TestDiagnostics(t *testing.T) {
	s := newTestServer(t)
	s.settle(t)

	rec := s.do(t, http.MethodGet, "/api/v1/diagnostics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	report := decode[dataOf[diagnostics.Report]](t, rec).Data
	if !report.Healthy() || report.Total != 6 {
		t.Errorf("report = %+v", report)
	}
}

func TestDiagnostics_Disabled(t *testing.T) {
	s := newTestServer(t)
	s.h.diagnostics = nil
	if rec := s.do(t, http.MethodGet, "/api/v1/diagnostics", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(telemetry.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}
