package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ServiceResponse — сервис контейнера из API.
type ServiceResponse struct {
	Name         string   `json:"name"`
	State        string   `json:"state"`
	Owner        string   `json:"owner,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Unresolved   []string `json:"unresolved,omitempty"`
	Provides     []string `json:"provides,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// DeploymentResponse — итог deployment из API.
type DeploymentResponse struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Status          string   `json:"status"`
	Services        []string `json:"services,omitempty"`
	FailedPhase     string   `json:"failed_phase,omitempty"`
	FailedProcessor string   `json:"failed_processor,omitempty"`
	Error           string   `json:"error,omitempty"`
	RolledBack      []string `json:"rolled_back,omitempty"`
	StartedAt       string   `json:"started_at"`
	FinishedAt      string   `json:"finished_at,omitempty"`
	DurationMs      int64    `json:"duration_ms"`
}

// CapabilityResponse — привязка capability из API.
type CapabilityResponse struct {
	Capability string `json:"capability"`
	Service    string `json:"service"`
}

// ProblemResponse — проблемный сервис в отчёте диагностики.
type ProblemResponse struct {
	Service    string   `json:"service"`
	Kind       string   `json:"kind"`
	State      string   `json:"state"`
	Owner      string   `json:"owner,omitempty"`
	Unresolved []string `json:"unresolved,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// ReportResponse — отчёт диагностики из API.
type ReportResponse struct {
	At       string            `json:"at"`
	Total    int               `json:"total"`
	Up       int               `json:"up"`
	Problems []ProblemResponse `json:"problems,omitempty"`
}

// ListServicesOpts — параметры фильтрации сервисов.
type ListServicesOpts struct {
	State string
	Owner string
}

// ListDeploymentsOpts — параметры фильтрации deployments.
type ListDeploymentsOpts struct {
	Status string
	Name   string
	Limit  int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details,omitempty"`
	} `json:"error"`
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details json.RawMessage
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FailedDeployment возвращает итог упавшего deployment из Details.
func (e *APIError) FailedDeployment() (*DeploymentResponse, bool) {
	if e.Code != "DEPLOYMENT_FAILED" || len(e.Details) == 0 {
		return nil, false
	}
	var d DeploymentResponse
	if err := json.Unmarshal(e.Details, &d); err != nil {
		return nil, false
	}
	return &d, true
}

// --- Client ---

// Client — HTTP-клиент для Deployer API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Services ---

// ListServices возвращает сервисы контейнера.
func (c *Client) ListServices(opts ListServicesOpts) ([]ServiceResponse, error) {
	params := url.Values{}
	if opts.State != "" {
		params.Set("state", opts.State)
	}
	if opts.Owner != "" {
		params.Set("owner", opts.Owner)
	}

	var services []ServiceResponse
	err := c.list("/api/v1/services", params, &services)
	return services, err
}

// GetService возвращает сервис по имени.
func (c *Client) GetService(name string) (*ServiceResponse, error) {
	var svc ServiceResponse
	err := c.get("/api/v1/services/"+url.PathEscape(name), &svc)
	return &svc, err
}

// StartService снимает запрет на запуск сервиса.
func (c *Client) StartService(name string) (*ServiceResponse, error) {
	return c.serviceAction(name, "start")
}

// StopService останавливает сервис и зависящие от него.
func (c *Client) StopService(name string) (*ServiceResponse, error) {
	return c.serviceAction(name, "stop")
}

// RetryService повторяет запуск упавшего сервиса.
func (c *Client) RetryService(name string) (*ServiceResponse, error) {
	return c.serviceAction(name, "retry")
}

func (c *Client) serviceAction(name, action string) (*ServiceResponse, error) {
	var svc ServiceResponse
	err := c.post("/api/v1/services/"+url.PathEscape(name)+"/"+action, nil, &svc)
	return &svc, err
}

// ListCapabilities возвращает привязки capabilities.
func (c *Client) ListCapabilities() ([]CapabilityResponse, error) {
	var caps []CapabilityResponse
	err := c.list("/api/v1/capabilities", nil, &caps)
	return caps, err
}

// --- Deployments ---

// Deploy отправляет архив на развёртывание.
func (c *Client) Deploy(archive json.RawMessage) (*DeploymentResponse, error) {
	var d DeploymentResponse
	err := c.post("/api/v1/deployments", archive, &d)
	return &d, err
}

// ListDeployments возвращает журнал deployments.
func (c *Client) ListDeployments(opts ListDeploymentsOpts) ([]DeploymentResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Name != "" {
		params.Set("name", opts.Name)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var deployments []DeploymentResponse
	err := c.list("/api/v1/deployments", params, &deployments)
	return deployments, err
}

// GetDeployment возвращает deployment по ID.
func (c *Client) GetDeployment(id string) (*DeploymentResponse, error) {
	var d DeploymentResponse
	err := c.get("/api/v1/deployments/"+id, &d)
	return &d, err
}

// Undeploy снимает развёрнутый unit.
func (c *Client) Undeploy(id string) error {
	return c.delete("/api/v1/deployments/" + id)
}

// --- Diagnostics ---

// Diagnostics возвращает отчёт диагностики.
func (c *Client) Diagnostics(refresh bool) (*ReportResponse, error) {
	path := "/api/v1/diagnostics"
	if refresh {
		path += "?refresh=true"
	}
	var report ReportResponse
	err := c.get(path, &report)
	return &report, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
		apiErr.Details = er.Error.Details
	}
	return apiErr
}
