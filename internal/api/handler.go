package api

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Deployer/internal/container"
	"github.com/shaiso/Deployer/internal/diagnostics"
	"github.com/shaiso/Deployer/internal/pipeline"
	"github.com/shaiso/Deployer/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	container   *container.Container
	pipeline    *pipeline.Pipeline
	store       repo.DeploymentStore
	diagnostics *diagnostics.Reporter
	logger      *slog.Logger

	active *activeDeployments
}

// Config — конфигурация для создания Handler.
type Config struct {
	// Pipeline — pipeline развёртывания; его контейнер обслуживает /services.
	Pipeline *pipeline.Pipeline

	// Store — журнал deployments (если nil — журнал в памяти).
	Store repo.DeploymentStore

	// Diagnostics — отчёт диагностики (опционально).
	Diagnostics *diagnostics.Reporter

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := cfg.Store
	if store == nil {
		store = repo.NewMemoryDeploymentRepo()
	}
	return &Handler{
		container:   cfg.Pipeline.Container(),
		pipeline:    cfg.Pipeline,
		store:       store,
		diagnostics: cfg.Diagnostics,
		logger:      logger,
		active:      newActiveDeployments(),
	}
}

// activeDeployments — развёрнутые units, которые можно снять через API.
// Имя резервируется до начала Run, чтобы один архив не разворачивался дважды.
type activeDeployments struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*pipeline.Result
	byName map[string]uuid.UUID
}

func newActiveDeployments() *activeDeployments {
	return &activeDeployments{
		byID:   make(map[uuid.UUID]*pipeline.Result),
		byName: make(map[string]uuid.UUID),
	}
}

// reserve занимает имя. false — имя уже занято.
func (a *activeDeployments) reserve(name string, id uuid.UUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, taken := a.byName[name]; taken {
		return false
	}
	a.byName[name] = id
	return true
}

// commit сохраняет результат успешного Run.
func (a *activeDeployments) commit(res *pipeline.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byID[res.Unit.ID] = res
}

// release освобождает имя и забывает результат.
func (a *activeDeployments) release(name string, id uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.byName[name] == id {
		delete(a.byName, name)
	}
	delete(a.byID, id)
}

func (a *activeDeployments) get(id uuid.UUID) (*pipeline.Result, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res, ok := a.byID[id]
	return res, ok
}

func (a *activeDeployments) all() []*pipeline.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*pipeline.Result, 0, len(a.byID))
	for _, res := range a.byID {
		out = append(out, res)
	}
	return out
}
