package container

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/shaiso/Deployer/internal/capability"
	"github.com/shaiso/Deployer/internal/domain"
	"github.com/shaiso/Deployer/internal/graph"
	"github.com/shaiso/Deployer/internal/telemetry"
)

// Default configuration values.
const (
	defaultWorkers = 8
)

// Observer получает события смены состояния сервисов.
//
// События доставляются по порядку на отдельной горутине,
// никогда под блокировкой контейнера.
type Observer interface {
	ServiceStateChanged(ctx context.Context, ev domain.ServiceEvent)
}

// ObserverFunc — адаптер функции к Observer.
type ObserverFunc func(ctx context.Context, ev domain.ServiceEvent)

// ServiceStateChanged реализует Observer.
func (f ObserverFunc) ServiceStateChanged(ctx context.Context, ev domain.ServiceEvent) {
	f(ctx, ev)
}

// Config — конфигурация Container.
type Config struct {
	// Registry — реестр capabilities (если nil — создаётся пустой).
	Registry *capability.Registry

	// Workers — максимум одновременно выполняемых start hooks (default: 8).
	Workers int

	// Observers — получатели событий жизненного цикла.
	Observers []Observer

	// Metrics — Prometheus метрики (опционально).
	Metrics *telemetry.Metrics

	// Logger
	Logger *slog.Logger
}

// node — сервис в контейнере.
type node struct {
	name     string
	instance any
	deps     []*dependency
	provides []string
	owner    string
	seq      uint64

	state  domain.ServiceState
	wanted bool  // false после Stop: resolver не запускает сервис
	holds  int   // >0, пока идёт остановка, затрагивающая сервис
	err    error // последняя ошибка запуска
}

// Container — контейнер сервисов.
//
// Container владеет графом зависимостей и проводит каждый сервис через
// жизненный цикл DOWN → STARTING → UP → STOPPING → DOWN:
//   - после каждой мутации графа запускает сервисы, все зависимости которых UP
//   - независимые сервисы стартуют параллельно на пуле воркеров
//   - перед остановкой сервиса останавливает всех его зависимых
//
// Все мутации сериализуются одной блокировкой.
type Container struct {
	mu    sync.Mutex
	cond  *sync.Cond
	graph *graph.Graph
	nodes map[string]*node

	registry *capability.Registry
	sem      *semaphore.Weighted
	workers  int

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight int
	closed   bool
	closeErr error
	nextSeq  uint64

	// unbinding — capabilities, привязка которых снимается прямо сейчас.
	// Через них зависимости не разрешаются.
	unbinding map[string]int

	// Events
	observers  []Observer
	evMu       sync.Mutex
	evCond     *sync.Cond
	evQueue    []domain.ServiceEvent
	evClosed   bool
	eventsDone chan struct{}

	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// New создаёт новый Container.
func New(cfg Config) *Container {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	registry := cfg.Registry
	if registry == nil {
		registry = capability.NewRegistry()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Container{
		graph:     graph.New(),
		nodes:     make(map[string]*node),
		unbinding: make(map[string]int),
		registry:  registry,
		sem:       semaphore.NewWeighted(int64(workers)),
		workers:   workers,
		ctx:       ctx,
		cancel:    cancel,
		observers: cfg.Observers,
		logger:    logger,
		metrics:   cfg.Metrics,
	}
	c.cond = sync.NewCond(&c.mu)

	c.evCond = sync.NewCond(&c.evMu)
	c.eventsDone = make(chan struct{})
	if len(c.observers) > 0 {
		go c.dispatchEvents()
	} else {
		c.evClosed = true
		close(c.eventsDone)
	}

	return c
}

// Registry возвращает реестр capabilities контейнера.
func (c *Container) Registry() *capability.Registry {
	return c.registry
}

// AddService начинает описание сервиса. Реализует ServiceTarget.
func (c *Container) AddService(name string, instance any) *ServiceBuilder {
	return &ServiceBuilder{c: c, name: name, instance: instance}
}

// Track возвращает ServiceTarget, запоминающий установленные через него сервисы.
// owner — идентификатор владельца (обычно ID deployment unit).
func (c *Container) Track(owner string) *TrackedTarget {
	return &TrackedTarget{c: c, owner: owner}
}

// --- Установка ---

// plannedEdge — ребро, которое будет добавлено при разрешении зависимости.
type plannedEdge struct {
	dep  *dependency
	from string
	to   string
}

// install выполняет валидацию и атомарную регистрацию сервиса.
func (c *Container) install(b *ServiceBuilder) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrContainerClosed
	}
	if strings.TrimSpace(b.name) == "" {
		return fmt.Errorf("%w: empty service name", ErrInvalidService)
	}
	if _, exists := c.nodes[b.name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateService, b.name)
	}
	for _, capName := range b.provides {
		if err := c.registry.CanBind(capName, b.name); err != nil {
			return fmt.Errorf("install %s: %w", b.name, err)
		}
	}

	if err := c.graph.AddNode(b.name); err != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateService, b.name)
	}

	c.nextSeq++
	n := &node{
		name:     b.name,
		instance: b.instance,
		deps:     b.deps,
		owner:    b.owner,
		seq:      c.nextSeq,
		state:    domain.ServiceStateDown,
		wanted:   true,
	}

	// Собственные зависимости + ожидающие зависимости других сервисов,
	// которые разрешаются в новый сервис
	planned := make([]plannedEdge, 0, len(n.deps))
	for _, dep := range n.deps {
		if to := c.resolveTargetLocked(dep.target, n.name, b.provides); to != "" {
			planned = append(planned, plannedEdge{dep: dep, from: n.name, to: to})
		}
	}
	planned = append(planned, c.pendingEdgesLocked(n.name, b.provides)...)

	if err := c.applyEdgesLocked(planned); err != nil {
		c.graph.RemoveNode(n.name)
		return fmt.Errorf("install %s: %w", n.name, err)
	}

	bound := make([]string, 0, len(b.provides))
	for _, capName := range b.provides {
		if err := c.registry.Bind(capName, n.name); err != nil {
			for _, done := range bound {
				c.registry.Unbind(done)
			}
			for _, e := range planned {
				e.dep.resolved = ""
			}
			c.graph.RemoveNode(n.name)
			return fmt.Errorf("install %s: %w", n.name, err)
		}
		bound = append(bound, capName)
	}
	n.provides = bound

	c.nodes[n.name] = n
	c.metrics.ServiceTransition("", string(n.state))
	c.emitLocked(n, "", n.state)

	c.logger.Debug("service installed",
		"service", n.name,
		"owner", n.owner,
		"dependencies", len(n.deps),
		"provides", n.provides,
	)

	c.scheduleLocked()
	return nil
}

// resolveTargetLocked разрешает цель в имя установленного сервиса.
// self и selfProvides описывают сервис, который устанавливается прямо сейчас.
func (c *Container) resolveTargetLocked(t Target, self string, selfProvides []string) string {
	if !t.Capability {
		if t.Name == self {
			return self
		}
		if _, ok := c.nodes[t.Name]; ok {
			return t.Name
		}
		return ""
	}
	if c.unbinding[t.Name] > 0 {
		return ""
	}

	for _, capName := range selfProvides {
		if capName == t.Name {
			return self
		}
	}
	provider, err := c.registry.Lookup(t.Name)
	if err != nil {
		return ""
	}
	if provider == self {
		return self
	}
	if _, ok := c.nodes[provider]; ok {
		return provider
	}
	return ""
}

// pendingEdgesLocked находит неразрешённые зависимости установленных
// сервисов, которые теперь разрешаются.
func (c *Container) pendingEdgesLocked(self string, selfProvides []string) []plannedEdge {
	planned := make([]plannedEdge, 0)
	for _, n := range c.sortedNodesLocked() {
		for _, dep := range n.deps {
			if dep.resolved != "" {
				continue
			}
			if to := c.resolveTargetLocked(dep.target, self, selfProvides); to != "" {
				planned = append(planned, plannedEdge{dep: dep, from: n.name, to: to})
			}
		}
	}
	return planned
}

// applyEdgesLocked добавляет рёбра в граф все или ни одного.
func (c *Container) applyEdgesLocked(planned []plannedEdge) error {
	added := make([]plannedEdge, 0, len(planned))
	for _, e := range planned {
		existed := c.graph.HasEdge(e.from, e.to)
		if err := c.graph.AddEdge(e.from, e.to); err != nil {
			for _, a := range added {
				c.graph.RemoveEdge(a.from, a.to)
			}
			return err
		}
		if !existed {
			added = append(added, e)
		}
	}
	for _, e := range planned {
		e.dep.resolved = e.to
	}
	return nil
}

// unresolveLocked сбрасывает разрешение зависимости и убирает ребро,
// если на цель больше не ссылается ни одна зависимость сервиса.
func (c *Container) unresolveLocked(n *node, dep *dependency) {
	to := dep.resolved
	dep.resolved = ""
	for _, other := range n.deps {
		if other.resolved == to {
			return
		}
	}
	c.graph.RemoveEdge(n.name, to)
}

// --- Capabilities ---

// BindCapability привязывает capability к установленному сервису и
// разрешает ожидающие её зависимости.
//
// Если разрешение замкнуло бы цикл, привязка отменяется и возвращается ошибка.
func (c *Container) BindCapability(capabilityName, service string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrContainerClosed
	}
	n, ok := c.nodes[service]
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, service)
	}
	if c.unbinding[capabilityName] > 0 {
		return fmt.Errorf("%w: capability %s is being unbound", ErrInvalidState, capabilityName)
	}
	if err := c.registry.CanBind(capabilityName, service); err != nil {
		return err
	}

	alreadyBound := false
	for _, p := range n.provides {
		if p == capabilityName {
			alreadyBound = true
		}
	}
	if err := c.registry.Bind(capabilityName, service); err != nil {
		return err
	}

	if err := c.applyEdgesLocked(c.pendingEdgesLocked("", nil)); err != nil {
		if !alreadyBound {
			c.registry.Unbind(capabilityName)
		}
		return fmt.Errorf("bind %s to %s: %w", capabilityName, service, err)
	}
	if !alreadyBound {
		n.provides = append(n.provides, capabilityName)
	}

	c.logger.Info("capability bound", "capability", capabilityName, "service", service)
	c.scheduleLocked()
	return nil
}

// UnbindCapability снимает привязку capability. Сервисы, зависящие от неё,
// предварительно останавливаются (вместе со своими зависимыми) и остаются
// DOWN, пока capability не будет привязана снова.
func (c *Container) UnbindCapability(ctx context.Context, capabilityName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	provider, err := c.registry.Lookup(capabilityName)
	if err != nil {
		return err
	}

	closure := make(map[string]bool)
	for _, n := range c.sortedNodesLocked() {
		for _, dep := range n.deps {
			if !c.boundThroughLocked(dep, capabilityName, provider) {
				continue
			}
			order, err := c.graph.StopOrder(n.name)
			if err != nil {
				return err
			}
			for _, name := range order {
				closure[name] = true
			}
		}
	}

	order, err := c.filteredStopOrderLocked(closure)
	if err != nil {
		return err
	}

	// Пока идут stop hooks, новые зависимости на capability остаются ожидающими
	c.unbinding[capabilityName]++
	defer func() {
		if c.unbinding[capabilityName]--; c.unbinding[capabilityName] <= 0 {
			delete(c.unbinding, capabilityName)
		}
	}()

	return c.stopNodesLocked(ctx, order, func() {
		c.registry.Unbind(capabilityName)
		if p, ok := c.nodes[provider]; ok {
			p.provides = removeString(p.provides, capabilityName)
		}
		for _, n := range c.sortedNodesLocked() {
			for _, dep := range n.deps {
				if c.boundThroughLocked(dep, capabilityName, provider) {
					c.unresolveLocked(n, dep)
				}
			}
		}
		c.logger.Info("capability unbound", "capability", capabilityName, "service", provider)
	})
}

// boundThroughLocked проверяет, что зависимость разрешена в provider через capability.
func (c *Container) boundThroughLocked(dep *dependency, capabilityName, provider string) bool {
	return dep.target.Capability && dep.target.Name == capabilityName && dep.resolved == provider
}

// --- Планирование запуска ---

// scheduleLocked переводит в STARTING все сервисы, готовые к запуску.
//
// Сервис готов, если:
//   - он DOWN и не остановлен явно (wanted)
//   - все его зависимости разрешены и находятся в UP
//   - ни он, ни его зависимости не затронуты идущей остановкой
func (c *Container) scheduleLocked() {
	if c.closed {
		return
	}

	// Привязки, сделанные напрямую в реестре, подхватываются здесь
	for _, e := range c.pendingEdgesLocked("", nil) {
		if err := c.applyEdgesLocked([]plannedEdge{e}); err != nil {
			c.logger.Debug("dependency left unresolved", "service", e.from, "target", e.dep.target.String(), "error", err)
		}
	}

	for _, n := range c.sortedNodesLocked() {
		if !c.readyLocked(n) {
			continue
		}
		c.setStateLocked(n, domain.ServiceStateStarting)
		c.inflight++
		c.wg.Add(1)
		go c.startNode(n)
	}
}

// readyLocked проверяет готовность сервиса к запуску.
func (c *Container) readyLocked(n *node) bool {
	if n.state != domain.ServiceStateDown || !n.wanted || n.holds > 0 {
		return false
	}
	for _, dep := range n.deps {
		if dep.resolved == "" {
			return false
		}
		target, ok := c.nodes[dep.resolved]
		if !ok || target.state != domain.ServiceStateUp || target.holds > 0 {
			return false
		}
	}
	return true
}

// startNode выполняет запуск сервиса на воркере.
func (c *Container) startNode(n *node) {
	defer c.wg.Done()

	if err := c.sem.Acquire(c.ctx, 1); err != nil {
		// Контейнер останавливается — сервис так и не стартовал
		c.mu.Lock()
		c.inflight--
		c.setStateLocked(n, domain.ServiceStateDown)
		c.mu.Unlock()
		return
	}
	defer c.sem.Release(1)

	c.mu.Lock()
	type injection struct {
		slot  Injector
		value any
	}
	injections := make([]injection, 0, len(n.deps))
	for _, dep := range n.deps {
		if dep.slot == nil {
			continue
		}
		injections = append(injections, injection{slot: dep.slot, value: c.nodes[dep.resolved].instance})
	}
	c.mu.Unlock()

	started := time.Now()
	var err error
	for _, inj := range injections {
		if err = inj.slot.Inject(inj.value); err != nil {
			break
		}
	}
	if err == nil {
		err = callStart(c.ctx, n.instance)
	}
	c.metrics.ServiceStarted(time.Since(started), err)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		c.inflight--
		c.cond.Broadcast()
	}()

	if err != nil {
		clearSlots(n)
		startErr := &StartError{Service: n.name, Err: err, Blocked: c.blockedLocked(n)}
		n.err = startErr
		c.setStateLocked(n, domain.ServiceStateFailed)
		c.logger.Error("service start failed",
			"service", n.name,
			"error", err,
			"blocked", startErr.Blocked,
		)
	} else {
		n.err = nil
		c.setStateLocked(n, domain.ServiceStateUp)
		c.logger.Info("service started",
			"service", n.name,
			"duration", time.Since(started),
		)
		// Shutdown не дождался запуска: сервис останавливается сразу
		if c.closed && c.ctx.Err() != nil {
			c.stopOneLocked(context.Background(), n)
		}
	}

	c.scheduleLocked()
}

// blockedLocked возвращает транзитивных зависимых сервиса.
func (c *Container) blockedLocked(n *node) []string {
	order, err := c.graph.StopOrder(n.name)
	if err != nil {
		return nil
	}
	return order[:len(order)-1]
}

// --- Остановка ---

// Stop останавливает сервис и всех его транзитивных зависимых
// (зависимые — раньше). Сервис остаётся DOWN до вызова Start;
// зависимые поднимутся вместе с ним.
func (c *Container) Stop(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	n.wanted = false

	order, err := c.graph.StopOrder(name)
	if err != nil {
		return err
	}
	return c.stopNodesLocked(ctx, order, nil)
}

// Start снимает запрет на запуск, установленный Stop.
func (c *Container) Start(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	n.wanted = true
	c.scheduleLocked()
	return nil
}

// Retry возвращает FAILED сервис в DOWN для повторного запуска.
func (c *Container) Retry(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	if n.state != domain.ServiceStateFailed {
		return fmt.Errorf("%w: %s is %s", ErrInvalidState, name, n.state)
	}
	n.err = nil
	c.setStateLocked(n, domain.ServiceStateDown)
	c.scheduleLocked()
	return nil
}

// Remove останавливает сервис вместе с зависимыми и удаляет его из контейнера.
// Capabilities сервиса отвязываются; зависимости на него снова ожидают цель.
func (c *Container) Remove(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	n.wanted = false

	order, err := c.graph.StopOrder(name)
	if err != nil {
		return err
	}

	return c.stopNodesLocked(ctx, order, func() {
		c.removeLocked(n)
	})
}

// removeLocked удаляет остановленный (DOWN или FAILED) сервис.
func (c *Container) removeLocked(n *node) {
	if _, ok := c.nodes[n.name]; !ok {
		return
	}

	c.graph.RemoveNode(n.name)
	c.registry.UnbindService(n.name)
	for _, other := range c.nodes {
		for _, dep := range other.deps {
			if dep.resolved == n.name {
				dep.resolved = ""
			}
		}
	}
	delete(c.nodes, n.name)

	c.metrics.ServiceTransition(string(n.state), "")
	c.logger.Info("service removed", "service", n.name, "owner", n.owner)
}

// stopNodesLocked останавливает сервисы в заданном порядке.
//
// Вызывается под блокировкой; блокировка отпускается на время stop hooks.
// Пока идёт остановка, затронутые сервисы не запускаются. then выполняется
// под блокировкой после остановки всех сервисов.
func (c *Container) stopNodesLocked(ctx context.Context, order []string, then func()) error {
	held := make([]*node, 0, len(order))
	for _, name := range order {
		if n, ok := c.nodes[name]; ok {
			n.holds++
			held = append(held, n)
		}
	}
	defer func() {
		for _, n := range held {
			n.holds--
		}
		c.scheduleLocked()
	}()

	for _, n := range held {
		if err := c.waitLocked(ctx, func() bool { return !n.state.IsTransitional() }); err != nil {
			return err
		}
		if n.state != domain.ServiceStateUp {
			continue
		}
		c.stopOneLocked(ctx, n)
	}

	if then != nil {
		then()
	}
	return nil
}

// stopOneLocked проводит сервис UP → STOPPING → DOWN.
func (c *Container) stopOneLocked(ctx context.Context, n *node) {
	c.setStateLocked(n, domain.ServiceStateStopping)
	clearSlots(n)

	c.mu.Unlock()
	err := callStop(ctx, n.instance)
	c.mu.Lock()

	if err != nil {
		c.logger.Warn("service stop hook failed", "service", n.name, "error", err)
	}
	c.setStateLocked(n, domain.ServiceStateDown)
	c.logger.Info("service stopped", "service", n.name)
}

// filteredStopOrderLocked возвращает сервисы из set в порядке остановки.
func (c *Container) filteredStopOrderLocked(set map[string]bool) ([]string, error) {
	all, err := c.graph.ReverseOrder()
	if err != nil {
		return nil, err
	}
	order := make([]string, 0, len(set))
	for _, name := range all {
		if set[name] {
			order = append(order, name)
		}
	}
	return order, nil
}

// Shutdown останавливает все сервисы (зависимые — раньше) и закрывает контейнер.
// После Shutdown установка сервисов возвращает ErrContainerClosed.
//
// Если ctx истёк раньше, чем завершились начатые запуски, их ctx отменяется,
// а Shutdown возвращает ошибку ctx. Запуски, всё же завершившиеся успешно,
// сразу останавливаются. Повторный вызов возвращает ту же ошибку.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return err
	}
	c.closed = true

	c.logger.Info("stopping container...", "services", len(c.nodes))

	// Ждём завершения уже начатых запусков
	if err := c.waitLocked(ctx, func() bool { return c.inflight == 0 }); err != nil {
		c.closeErr = fmt.Errorf("shutdown: %d starts in progress: %w", c.inflight, err)
		c.mu.Unlock()

		c.cancel()
		c.closeEvents()
		c.logger.Warn("container shutdown incomplete", "error", err)
		return c.closeErr
	}

	order, err := c.graph.ReverseOrder()
	if err == nil {
		err = c.stopNodesLocked(ctx, order, nil)
	}
	c.closeErr = err
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.closeEvents()

	c.logger.Info("container stopped")
	return err
}

// closeEvents закрывает очередь событий и ждёт доставки оставшихся.
func (c *Container) closeEvents() {
	c.evMu.Lock()
	c.evClosed = true
	c.evCond.Broadcast()
	c.evMu.Unlock()
	<-c.eventsDone
}

// --- Запросы ---

// ServiceInfo — снимок состояния сервиса.
type ServiceInfo struct {
	Name         string              `json:"name"`
	State        domain.ServiceState `json:"state"`
	Owner        string              `json:"owner,omitempty"`
	Dependencies []string            `json:"dependencies,omitempty"`
	Unresolved   []string            `json:"unresolved,omitempty"`
	Provides     []string            `json:"provides,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// State возвращает текущее состояние сервиса.
func (c *Container) State(name string) (domain.ServiceState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return n.state, nil
}

// Instance возвращает экземпляр сервиса.
func (c *Container) Instance(name string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return n.instance, nil
}

// Err возвращает последнюю ошибку запуска сервиса (*StartError) или nil.
func (c *Container) Err(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.nodes[name]; ok {
		return n.err
	}
	return nil
}

// Unresolved возвращает *NotFoundError, если у сервиса есть зависимости,
// цели которых пока не установлены.
func (c *Container) Unresolved(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	missing := unresolvedTargets(n)
	if len(missing) == 0 {
		return nil
	}
	return &NotFoundError{Service: name, Missing: missing}
}

// Services возвращает снимок всех сервисов в порядке установки.
func (c *Container) Services() []ServiceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := make([]ServiceInfo, 0, len(c.nodes))
	for _, n := range c.sortedNodesLocked() {
		info := ServiceInfo{
			Name:         n.name,
			State:        n.state,
			Owner:        n.owner,
			Dependencies: c.graph.Dependencies(n.name),
			Unresolved:   unresolvedTargets(n),
			Provides:     append([]string(nil), n.provides...),
		}
		if n.err != nil {
			info.Error = n.err.Error()
		}
		list = append(list, info)
	}
	return list
}

func unresolvedTargets(n *node) []string {
	var missing []string
	for _, dep := range n.deps {
		if dep.resolved == "" {
			missing = append(missing, dep.target.String())
		}
	}
	return missing
}

// --- Ожидание ---

// waitLocked ждёт выполнения условия под блокировкой или отмены ctx.
func (c *Container) waitLocked(ctx context.Context, done func() bool) error {
	if done() {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	for !done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.cond.Wait()
	}
	return nil
}

// AwaitState ждёт, пока сервис перейдёт в одно из состояний.
func (c *Container) AwaitState(ctx context.Context, name string, states ...domain.ServiceState) (domain.ServiceState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var current domain.ServiceState
	err := c.waitLocked(ctx, func() bool {
		n, ok := c.nodes[name]
		if !ok {
			return true
		}
		current = n.state
		for _, s := range states {
			if n.state == s {
				return true
			}
		}
		return false
	})
	if err != nil {
		return current, err
	}
	if _, ok := c.nodes[name]; !ok {
		return "", fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return current, nil
}

// Settle ждёт, пока не останется запусков в процессе.
func (c *Container) Settle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waitLocked(ctx, func() bool { return c.inflight == 0 })
}

// --- События ---

// setStateLocked меняет состояние сервиса и оповещает ожидающих.
func (c *Container) setStateLocked(n *node, to domain.ServiceState) {
	from := n.state
	if from == to {
		return
	}
	n.state = to
	c.metrics.ServiceTransition(string(from), string(to))
	c.emitLocked(n, from, to)
	c.cond.Broadcast()
}

// emitLocked ставит событие в очередь доставки наблюдателям.
// Очередь не ограничена: наблюдатель может вызывать методы контейнера.
func (c *Container) emitLocked(n *node, from, to domain.ServiceState) {
	ev := domain.ServiceEvent{
		Service:   n.name,
		From:      from,
		To:        to,
		Owner:     n.owner,
		Timestamp: time.Now().UTC(),
	}
	if to == domain.ServiceStateFailed && n.err != nil {
		ev.Error = n.err.Error()
	}

	c.evMu.Lock()
	defer c.evMu.Unlock()
	if c.evClosed {
		return
	}
	c.evQueue = append(c.evQueue, ev)
	c.evCond.Signal()
}

// dispatchEvents доставляет события наблюдателям по порядку.
// Завершается после Shutdown, доставив всё, что было в очереди.
func (c *Container) dispatchEvents() {
	defer close(c.eventsDone)
	for {
		c.evMu.Lock()
		for len(c.evQueue) == 0 && !c.evClosed {
			c.evCond.Wait()
		}
		batch := c.evQueue
		c.evQueue = nil
		closed := c.evClosed
		c.evMu.Unlock()

		for _, ev := range batch {
			for _, o := range c.observers {
				o.ServiceStateChanged(context.Background(), ev)
			}
		}
		if closed && len(batch) == 0 {
			return
		}
	}
}

// --- Хелперы ---

// sortedNodesLocked возвращает сервисы в порядке установки.
func (c *Container) sortedNodesLocked() []*node {
	list := make([]*node, 0, len(c.nodes))
	for _, n := range c.nodes {
		list = append(list, n)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	return list
}

// callStart вызывает start hook, превращая панику в ошибку.
func callStart(ctx context.Context, instance any) (err error) {
	starter, ok := instance.(Starter)
	if !ok {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in start: %v", r)
		}
	}()
	return starter.Start(ctx)
}

// callStop вызывает stop hook, превращая панику в ошибку.
func callStop(ctx context.Context, instance any) (err error) {
	stopper, ok := instance.(Stopper)
	if !ok {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in stop: %v", r)
		}
	}()
	return stopper.Stop(ctx)
}

func clearSlots(n *node) {
	for _, dep := range n.deps {
		if dep.slot != nil {
			dep.slot.Clear()
		}
	}
}

func removeString(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
