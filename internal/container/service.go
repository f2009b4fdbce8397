package container

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Starter — сервис с логикой запуска.
//
// Start вызывается на воркере контейнера, когда все зависимости UP
// и слоты внедрения уже заполнены. Долгая инициализация выполняется здесь,
// а не в processor.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper — сервис с логикой остановки.
// Ошибка Stop логируется, сервис всё равно переходит в DOWN.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Hooks — сервис, заданный функциями (удобно для простых сервисов и тестов).
type Hooks struct {
	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

// Start реализует Starter.
func (h *Hooks) Start(ctx context.Context) error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart(ctx)
}

// Stop реализует Stopper.
func (h *Hooks) Stop(ctx context.Context) error {
	if h.OnStop == nil {
		return nil
	}
	return h.OnStop(ctx)
}

// Target — цель зависимости: сервис по имени или capability.
type Target struct {
	Name       string
	Capability bool
}

// Service создаёт цель-зависимость на сервис по имени.
func Service(name string) Target {
	return Target{Name: name}
}

// Capability создаёт цель-зависимость на capability.
// Имя разрешается через capability.Registry.
func Capability(name string) Target {
	return Target{Name: name, Capability: true}
}

// String возвращает "service:name" или "capability:name".
func (t Target) String() string {
	if t.Capability {
		return "capability:" + t.Name
	}
	return "service:" + t.Name
}

// Injector — слот, в который контейнер внедряет экземпляр зависимости.
type Injector interface {
	// Inject устанавливает значение. Возвращает ErrInjectionType,
	// если значение не подходит по типу.
	Inject(value any) error

	// Clear сбрасывает значение.
	Clear()
}

// Slot — типизированный слот внедрения зависимости.
//
// Значение установлено, пока сервис-владелец слота находится в UP
// (заполняется непосредственно перед start hook, сбрасывается при
// выходе из UP или при ошибке запуска).
type Slot[T any] struct {
	mu    sync.RWMutex
	value T
	set   bool
}

// NewSlot создаёт пустой слот.
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{}
}

// Inject реализует Injector.
func (s *Slot[T]) Inject(value any) error {
	typed, ok := value.(T)
	if !ok {
		return fmt.Errorf("%w: want %s, got %T", ErrInjectionType, reflect.TypeFor[T](), value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = typed
	s.set = true
	return nil
}

// Clear реализует Injector.
func (s *Slot[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.value = zero
	s.set = false
}

// Get возвращает значение и признак, что оно установлено.
func (s *Slot[T]) Get() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.set
}

// Value возвращает значение или нулевое значение T.
func (s *Slot[T]) Value() T {
	v, _ := s.Get()
	return v
}

// ServiceTarget — точка установки сервисов.
//
// Реализуется Container и TrackedTarget. Processors и активатор
// устанавливают сервисы только через этот интерфейс.
type ServiceTarget interface {
	AddService(name string, instance any) *ServiceBuilder
}

// dependency — исходящее ребро сервиса.
type dependency struct {
	target   Target
	slot     Injector // nil — только порядок (Requires)
	resolved string   // имя сервиса-цели, "" если не разрешена
}

// ServiceBuilder собирает описание сервиса перед установкой.
//
//	err := c.AddService("ra-repository", repo).
//		AddDependency(container.Service("mdr"), repo.MDR).
//		Requires(container.Capability("tx-integration")).
//		Install()
type ServiceBuilder struct {
	c         *Container
	name      string
	instance  any
	deps      []*dependency
	provides  []string
	owner     string
	onInstall func(name string)
	installed bool
	err       error
}

// AddDependency добавляет зависимость с внедрением экземпляра цели в slot.
// При slot == nil зависимость только упорядочивает запуск.
func (b *ServiceBuilder) AddDependency(target Target, slot Injector) *ServiceBuilder {
	if strings.TrimSpace(target.Name) == "" {
		b.err = fmt.Errorf("%w: service %s: empty dependency target", ErrInvalidService, b.name)
		return b
	}
	b.deps = append(b.deps, &dependency{target: target, slot: slot})
	return b
}

// Requires добавляет зависимость без внедрения: сервис стартует только
// после того, как цель в UP.
func (b *ServiceBuilder) Requires(target Target) *ServiceBuilder {
	return b.AddDependency(target, nil)
}

// Provides объявляет capability, которую сервис предоставляет.
// Привязка выполняется атомарно при Install.
func (b *ServiceBuilder) Provides(capabilityName string) *ServiceBuilder {
	if strings.TrimSpace(capabilityName) == "" {
		b.err = fmt.Errorf("%w: service %s: empty capability", ErrInvalidService, b.name)
		return b
	}
	b.provides = append(b.provides, capabilityName)
	return b
}

// Install регистрирует сервис и его зависимости в контейнере.
//
// Сервис не стартует синхронно: запуск планирует resolver контейнера.
// При любой ошибке контейнер и реестр capabilities не меняются.
func (b *ServiceBuilder) Install() error {
	if b.installed {
		return fmt.Errorf("%w: %s", ErrAlreadyInstalled, b.name)
	}
	if b.err != nil {
		return b.err
	}
	if err := b.c.install(b); err != nil {
		return err
	}
	b.installed = true
	if b.onInstall != nil {
		b.onInstall(b.name)
	}
	return nil
}
