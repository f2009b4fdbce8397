package connector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Deployer/internal/container"
)

// TransactionIntegration — интеграция с менеджером транзакций.
// Реализуется подсистемой транзакций и связывается через
// CapabilityTransactionIntegration.
type TransactionIntegration interface {
	// Name возвращает имя менеджера транзакций.
	Name() string
}

// LocalTransactions — TransactionIntegration для автономного сервера
// без внешней подсистемы транзакций.
type LocalTransactions struct{}

// Name реализует TransactionIntegration.
func (LocalTransactions) Name() string { return "local" }

// ResourceAdapterMetadata — метаданные развёрнутого resource adapter.
type ResourceAdapterMetadata struct {
	Name        string       `json:"name"`
	Archive     string       `json:"archive"`
	Version     string       `json:"version,omitempty"`
	Descriptor  string       `json:"descriptor,omitempty"`
	IronJacamar string       `json:"ironjacamar,omitempty"`
	Definitions []Definition `json:"definitions,omitempty"`
}

// MetadataRepository — репозиторий метаданных resource adapters (MDR).
type MetadataRepository struct {
	mu       sync.RWMutex
	adapters map[string]ResourceAdapterMetadata
}

// NewMetadataRepository создаёт пустой MDR.
func NewMetadataRepository() *MetadataRepository {
	return &MetadataRepository{adapters: make(map[string]ResourceAdapterMetadata)}
}

// Register регистрирует метаданные resource adapter.
func (m *MetadataRepository) Register(meta ResourceAdapterMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.adapters[meta.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, meta.Name)
	}
	m.adapters[meta.Name] = meta
	return nil
}

// Unregister удаляет метаданные resource adapter.
func (m *MetadataRepository) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.adapters[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	delete(m.adapters, name)
	return nil
}

// Get возвращает метаданные resource adapter.
func (m *MetadataRepository) Get(name string) (ResourceAdapterMetadata, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.adapters[name]
	return meta, ok
}

// Names возвращает имена зарегистрированных resource adapters.
func (m *MetadataRepository) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.adapters)
}

// Stop реализует container.Stopper.
func (m *MetadataRepository) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapters = make(map[string]ResourceAdapterMetadata)
	return nil
}

// RaRepository — репозиторий активных resource adapters.
//
// Запускается, когда MDR и интеграция транзакций внедрены.
type RaRepository struct {
	MDR                    *container.Slot[*MetadataRepository]
	TransactionIntegration *container.Slot[TransactionIntegration]

	set namedSet
}

// NewRaRepository создаёт репозиторий с пустыми слотами.
func NewRaRepository() *RaRepository {
	return &RaRepository{
		MDR:                    container.NewSlot[*MetadataRepository](),
		TransactionIntegration: container.NewSlot[TransactionIntegration](),
	}
}

// Start реализует container.Starter.
func (r *RaRepository) Start(ctx context.Context) error {
	if _, ok := r.MDR.Get(); !ok {
		return fmt.Errorf("ra repository: mdr: %w", ErrNotInjected)
	}
	if _, ok := r.TransactionIntegration.Get(); !ok {
		return fmt.Errorf("ra repository: transaction integration: %w", ErrNotInjected)
	}
	return nil
}

// Stop реализует container.Stopper.
func (r *RaRepository) Stop(ctx context.Context) error {
	r.set.clear()
	return nil
}

// Add добавляет resource adapter.
func (r *RaRepository) Add(name string) { r.set.add(name) }

// Remove удаляет resource adapter.
func (r *RaRepository) Remove(name string) { r.set.remove(name) }

// Names возвращает активные resource adapters.
func (r *RaRepository) Names() []string { return r.set.names() }

// NonJTADataSourceRaRepository — репозиторий resource adapters для
// non-JTA datasources. Зависит только от MDR.
type NonJTADataSourceRaRepository struct {
	MDR *container.Slot[*MetadataRepository]
}

// NewNonJTADataSourceRaRepository создаёт репозиторий с пустым слотом.
func NewNonJTADataSourceRaRepository() *NonJTADataSourceRaRepository {
	return &NonJTADataSourceRaRepository{MDR: container.NewSlot[*MetadataRepository]()}
}

// Start реализует container.Starter.
func (r *NonJTADataSourceRaRepository) Start(ctx context.Context) error {
	if _, ok := r.MDR.Get(); !ok {
		return fmt.Errorf("non-jta ra repository: mdr: %w", ErrNotInjected)
	}
	return nil
}

// ManagementRepository — реестр управляемых ресурсов
// (connection factories, administered objects, драйверы).
type ManagementRepository struct {
	mu        sync.RWMutex
	resources map[string]string // имя → тип
}

// NewManagementRepository создаёт пустой реестр.
func NewManagementRepository() *ManagementRepository {
	return &ManagementRepository{resources: make(map[string]string)}
}

// Add регистрирует ресурс.
func (m *ManagementRepository) Add(kind, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[name] = kind
}

// Remove удаляет ресурс.
func (m *ManagementRepository) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.resources, name)
}

// Kind возвращает тип ресурса.
func (m *ManagementRepository) Kind(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kind, ok := m.resources[name]
	return kind, ok
}

// Names возвращает имена ресурсов.
func (m *ManagementRepository) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.resources)
}

// ResourceAdapterRegistry — реестр развёрнутых resource adapters.
type ResourceAdapterRegistry struct {
	set namedSet
}

// NewResourceAdapterRegistry создаёт пустой реестр.
func NewResourceAdapterRegistry() *ResourceAdapterRegistry {
	return &ResourceAdapterRegistry{}
}

// Add регистрирует resource adapter.
func (r *ResourceAdapterRegistry) Add(name string) { r.set.add(name) }

// Remove удаляет resource adapter.
func (r *ResourceAdapterRegistry) Remove(name string) { r.set.remove(name) }

// Has проверяет регистрацию.
func (r *ResourceAdapterRegistry) Has(name string) bool { return r.set.has(name) }

// Names возвращает зарегистрированные resource adapters.
func (r *ResourceAdapterRegistry) Names() []string { return r.set.names() }

// --- Сервисы unit ---

// ResourceAdapter — сервис развёрнутого resource adapter.
//
// Во время Stop слоты уже пусты: зависимости запоминаются в Start.
type ResourceAdapter struct {
	Metadata ResourceAdapterMetadata

	MDR        *container.Slot[*MetadataRepository]
	Repository *container.Slot[*RaRepository]
	Registry   *container.Slot[*ResourceAdapterRegistry]

	mdr      *MetadataRepository
	repo     *RaRepository
	registry *ResourceAdapterRegistry
}

func newResourceAdapter(meta ResourceAdapterMetadata) *ResourceAdapter {
	return &ResourceAdapter{
		Metadata:   meta,
		MDR:        container.NewSlot[*MetadataRepository](),
		Repository: container.NewSlot[*RaRepository](),
		Registry:   container.NewSlot[*ResourceAdapterRegistry](),
	}
}

// Start регистрирует adapter в MDR, репозитории и реестре.
func (ra *ResourceAdapter) Start(ctx context.Context) error {
	mdr, ok := ra.MDR.Get()
	if !ok {
		return fmt.Errorf("resource adapter %s: mdr: %w", ra.Metadata.Name, ErrNotInjected)
	}
	repo, ok := ra.Repository.Get()
	if !ok {
		return fmt.Errorf("resource adapter %s: ra repository: %w", ra.Metadata.Name, ErrNotInjected)
	}
	if err := mdr.Register(ra.Metadata); err != nil {
		return err
	}
	repo.Add(ra.Metadata.Name)

	registry, _ := ra.Registry.Get()
	if registry != nil {
		registry.Add(ra.Metadata.Name)
	}

	ra.mdr, ra.repo, ra.registry = mdr, repo, registry
	return nil
}

// Stop снимает регистрацию adapter.
func (ra *ResourceAdapter) Stop(ctx context.Context) error {
	name := ra.Metadata.Name
	if ra.registry != nil {
		ra.registry.Remove(name)
	}
	if ra.repo != nil {
		ra.repo.Remove(name)
	}
	var err error
	if ra.mdr != nil {
		err = ra.mdr.Unregister(name)
	}
	ra.mdr, ra.repo, ra.registry = nil, nil, nil
	return err
}

// ManagedResource — сервис ресурса, регистрируемого в ManagementRepository
// (connection factory, administered object, JDBC драйвер).
type ManagedResource struct {
	Kind string
	Name string

	Management *container.Slot[*ManagementRepository]

	management *ManagementRepository
}

func newManagedResource(kind, name string) *ManagedResource {
	return &ManagedResource{
		Kind:       kind,
		Name:       name,
		Management: container.NewSlot[*ManagementRepository](),
	}
}

// Start реализует container.Starter.
func (r *ManagedResource) Start(ctx context.Context) error {
	m, ok := r.Management.Get()
	if !ok {
		return fmt.Errorf("%s %s: management repository: %w", r.Kind, r.Name, ErrNotInjected)
	}
	m.Add(r.Kind, r.Name)
	r.management = m
	return nil
}

// Stop реализует container.Stopper.
func (r *ManagedResource) Stop(ctx context.Context) error {
	if r.management != nil {
		r.management.Remove(r.Name)
		r.management = nil
	}
	return nil
}

// --- Хелперы ---

// namedSet — потокобезопасное множество имён.
type namedSet struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

func (s *namedSet) add(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		s.items = make(map[string]struct{})
	}
	s.items[name] = struct{}{}
}

func (s *namedSet) remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, name)
}

func (s *namedSet) has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[name]
	return ok
}

func (s *namedSet) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

func (s *namedSet) names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.items)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
