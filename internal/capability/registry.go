package capability

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Binding — привязка capability к сервису-провайдеру.
type Binding struct {
	Capability string `json:"capability"`
	Service    string `json:"service"`
}

// Registry — реестр capabilities.
//
// Сопоставляет логическое имя capability с именем сервиса, который её
// сейчас предоставляет. У capability не больше одного провайдера.
// Потокобезопасен.
//
// Registry создаётся вместе с контейнером и передаётся явно всем, кому
// нужен lookup; глобального экземпляра нет.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]string   // capability → service
	provided map[string][]string // service → capabilities
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		bindings: make(map[string]string),
		provided: make(map[string][]string),
	}
}

// Bind привязывает capability к сервису.
//
// Возвращает *ConflictError, если capability уже предоставляет другой сервис.
// Повторная привязка к тому же сервису — no-op.
func (r *Registry) Bind(capability, service string) error {
	if err := validateNames(capability, service); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, exists := r.bindings[capability]; exists {
		if current == service {
			return nil
		}
		return &ConflictError{Capability: capability, Provider: current, Requested: service}
	}

	r.bindings[capability] = service
	r.provided[service] = append(r.provided[service], capability)
	return nil
}

// CanBind проверяет, что Bind(capability, service) пройдёт, не меняя реестр.
func (r *Registry) CanBind(capability, service string) error {
	if err := validateNames(capability, service); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if current, exists := r.bindings[capability]; exists && current != service {
		return &ConflictError{Capability: capability, Provider: current, Requested: service}
	}
	return nil
}

// Lookup возвращает имя сервиса, предоставляющего capability.
// Сравнение точное. Возвращает ErrNotFound, если capability не привязана.
func (r *Registry) Lookup(capability string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	service, exists := r.bindings[capability]
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrNotFound, capability)
	}
	return service, nil
}

// Unbind снимает привязку capability. Возвращает имя бывшего провайдера
// или "", если capability не была привязана.
func (r *Registry) Unbind(capability string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	service, exists := r.bindings[capability]
	if !exists {
		return ""
	}
	delete(r.bindings, capability)
	r.provided[service] = removeString(r.provided[service], capability)
	if len(r.provided[service]) == 0 {
		delete(r.provided, service)
	}
	return service
}

// UnbindService снимает все привязки сервиса (при его удалении).
// Возвращает отвязанные capabilities.
func (r *Registry) UnbindService(service string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	caps := r.provided[service]
	for _, c := range caps {
		delete(r.bindings, c)
	}
	delete(r.provided, service)
	return caps
}

// ProvidedBy возвращает capabilities, которые предоставляет сервис.
func (r *Registry) ProvidedBy(service string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make([]string, len(r.provided[service]))
	copy(caps, r.provided[service])
	return caps
}

// Bindings возвращает все привязки, отсортированные по имени capability.
func (r *Registry) Bindings() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Binding, 0, len(r.bindings))
	for c, s := range r.bindings {
		result = append(result, Binding{Capability: c, Service: s})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Capability < result[j].Capability
	})
	return result
}

// Count возвращает количество привязок.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}

func validateNames(capability, service string) error {
	if strings.TrimSpace(capability) == "" {
		return fmt.Errorf("%w: empty capability", ErrInvalidName)
	}
	if strings.TrimSpace(service) == "" {
		return fmt.Errorf("%w: empty provider for %s", ErrInvalidName, capability)
	}
	return nil
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
