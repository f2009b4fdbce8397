package container

import (
	"context"
	"errors"
	"sync"
)

// TrackedTarget — ServiceTarget, запоминающий установленные сервисы.
//
// Используется pipeline: всё, что processors установили для unit,
// можно откатить одним вызовом Rollback.
type TrackedTarget struct {
	c     *Container
	owner string

	mu        sync.Mutex
	installed []string
}

// AddService реализует ServiceTarget.
func (t *TrackedTarget) AddService(name string, instance any) *ServiceBuilder {
	b := t.c.AddService(name, instance)
	b.owner = t.owner
	b.onInstall = t.record
	return b
}

// Owner возвращает идентификатор владельца.
func (t *TrackedTarget) Owner() string {
	return t.owner
}

// Installed возвращает установленные сервисы в порядке установки.
func (t *TrackedTarget) Installed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.installed...)
}

func (t *TrackedTarget) record(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.installed = append(t.installed, name)
}

// Rollback удаляет установленные сервисы в обратном порядке.
//
// Возвращает имена удалённых сервисов. Сервисы, уже удалённые кем-то
// другим, пропускаются. Ошибки остальных объединяются.
func (t *TrackedTarget) Rollback(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	list := t.installed
	t.installed = nil
	t.mu.Unlock()

	removed := make([]string, 0, len(list))
	var errs []error
	for i := len(list) - 1; i >= 0; i-- {
		name := list[i]
		if err := t.c.Remove(ctx, name); err != nil {
			if errors.Is(err, ErrServiceNotFound) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		removed = append(removed, name)
	}
	return removed, errors.Join(errs...)
}
