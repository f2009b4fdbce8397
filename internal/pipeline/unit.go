package pipeline

import (
	"sort"

	"github.com/google/uuid"

	"github.com/shaiso/Deployer/internal/container"
)

// Unit — deployment unit: артефакт и типизированные вложения.
//
// Unit принадлежит одному вызову Run и не разделяется между горутинами.
// Processors передают друг другу производные данные через вложения;
// по завершении Run вложения сбрасываются.
type Unit struct {
	ID       uuid.UUID
	Name     string
	Artifact any

	attachments map[string]any
	target      container.ServiceTarget
}

// NewUnit создаёт unit с новым ID.
func NewUnit(name string, artifact any) *Unit {
	return &Unit{
		ID:          uuid.New(),
		Name:        name,
		Artifact:    artifact,
		attachments: make(map[string]any),
	}
}

// ServiceTarget возвращает точку установки сервисов unit.
// Всё, что установлено через неё, откатывается при ошибке Run.
// Вне Run возвращает nil.
func (u *Unit) ServiceTarget() container.ServiceTarget {
	return u.target
}

// Keys возвращает имена вложений (отсортированные).
func (u *Unit) Keys() []string {
	keys := make([]string, 0, len(u.attachments))
	for k := range u.attachments {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Discard сбрасывает все вложения.
func (u *Unit) Discard() {
	u.attachments = make(map[string]any)
}

func (u *Unit) ensure() {
	if u.attachments == nil {
		u.attachments = make(map[string]any)
	}
}

// Key — типизированный ключ вложения.
//
//	var RarMarker = pipeline.NewKey[bool]("rar-marker")
//	pipeline.Attach(unit, RarMarker, true)
type Key[T any] struct {
	name string
}

// NewKey создаёт ключ вложения.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name возвращает имя ключа.
func (k Key[T]) Name() string {
	return k.name
}

// Attach устанавливает вложение, заменяя предыдущее значение.
func Attach[T any](u *Unit, k Key[T], v T) {
	u.ensure()
	u.attachments[k.name] = v
}

// Value возвращает вложение и признак его наличия.
func Value[T any](u *Unit, k Key[T]) (T, bool) {
	v, ok := u.attachments[k.name].(T)
	return v, ok
}

// Has проверяет наличие вложения.
func Has[T any](u *Unit, k Key[T]) bool {
	_, ok := Value(u, k)
	return ok
}

// Append добавляет элементы во вложение-список.
func Append[T any](u *Unit, k Key[[]T], v ...T) {
	list, _ := Value(u, k)
	Attach(u, k, append(list, v...))
}

// Detach удаляет вложение.
func Detach[T any](u *Unit, k Key[T]) {
	delete(u.attachments, k.name)
}
