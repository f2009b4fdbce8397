package container

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shaiso/Deployer/internal/capability"
	"github.com/shaiso/Deployer/internal/graph"
)

// Ошибки контейнера сервисов.
var (
	// ErrDuplicateService — сервис с таким именем уже установлен.
	ErrDuplicateService = errors.New("duplicate service")

	// ErrCircularDependency — установка замкнула бы цикл зависимостей.
	ErrCircularDependency = graph.ErrCyclicDependency

	// ErrCapabilityConflict — capability уже предоставляет другой сервис.
	ErrCapabilityConflict = capability.ErrConflict

	// ErrServiceStart — start hook сервиса вернул ошибку.
	ErrServiceStart = errors.New("service start failed")

	// ErrServiceNotFound — сервис не установлен или цель зависимости не разрешается.
	ErrServiceNotFound = errors.New("service not found")

	// ErrInvalidService — пустое имя сервиса или цели зависимости.
	ErrInvalidService = errors.New("invalid service definition")

	// ErrAlreadyInstalled — Install вызван повторно на одном builder.
	ErrAlreadyInstalled = errors.New("service builder already installed")

	// ErrInvalidState — операция невозможна в текущем состоянии сервиса.
	ErrInvalidState = errors.New("invalid service state")

	// ErrInjectionType — значение зависимости не подходит по типу к слоту.
	ErrInjectionType = errors.New("injection type mismatch")

	// ErrContainerClosed — контейнер остановлен.
	ErrContainerClosed = errors.New("container closed")
)

// CycleError — путь цикла, который замкнула бы установка.
type CycleError = graph.CycleError

// StartError — ошибка запуска сервиса.
type StartError struct {
	Service string   // сервис, чей start hook упал
	Err     error    // исходная ошибка
	Blocked []string // транзитивные зависимые, которые не могут стартовать
}

// Error реализует интерфейс error.
func (e *StartError) Error() string {
	msg := fmt.Sprintf("service %s: %s: %v", e.Service, ErrServiceStart, e.Err)
	if len(e.Blocked) > 0 {
		msg += " (blocked: " + strings.Join(e.Blocked, ", ") + ")"
	}
	return msg
}

// Unwrap возвращает исходную ошибку.
func (e *StartError) Unwrap() error {
	return e.Err
}

// Is позволяет errors.Is(err, ErrServiceStart).
func (e *StartError) Is(target error) bool {
	return target == ErrServiceStart
}

// NotFoundError — зависимости сервиса, цели которых не разрешаются.
type NotFoundError struct {
	Service string   // сервис с неразрешёнными зависимостями
	Missing []string // цели в виде "service:name" / "capability:name"
}

// Error реализует интерфейс error.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("service %s: unresolved dependencies: %s", e.Service, strings.Join(e.Missing, ", "))
}

// Unwrap возвращает ErrServiceNotFound.
func (e *NotFoundError) Unwrap() error {
	return ErrServiceNotFound
}
