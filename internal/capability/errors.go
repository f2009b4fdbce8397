package capability

import (
	"errors"
	"fmt"
)

// Ошибки реестра capabilities.
var (
	// ErrNotFound — capability не привязана ни к одному сервису.
	ErrNotFound = errors.New("capability not bound")

	// ErrConflict — capability уже привязана к другому сервису.
	ErrConflict = errors.New("capability already bound")

	// ErrInvalidName — пустое имя capability или сервиса.
	ErrInvalidName = errors.New("invalid capability name")

	// ErrInvalidVersion — версия или ограничение версии не парсятся как semver.
	ErrInvalidVersion = errors.New("invalid capability version")
)

// ConflictError — попытка привязать уже занятую capability.
type ConflictError struct {
	Capability string // имя capability
	Provider   string // текущий провайдер
	Requested  string // сервис, который пытался привязаться
}

// Error реализует интерфейс error.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("capability %s: already provided by %s, cannot bind %s",
		e.Capability, e.Provider, e.Requested)
}

// Unwrap возвращает ErrConflict.
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
