package connector

import "errors"

// Ошибки подсистемы resource adapters.
var (
	// ErrInvalidDefinition — определение ресурса без обязательных атрибутов.
	ErrInvalidDefinition = errors.New("invalid resource definition")

	// ErrLegacySecurityUnavailable — определение требует legacy security,
	// которая недоступна в этом сервере.
	ErrLegacySecurityUnavailable = errors.New("legacy security is not available")

	// ErrAlreadyRegistered — resource adapter уже зарегистрирован.
	ErrAlreadyRegistered = errors.New("resource adapter already registered")

	// ErrNotRegistered — resource adapter не зарегистрирован.
	ErrNotRegistered = errors.New("resource adapter not registered")

	// ErrInvalidDescriptor — пустой или повреждённый дескриптор.
	ErrInvalidDescriptor = errors.New("invalid deployment descriptor")

	// ErrNotInjected — сервис запущен без внедрённой зависимости.
	ErrNotInjected = errors.New("dependency not injected")

	// ErrArchiveName — у архива нет имени.
	ErrArchiveName = errors.New("archive name is required")
)
