package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/Deployer/internal/domain"
)

// Ошибки pipeline.
var (
	// ErrNilProcessor — попытка зарегистрировать nil processor.
	ErrNilProcessor = errors.New("nil processor")

	// ErrUnknownPhase — фаза вне фиксированного списка.
	ErrUnknownPhase = errors.New("unknown phase")

	// ErrChainFrozen — регистрация после Build.
	ErrChainFrozen = errors.New("processor chain is frozen")

	// ErrProcessing — processor unit завершился ошибкой.
	ErrProcessing = errors.New("deployment processing failed")

	// ErrNotDeployed — Undeploy для unit, который не был развёрнут.
	ErrNotDeployed = errors.New("unit is not deployed")
)

// ProcessingError — ошибка обработки unit.
//
// Содержит первую упавшую пару (фаза, processor) и результат
// компенсирующего отката.
type ProcessingError struct {
	UnitID    uuid.UUID
	Unit      string
	Phase     domain.Phase
	Subsystem string
	Processor string
	Err       error

	// RolledBack — сервисы, удалённые откатом (в порядке удаления).
	RolledBack []string

	// RollbackErr — ошибки отката (nil, если откат прошёл чисто).
	RollbackErr error
}

// Error реализует интерфейс error.
func (e *ProcessingError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "unit %s: phase %s: processor %s", e.Unit, e.Phase, e.Processor)
	if e.Subsystem != "" {
		fmt.Fprintf(&b, " (%s)", e.Subsystem)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	if len(e.RolledBack) > 0 {
		b.WriteString("; rolled back: " + strings.Join(e.RolledBack, ", "))
	}
	if e.RollbackErr != nil {
		fmt.Fprintf(&b, "; rollback: %v", e.RollbackErr)
	}
	return b.String()
}

// Unwrap возвращает ошибку processor.
func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Is позволяет errors.Is(err, ErrProcessing).
func (e *ProcessingError) Is(target error) bool {
	return target == ErrProcessing
}
