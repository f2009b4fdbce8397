package domain

import (
	"time"

	"github.com/google/uuid"
)

// Deployment — итог обработки одного deployment unit.
//
// Создаётся pipeline после завершения Run (успешного или нет)
// и передаётся в журнал и в шину событий.
type Deployment struct {
	// ID — идентификатор unit.
	ID uuid.UUID `json:"id"`

	// Name — имя артефакта (например, "mail.rar").
	Name string `json:"name"`

	// Status — итоговый статус.
	Status DeploymentStatus `json:"status"`

	// Services — сервисы, установленные processors этого unit (в порядке установки).
	Services []string `json:"services,omitempty"`

	// FailedPhase — фаза, в которой упал processor.
	FailedPhase string `json:"failed_phase,omitempty"`

	// FailedProcessor — имя упавшего processor.
	FailedProcessor string `json:"failed_processor,omitempty"`

	// Error — текст ошибки processor.
	Error string `json:"error,omitempty"`

	// RolledBack — сервисы, удалённые компенсирующим откатом (в порядке удаления).
	RolledBack []string `json:"rolled_back,omitempty"`

	// StartedAt — время начала обработки.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения обработки.
	FinishedAt time.Time `json:"finished_at"`
}

// Duration возвращает продолжительность обработки.
func (d *Deployment) Duration() time.Duration {
	if d.FinishedAt.IsZero() {
		return 0
	}
	return d.FinishedAt.Sub(d.StartedAt)
}

// ServiceEvent — событие смены состояния сервиса.
type ServiceEvent struct {
	// Service — имя сервиса.
	Service string `json:"service"`

	// From — предыдущее состояние ("" для только что установленного).
	From ServiceState `json:"from,omitempty"`

	// To — новое состояние.
	To ServiceState `json:"to"`

	// Owner — unit, установивший сервис ("" для сервисов активатора).
	Owner string `json:"owner,omitempty"`

	// Error — ошибка start hook (для FAILED).
	Error string `json:"error,omitempty"`

	// Timestamp — время перехода.
	Timestamp time.Time `json:"timestamp"`
}
