package domain

// ServiceState — состояние сервиса в контейнере.
//
// Жизненный цикл:
//
//	DOWN → STARTING → UP → STOPPING → DOWN
//	           ↘ FAILED (до явного Retry или Remove)
type ServiceState string

const (
	// ServiceStateDown — сервис установлен, но не запущен.
	ServiceStateDown ServiceState = "DOWN"

	// ServiceStateStarting — выполняется start hook.
	ServiceStateStarting ServiceState = "STARTING"

	// ServiceStateUp — сервис работает, зависимости внедрены.
	ServiceStateUp ServiceState = "UP"

	// ServiceStateStopping — выполняется stop hook.
	ServiceStateStopping ServiceState = "STOPPING"

	// ServiceStateFailed — start hook завершился ошибкой.
	ServiceStateFailed ServiceState = "FAILED"
)

// IsTransitional возвращает true для промежуточных состояний.
func (s ServiceState) IsTransitional() bool {
	return s == ServiceStateStarting || s == ServiceStateStopping
}

// String возвращает строковое представление ServiceState.
func (s ServiceState) String() string {
	return string(s)
}

// DeploymentStatus — статус обработки deployment unit.
//
// Жизненный цикл:
//
//	RUNNING → DEPLOYED → UNDEPLOYED
//	        ↘ FAILED
type DeploymentStatus string

const (
	// DeploymentStatusRunning — unit проходит фазы pipeline.
	DeploymentStatusRunning DeploymentStatus = "RUNNING"

	// DeploymentStatusDeployed — все фазы пройдены успешно.
	DeploymentStatusDeployed DeploymentStatus = "DEPLOYED"

	// DeploymentStatusFailed — processor вернул ошибку, сервисы откачены.
	DeploymentStatusFailed DeploymentStatus = "FAILED"

	// DeploymentStatusUndeployed — unit снят, сервисы удалены.
	DeploymentStatusUndeployed DeploymentStatus = "UNDEPLOYED"
)

// IsTerminal возвращает true, если статус финальный.
func (s DeploymentStatus) IsTerminal() bool {
	switch s {
	case DeploymentStatusFailed, DeploymentStatusUndeployed:
		return true
	default:
		return false
	}
}
