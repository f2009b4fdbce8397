package domain

import (
	"fmt"
	"strings"
)

// Phase — фиксированная стадия обработки deployment unit.
//
// Порядок фаз одинаков для всех units:
//
//	STRUCTURE → PARSE → REGISTER → DEPENDENCIES → CONFIGURE_MODULE →
//	FIRST_MODULE_USE → POST_MODULE → INSTALL → CLEANUP
//
// Числовое значение задаёт полный порядок: меньшая фаза выполняется раньше.
type Phase int

const (
	// PhaseStructure — определение структуры архива.
	PhaseStructure Phase = iota + 1

	// PhaseParse — разбор дескрипторов и аннотаций.
	PhaseParse

	// PhaseRegister — регистрация компонентов unit.
	PhaseRegister

	// PhaseDependencies — вычисление зависимостей модуля.
	PhaseDependencies

	// PhaseConfigureModule — конфигурация модуля.
	PhaseConfigureModule

	// PhaseFirstModuleUse — первое использование class loader модуля.
	PhaseFirstModuleUse

	// PhasePostModule — обработка после создания модуля.
	PhasePostModule

	// PhaseInstall — установка сервисов в контейнер.
	PhaseInstall

	// PhaseCleanup — очистка временных данных.
	PhaseCleanup
)

var phaseNames = map[Phase]string{
	PhaseStructure:       "STRUCTURE",
	PhaseParse:           "PARSE",
	PhaseRegister:        "REGISTER",
	PhaseDependencies:    "DEPENDENCIES",
	PhaseConfigureModule: "CONFIGURE_MODULE",
	PhaseFirstModuleUse:  "FIRST_MODULE_USE",
	PhasePostModule:      "POST_MODULE",
	PhaseInstall:         "INSTALL",
	PhaseCleanup:         "CLEANUP",
}

// Phases возвращает все фазы в порядке выполнения.
func Phases() []Phase {
	return []Phase{
		PhaseStructure,
		PhaseParse,
		PhaseRegister,
		PhaseDependencies,
		PhaseConfigureModule,
		PhaseFirstModuleUse,
		PhasePostModule,
		PhaseInstall,
		PhaseCleanup,
	}
}

// IsValid проверяет, что значение — одна из известных фаз.
func (p Phase) IsValid() bool {
	_, ok := phaseNames[p]
	return ok
}

// String возвращает имя фазы.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE(%d)", int(p))
}

// MarshalText реализует encoding.TextMarshaler (для JSON).
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePhase парсит имя фазы (регистр не важен).
func ParsePhase(s string) (Phase, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for phase, name := range phaseNames {
		if name == upper {
			return phase, nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}
