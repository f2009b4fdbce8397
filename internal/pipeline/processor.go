package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/shaiso/Deployer/internal/domain"
)

// Processor — шаг обработки unit в одной фазе.
//
// Processor читает и пишет только вложения unit и его ServiceTarget.
// Processor не ждёт перехода сервисов в UP: долгая инициализация
// выполняется в start hook сервиса.
type Processor interface {
	Process(ctx context.Context, u *Unit) error
}

// ProcessorFunc — адаптер функции к Processor.
type ProcessorFunc func(ctx context.Context, u *Unit) error

// Process реализует Processor.
func (f ProcessorFunc) Process(ctx context.Context, u *Unit) error {
	return f(ctx, u)
}

// Undeployer — processor, которому нужно знать о снятии unit.
// Вызывается из Pipeline.Undeploy в обратном порядке регистрации,
// до удаления сервисов unit.
//
// Вложения unit к этому моменту уже сброшены: d несёт имя, ID и сервисы
// deployment. Освобождение ресурсов сервиса выполняется в его Stop hook.
type Undeployer interface {
	Undeploy(ctx context.Context, d domain.Deployment)
}

// namedFunc — ProcessorFunc с явным именем.
type namedFunc struct {
	name string
	fn   ProcessorFunc
}

func (n namedFunc) Process(ctx context.Context, u *Unit) error { return n.fn(ctx, u) }
func (n namedFunc) Name() string                               { return n.name }

// Func создаёт processor с именем name.
func Func(name string, fn ProcessorFunc) Processor {
	return namedFunc{name: name, fn: fn}
}

// ProcessorTarget — точка регистрации processors. Реализуется Chain.
type ProcessorTarget interface {
	AddProcessor(subsystem string, phase domain.Phase, priority int, p Processor) error
}

// Registration — processor, зарегистрированный в фазе.
type Registration struct {
	Subsystem string
	Phase     domain.Phase
	Priority  int
	Name      string
	Processor Processor

	seq int
}

// nameOf возвращает имя processor: Name() или имя типа.
func nameOf(p Processor) string {
	if n, ok := p.(interface{ Name() string }); ok {
		return n.Name()
	}
	name := fmt.Sprintf("%T", p)
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
