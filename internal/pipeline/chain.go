package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Deployer/internal/domain"
)

// Chain — список processors по фазам.
//
// Chain заполняется активаторами и замораживается в Build. Внутри фазы
// processors отсортированы по приоритету; равные приоритеты сохраняют
// порядок регистрации.
type Chain struct {
	mu     sync.Mutex
	regs   []Registration
	frozen bool
}

// NewChain создаёт пустую цепочку.
func NewChain() *Chain {
	return &Chain{}
}

// AddProcessor регистрирует processor в фазе. Реализует ProcessorTarget.
func (c *Chain) AddProcessor(subsystem string, phase domain.Phase, priority int, p Processor) error {
	if p == nil {
		return ErrNilProcessor
	}
	if !phase.IsValid() {
		return fmt.Errorf("%w: %d", ErrUnknownPhase, int(phase))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return ErrChainFrozen
	}

	c.regs = append(c.regs, Registration{
		Subsystem: subsystem,
		Phase:     phase,
		Priority:  priority,
		Name:      nameOf(p),
		Processor: p,
		seq:       len(c.regs),
	})
	return nil
}

// Registrations возвращает processors в порядке выполнения.
func (c *Chain) Registrations() []Registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortRegistrations(c.regs)
}

// Len возвращает количество зарегистрированных processors.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.regs)
}

// Build замораживает цепочку и создаёт Pipeline.
func (c *Chain) Build(cfg Config) *Pipeline {
	c.mu.Lock()
	c.frozen = true
	regs := sortRegistrations(c.regs)
	c.mu.Unlock()

	return newPipeline(regs, cfg)
}

func sortRegistrations(regs []Registration) []Registration {
	sorted := append([]Registration(nil), regs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Phase != b.Phase {
			return a.Phase < b.Phase
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.seq < b.seq
	})
	return sorted
}
