package graph

import (
	"errors"
	"strings"
)

// Ошибки графа зависимостей.
var (
	// ErrNodeNotFound — узел отсутствует в графе.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode — узел с таким ID уже есть.
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrCyclicDependency — ребро замкнуло бы цикл.
	ErrCyclicDependency = errors.New("cyclic dependency detected")
)

// CycleError — ребро from → to замкнуло бы цикл.
//
// Path — цикл в порядке зависимостей: Path[0] зависит от Path[1] и т.д.,
// последний элемент совпадает с первым.
type CycleError struct {
	Path []string
}

// Error реализует интерфейс error.
func (e *CycleError) Error() string {
	return ErrCyclicDependency.Error() + ": " + strings.Join(e.Path, " -> ")
}

// Unwrap возвращает ErrCyclicDependency.
func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}
