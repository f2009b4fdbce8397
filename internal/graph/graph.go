package graph

import (
	"fmt"
	"sort"
)

// Node — узел графа (сервис).
type Node struct {
	// ID — имя сервиса.
	ID string

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node

	// seq — порядковый номер добавления, для детерминированного обхода.
	seq uint64
}

// Graph — направленный ациклический граф зависимостей между сервисами.
//
// Содержит только разрешённые рёбра (цель существует). Ребро from → to
// означает "from зависит от to". Любое ребро, замыкающее цикл, отклоняется.
//
// Graph не потокобезопасен: синхронизацию обеспечивает владелец (Container).
type Graph struct {
	nodes   map[string]*Node
	nextSeq uint64
}

// New создаёт пустой граф.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
	}
}

// AddNode добавляет узел без рёбер.
func (g *Graph) AddNode(id string) error {
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}
	g.nextSeq++
	g.nodes[id] = &Node{
		ID:         id,
		DependsOn:  make([]*Node, 0),
		Dependents: make([]*Node, 0),
		seq:        g.nextSeq,
	}
	return nil
}

// RemoveNode удаляет узел вместе со всеми входящими и исходящими рёбрами.
func (g *Graph) RemoveNode(id string) error {
	node, exists := g.nodes[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	for _, dep := range node.DependsOn {
		dep.Dependents = removeNode(dep.Dependents, node)
	}
	for _, dependent := range node.Dependents {
		dependent.DependsOn = removeNode(dependent.DependsOn, node)
	}
	delete(g.nodes, id)
	return nil
}

// AddEdge добавляет ребро from → to.
//
// Возвращает *CycleError, если to уже (транзитивно) зависит от from.
// Граф при этом не меняется. Повторное добавление существующего ребра — no-op.
func (g *Graph) AddEdge(from, to string) error {
	fromNode, ok := g.nodes[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, from)
	}
	toNode, ok := g.nodes[to]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, to)
	}

	if hasNode(fromNode.DependsOn, toNode) {
		return nil
	}

	if path := g.path(toNode, fromNode); path != nil {
		cycle := append([]string{from}, path...)
		return &CycleError{Path: cycle}
	}

	fromNode.DependsOn = append(fromNode.DependsOn, toNode)
	toNode.Dependents = append(toNode.Dependents, fromNode)
	return nil
}

// RemoveEdge удаляет ребро from → to, если оно есть.
func (g *Graph) RemoveEdge(from, to string) {
	fromNode, ok := g.nodes[from]
	if !ok {
		return
	}
	toNode, ok := g.nodes[to]
	if !ok {
		return
	}
	fromNode.DependsOn = removeNode(fromNode.DependsOn, toNode)
	toNode.Dependents = removeNode(toNode.Dependents, fromNode)
}

// HasEdge проверяет наличие ребра from → to.
func (g *Graph) HasEdge(from, to string) bool {
	fromNode, ok := g.nodes[from]
	if !ok {
		return false
	}
	toNode, ok := g.nodes[to]
	if !ok {
		return false
	}
	return hasNode(fromNode.DependsOn, toNode)
}

// path ищет путь зависимостей start → ... → target (DFS по DependsOn).
// Возвращает ID узлов пути включительно или nil.
func (g *Graph) path(start, target *Node) []string {
	visited := make(map[*Node]bool)

	var walk func(n *Node) []string
	walk = func(n *Node) []string {
		if n == target {
			return []string{n.ID}
		}
		if visited[n] {
			return nil
		}
		visited[n] = true
		for _, dep := range n.DependsOn {
			if p := walk(dep); p != nil {
				return append([]string{n.ID}, p...)
			}
		}
		return nil
	}

	return walk(start)
}

// Has проверяет наличие узла.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// GetNode возвращает узел по ID.
func (g *Graph) GetNode(id string) *Node {
	return g.nodes[id]
}

// Size возвращает количество узлов.
func (g *Graph) Size() int {
	return len(g.nodes)
}

// Dependencies возвращает прямые зависимости узла в порядке добавления рёбер.
func (g *Graph) Dependencies(id string) []string {
	node, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return ids(node.DependsOn)
}

// Dependents возвращает прямых зависимых узла.
func (g *Graph) Dependents(id string) []string {
	node, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return ids(sortedBySeq(node.Dependents))
}

// TopologicalOrder возвращает узлы в порядке запуска (алгоритм Кана):
// каждый узел идёт после всех своих зависимостей.
//
// Среди готовых узлов первым берётся добавленный раньше.
func (g *Graph) TopologicalOrder() ([]string, error) {
	inDegree := make(map[*Node]int, len(g.nodes))
	queue := make([]*Node, 0)
	for _, node := range g.nodes {
		inDegree[node] = len(node.DependsOn)
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}
	queue = sortedBySeq(queue)

	order := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node.ID)

		released := make([]*Node, 0)
		for _, dependent := range node.Dependents {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				released = append(released, dependent)
			}
		}
		queue = append(queue, sortedBySeq(released)...)
		queue = sortedBySeq(queue)
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(g.nodes) {
		return nil, ErrCyclicDependency
	}
	return order, nil
}

// StopOrder возвращает id и всех его транзитивных зависимых в порядке
// остановки: каждый узел идёт раньше всех своих зависимостей, id — последним.
func (g *Graph) StopOrder(id string) ([]string, error) {
	root, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	closure := map[*Node]bool{root: true}
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dependent := range n.Dependents {
			if !closure[dependent] {
				closure[dependent] = true
				stack = append(stack, dependent)
			}
		}
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(closure))
	for i := len(order) - 1; i >= 0; i-- {
		if closure[g.nodes[order[i]]] {
			result = append(result, order[i])
		}
	}
	return result, nil
}

// ReverseOrder возвращает все узлы в порядке остановки (обратный топологический).
func (g *Graph) ReverseOrder() ([]string, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

func hasNode(list []*Node, n *Node) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}

func removeNode(list []*Node, n *Node) []*Node {
	out := make([]*Node, 0, len(list))
	for _, v := range list {
		if v != n {
			out = append(out, v)
		}
	}
	return out
}

func sortedBySeq(list []*Node) []*Node {
	out := make([]*Node, len(list))
	copy(out, list)
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func ids(list []*Node) []string {
	out := make([]string, len(list))
	for i, n := range list {
		out[i] = n.ID
	}
	return out
}
