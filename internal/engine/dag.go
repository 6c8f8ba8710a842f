package engine

import (
	"fmt"

	"github.com/shaiso/Relay/internal/domain"
)

// Node — узел в DAG.
type Node struct {
	// Step — определение шага из FlowDefinition.
	Step *domain.Step

	// Name — имя шага (совпадает со Step.Name).
	Name string

	// Index — позиция шага в порядке объявления.
	// Планировщик сортирует по Index, а не по имени,
	// чтобы поведение было воспроизводимым.
	Index int

	// InDegree — количество входящих рёбер (зависимостей).
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node
}

// DAG — направленный ациклический граф шагов flow.
type DAG struct {
	// Nodes — все узлы графа (имя шага → Node).
	Nodes map[string]*Node

	// Ordered — узлы в порядке объявления.
	Ordered []*Node

	// Order — топологически отсортированный список узлов.
	Order []*Node
}

// BuildDAG строит DAG из FlowDefinition.
//
// Возвращает ошибку, если зависимость ссылается на несуществующий
// шаг или в графе есть цикл. Структурная валидация шагов
// (типы, обязательные поля) — забота Validate, не BuildDAG.
func BuildDAG(def *domain.FlowDefinition) (*DAG, error) {
	dag := &DAG{
		Nodes:   make(map[string]*Node, len(def.Steps)),
		Ordered: make([]*Node, 0, len(def.Steps)),
	}

	// Первый проход: создаём все узлы
	for i := range def.Steps {
		step := &def.Steps[i]

		if _, exists := dag.Nodes[step.Name]; exists {
			return nil, NewValidationError(step.Name, "name",
				fmt.Sprintf("duplicate step name: %s", step.Name), ErrDuplicateStepName)
		}

		node := &Node{
			Step:       step,
			Name:       step.Name,
			Index:      i,
			DependsOn:  make([]*Node, 0, len(step.DependsOn)),
			Dependents: make([]*Node, 0),
		}
		dag.Nodes[step.Name] = node
		dag.Ordered = append(dag.Ordered, node)
	}

	// Второй проход: связываем узлы по зависимостям
	for _, node := range dag.Ordered {
		for _, depName := range node.Step.DependsOn {
			depNode, exists := dag.Nodes[depName]
			if !exists {
				return nil, NewValidationError(node.Name, "depends_on",
					fmt.Sprintf("depends on unknown step: %s", depName), ErrMissingDependency)
			}
			dag.addEdge(depNode, node)
		}
	}

	// Проверяем на циклы и строим топологический порядок
	order, err := dag.topologicalSort()
	if err != nil {
		return nil, err
	}
	dag.Order = order

	return dag, nil
}

// addEdge добавляет ребро между узлами.
// Дублирующиеся зависимости схлопываются, чтобы не завышать InDegree.
func (d *DAG) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.Name == from.Name {
			return // уже связаны
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ошибку, если обнаружен цикл.
func (d *DAG) topologicalSort() ([]*Node, error) {
	inDegree := make(map[string]int, len(d.Nodes))
	for name, node := range d.Nodes {
		inDegree[name] = node.InDegree
	}

	// Очередь узлов с inDegree = 0, в порядке объявления
	queue := make([]*Node, 0, len(d.Nodes))
	for _, node := range d.Ordered {
		if node.InDegree == 0 {
			queue = append(queue, node)
		}
	}

	order := make([]*Node, 0, len(d.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			inDegree[dependent.Name]--
			if inDegree[dependent.Name] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(d.Nodes) {
		return nil, ErrCyclicDependency
	}

	return order, nil
}

// ReadySteps возвращает шаги, готовые к выполнению.
//
// Шаг готов, если его статус PENDING и все зависимости SUCCEEDED.
// Результат детерминирован: узлы возвращаются в порядке объявления.
//
// states — текущие статусы шагов (имя шага → статус).
func (d *DAG) ReadySteps(states map[string]domain.StepStatus) []*Node {
	ready := make([]*Node, 0)

	for _, node := range d.Ordered {
		if states[node.Name] != domain.StepStatusPending {
			continue
		}

		allDepsSucceeded := true
		for _, dep := range node.DependsOn {
			if states[dep.Name] != domain.StepStatusSucceeded {
				allDepsSucceeded = false
				break
			}
		}

		if allDepsSucceeded {
			ready = append(ready, node)
		}
	}

	return ready
}

// TransitiveDependents возвращает все узлы, прямо или транзитивно
// зависящие от данного шага, в порядке объявления.
//
// Используется для распространения ошибки: упавший шаг делает
// невозможными всех своих зависимых.
func (d *DAG) TransitiveDependents(name string) []*Node {
	start, exists := d.Nodes[name]
	if !exists {
		return nil
	}

	visited := make(map[string]bool)
	queue := []*Node{start}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for _, dep := range node.Dependents {
			if !visited[dep.Name] {
				visited[dep.Name] = true
				queue = append(queue, dep)
			}
		}
	}

	result := make([]*Node, 0, len(visited))
	for _, node := range d.Ordered {
		if visited[node.Name] {
			result = append(result, node)
		}
	}
	return result
}

// GetNode возвращает узел по имени шага.
func (d *DAG) GetNode(name string) *Node {
	return d.Nodes[name]
}

// Size возвращает количество узлов в DAG.
func (d *DAG) Size() int {
	return len(d.Nodes)
}

// RootNodes возвращает узлы без зависимостей (точки входа),
// в порядке объявления.
func (d *DAG) RootNodes() []*Node {
	roots := make([]*Node, 0)
	for _, node := range d.Ordered {
		if node.InDegree == 0 {
			roots = append(roots, node)
		}
	}
	return roots
}
