package graph

import (
	"fmt"
	"strings"
)

// Graph is a validated, immutable set of deployment steps.
type Graph struct {
	name  string
	steps []Step
	index map[string]int
	order []string
}

func (g *Graph) Name() string {
	return g.name
}

// Steps returns the steps in declaration order.
func (g *Graph) Steps() []Step {
	steps := make([]Step, 0, len(g.steps))
	for _, step := range g.steps {
		steps = append(steps, step.clone())
	}
	return steps
}

func (g *Graph) Step(id string) (Step, bool) {
	i, ok := g.index[id]
	if !ok {
		return Step{}, false
	}
	return g.steps[i].clone(), true
}

func (g *Graph) Len() int {
	return len(g.steps)
}

// TopologicalOrder returns step ids so that every dependency precedes its
// dependents. Independent steps keep their declaration order.
func (g *Graph) TopologicalOrder() []string {
	return append([]string(nil), g.order...)
}

// Dependents returns every step that directly or transitively depends on id,
// in topological order.
func (g *Graph) Dependents(id string) []string {
	var dependents []string
	for _, candidate := range g.order {
		if candidate == id {
			continue
		}
		if _, ok := g.ancestors(candidate)[id]; ok {
			dependents = append(dependents, candidate)
		}
	}
	return dependents
}

// sort is Kahn's algorithm picking the earliest declared ready step each round.
func (g *Graph) sort() ([]string, error) {
	emitted := make(map[string]bool, len(g.steps))
	order := make([]string, 0, len(g.steps))

	for len(order) < len(g.steps) {
		progressed := false
		for _, step := range g.steps {
			if emitted[step.ID] || !g.ready(step, emitted) {
				continue
			}
			emitted[step.ID] = true
			order = append(order, step.ID)
			progressed = true
			break
		}

		if !progressed {
			var stuck []string
			for _, step := range g.steps {
				if !emitted[step.ID] {
					stuck = append(stuck, step.ID)
				}
			}
			return nil, fmt.Errorf("%w among steps [%s]", ErrCyclicDependency, strings.Join(stuck, ", "))
		}
	}

	return order, nil
}

func (g *Graph) ready(step Step, emitted map[string]bool) bool {
	for _, dep := range step.Dependencies {
		if !emitted[dep] {
			return false
		}
	}
	return true
}

// ancestors returns the transitive dependencies of id.
func (g *Graph) ancestors(id string) map[string]struct{} {
	seen := make(map[string]struct{})
	stack := []string{id}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		i, ok := g.index[current]
		if !ok {
			continue
		}
		for _, dep := range g.steps[i].Dependencies {
			if _, visited := seen[dep]; visited {
				continue
			}
			seen[dep] = struct{}{}
			stack = append(stack, dep)
		}
	}
	return seen
}
