package graph

import (
	"maps"
	"slices"
)

// Plan lists what must be recomputed after a change to one cell
type Plan struct {
	// Order holds every transitive dependent of the origin exactly once,
	// each after all of the cells it reads
	Order []string
	// Cyclic holds the cells on a dependency cycle reachable from the
	// origin, the origin included if it is on one. these cannot be
	// evaluated and are stamped with an error instead.
	Cyclic []string
	// Generations holds the definition generation of every listed cell at
	// the time the plan was made
	Generations map[string]uint64
}

// Empty reports whether nothing needs recomputation
func (p Plan) Empty() bool {
	return len(p.Order) == 0 && len(p.Cyclic) == 0
}

// Plan walks the dependents of origin and returns them in recomputation
// order. strongly connected components are found with Tarjan's algorithm,
// which emits each component only after every component reachable from it;
// reversing that emission order gives a topological order of the
// components, and any component with more than one member is a cycle.
func (g *Graph) Plan(origin string) Plan {
	g.mu.Lock()
	defer g.mu.Unlock()

	var (
		index    = make(map[string]int)
		lowlink  = make(map[string]int)
		onStack  = make(map[string]bool)
		stack    []string
		counter  int
		emission [][]string
	)

	var visit func(name string)
	visit = func(name string) {
		index[name] = counter
		lowlink[name] = counter
		counter++
		stack = append(stack, name)
		onStack[name] = true

		if n, exists := g.nodes[name]; exists {
			for _, dep := range slices.Sorted(maps.Keys(n.dependents)) {
				if _, seen := index[dep]; !seen {
					visit(dep)
					lowlink[name] = min(lowlink[name], lowlink[dep])
				} else if onStack[dep] {
					lowlink[name] = min(lowlink[name], index[dep])
				}
			}
		}

		// name is the root of a component: pop it
		if lowlink[name] == index[name] {
			var component []string
			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[top] = false
				component = append(component, top)
				if top == name {
					break
				}
			}
			emission = append(emission, component)
		}
	}
	visit(origin)

	plan := Plan{Generations: make(map[string]uint64)}
	for i := len(emission) - 1; i >= 0; i-- {
		component := emission[i]
		if g.isCycle(component) {
			for _, name := range component {
				plan.Cyclic = append(plan.Cyclic, name)
				plan.Generations[name] = g.nodes[name].record.Generation
			}
			continue
		}
		if component[0] != origin {
			plan.Order = append(plan.Order, component[0])
			plan.Generations[component[0]] = g.nodes[component[0]].record.Generation
		}
	}
	slices.Sort(plan.Cyclic)
	return plan
}

// isCycle reports whether a strongly connected component is a cycle
func (g *Graph) isCycle(component []string) bool {
	if len(component) > 1 {
		return true
	}
	n, exists := g.nodes[component[0]]
	if !exists {
		return false
	}
	_, self := n.dependents[component[0]]
	return self
}
