// Package graph tracks which cells reference which, in both directions, and
// computes the order in which dependents must be recomputed after a change.
package graph

import (
	"maps"
	"slices"
	"sync"

	"github.com/vogtb/sheetd/packages/ranges"
)

// Record is the definition of a cell: its expression, the variable tokens
// (cells and ranges) the expression references and the generation that
// orders it against other definitions of the same cell
type Record struct {
	Expression string
	Variables  []string
	Generation uint64
}

// node represents a cell in the dependency graph
type node struct {
	record Record
	// defined is false for cells that are only ever referenced
	defined bool

	precedents map[string]struct{} // cells this cell reads
	dependents map[string]struct{} // cells that read this cell
}

// Graph manages cell dependencies and recomputation order. one lock guards
// all nodes; no method calls out while holding it.
type Graph struct {
	mu    sync.Mutex
	nodes map[string]*node
}

func New() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// getOrCreateNode gets an existing node or creates a new one. callers hold mu.
func (g *Graph) getOrCreateNode(name string) *node {
	if n, exists := g.nodes[name]; exists {
		return n
	}
	n := &node{
		precedents: make(map[string]struct{}),
		dependents: make(map[string]struct{}),
	}
	g.nodes[name] = n
	return n
}

// cleanupNodeIfEmpty removes a node with no definition and no edges
func (g *Graph) cleanupNodeIfEmpty(name string) {
	n, exists := g.nodes[name]
	if !exists {
		return
	}
	if n.defined || len(n.precedents) > 0 || len(n.dependents) > 0 {
		return
	}
	delete(g.nodes, name)
}

// Precedents expands variable tokens into the set of cells they read.
// ranges contribute every covered cell; tokens that do not parse contribute
// nothing, since they cannot change.
func Precedents(variables []string) map[string]struct{} {
	out := make(map[string]struct{}, len(variables))
	for _, v := range variables {
		if !ranges.IsRange(v) {
			out[v] = struct{}{}
			continue
		}
		r, err := ranges.Parse(v)
		if err != nil {
			continue
		}
		for _, name := range r.Cells() {
			out[name] = struct{}{}
		}
	}
	return out
}

// RecordDependency replaces the definition of target and updates every
// affected dependent set in one step. target is added to the dependents of
// each cell it now reads and removed from those it no longer reads; the set
// of cells that read target is left alone. a self edge is never recorded.
// a record older than the current definition is ignored and false returned.
func (g *Graph) RecordDependency(target string, rec Record) bool {
	precedents := Precedents(rec.Variables)
	delete(precedents, target)

	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.getOrCreateNode(target)
	if n.defined && rec.Generation < n.record.Generation {
		return false
	}

	for old := range n.precedents {
		if _, still := precedents[old]; still {
			continue
		}
		if p, exists := g.nodes[old]; exists {
			delete(p.dependents, target)
			g.cleanupNodeIfEmpty(old)
		}
	}

	for name := range precedents {
		g.getOrCreateNode(name).dependents[target] = struct{}{}
	}

	n.precedents = precedents
	n.record = Record{
		Expression: rec.Expression,
		Variables:  slices.Clone(rec.Variables),
		Generation: rec.Generation,
	}
	n.defined = true
	return true
}

// DependentsOf returns the cells directly reading name, sorted
func (g *Graph) DependentsOf(name string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, exists := g.nodes[name]
	if !exists {
		return nil
	}
	return slices.Sorted(maps.Keys(n.dependents))
}

// PrecedentsOf returns the cells name directly reads, sorted
func (g *Graph) PrecedentsOf(name string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, exists := g.nodes[name]
	if !exists {
		return nil
	}
	return slices.Sorted(maps.Keys(n.precedents))
}

// RecordOf returns the definition of name, if it has ever been set
func (g *Graph) RecordOf(name string) (Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, exists := g.nodes[name]
	if !exists || !n.defined {
		return Record{}, false
	}
	rec := n.record
	rec.Variables = slices.Clone(rec.Variables)
	return rec, true
}

// Len returns the number of nodes in the graph, defined or only referenced
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}
