package dag

import (
	"fmt"
	"slices"

	"github.com/vk/fwrig/internal/script"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes:   make(map[int]*node),
		handles: make(map[*script.Fragment]int),
		next:    1,
	}
}

// Add inserts a fragment and returns its handle. Adding the same fragment
// twice returns the existing handle. Adding an unsealed fragment is a
// programming error and panics.
func (g *Graph) Add(f *script.Fragment) int {
	if !f.Sealed() {
		panic(fmt.Sprintf("dag: unsealed fragment %q used as graph node", f))
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if id, ok := g.handles[f]; ok {
		return id
	}

	id := g.next
	g.next++
	g.handles[f] = id
	g.nodes[id] = &node{
		id:         id,
		frag:       f,
		deps:       make(map[int]*node),
		dependents: make(map[int]*node),
	}
	return id
}

// DependsOn records that f may only run after every fragment in deps has
// succeeded. Fragments not yet in the graph are added first.
func (g *Graph) DependsOn(f *script.Fragment, deps ...*script.Fragment) error {
	to := g.Add(f)
	for _, d := range deps {
		if err := g.AddEdge(g.Add(d), to); err != nil {
			return err
		}
	}
	return nil
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. An error is returned
// if either node does not exist or if the edge would create a self-reference.
func (g *Graph) AddEdge(fromID, toID int) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %d -> %d", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %d", fromID)
	}

	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %d", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode

	return nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// Handle returns the handle of f and whether f is in the graph.
func (g *Graph) Handle(f *script.Fragment) (int, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	id, ok := g.handles[f]
	return id, ok
}

// Fragment returns the fragment stored under id, or nil.
func (g *Graph) Fragment(id int) *script.Fragment {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	if n, ok := g.nodes[id]; ok {
		return n.frag
	}
	return nil
}

// Fragments returns every fragment in handle order.
func (g *Graph) Fragments() []*script.Fragment {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	out := make([]*script.Fragment, 0, len(g.nodes))
	for _, id := range sortedKeys(g.nodes) {
		out = append(out, g.nodes[id].frag)
	}
	return out
}

// Dependencies returns the handles of the nodes that the given node depends on.
func (g *Graph) Dependencies(id int) ([]int, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %d", id)
	}
	return sortedKeys(n.deps), nil
}

// Dependents returns the handles of the nodes that depend on the given node.
func (g *Graph) Dependents(id int) ([]int, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %d", id)
	}
	return sortedKeys(n.dependents), nil
}

// DetectCycles checks the graph for any cycles. It returns a non-nil error
// if a cycle is found, naming the first fragment involved in the detected cycle.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Classic depth-first search with three sets of nodes:
	// permanent: nodes that have been fully visited and are not part of a cycle.
	// temporary: nodes currently in the recursion stack for the current traversal.
	// unvisited: all other nodes.
	permanent := make(map[int]bool)
	temporary := make(map[int]bool)

	var visit func(n *node) error
	visit = func(n *node) error {
		if permanent[n.id] {
			return nil
		}
		if temporary[n.id] {
			return fmt.Errorf("cycle detected involving fragment '%s'", n.frag)
		}

		temporary[n.id] = true

		for _, id := range sortedKeys(n.dependents) {
			if err := visit(n.dependents[id]); err != nil {
				return err
			}
		}

		delete(temporary, n.id)
		permanent[n.id] = true

		return nil
	}

	for _, id := range sortedKeys(g.nodes) {
		if err := visit(g.nodes[id]); err != nil {
			return err
		}
	}

	return nil
}

// TopologicalOrder returns every fragment such that each appears after all of
// its prerequisites. Ties are broken by handle.
func (g *Graph) TopologicalOrder() ([]*script.Fragment, error) {
	s := NewSorter(g)
	if err := s.Prepare(); err != nil {
		return nil, err
	}

	out := make([]*script.Fragment, 0, g.Len())
	for s.IsActive() {
		ready := s.Ready()
		out = append(out, ready...)
		s.Done(ready...)
	}
	return out, nil
}

func sortedKeys(m map[int]*node) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
