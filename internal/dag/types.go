package dag

import (
	"sync"

	"github.com/vk/fwrig/internal/script"
)

// Graph is a collection of fragments and their prerequisites, representing a
// DAG. All operations on the graph are concurrency-safe.
type Graph struct {
	// mutex protects the maps below.
	mutex sync.RWMutex
	// nodes stores all nodes in the graph, keyed by handle.
	nodes map[int]*node
	// handles maps a fragment back to the handle it was given.
	handles map[*script.Fragment]int
	// next is the handle the next added fragment receives.
	next int
}

// node represents a single vertex in the graph. It is un-exported to
// enforce interaction with the graph via the public API.
type node struct {
	id   int
	frag *script.Fragment
	// deps holds the set of nodes that this node depends on (predecessors).
	deps map[int]*node
	// dependents holds the set of nodes that depend on this node (successors).
	dependents map[int]*node
}
