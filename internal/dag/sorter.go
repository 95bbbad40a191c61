package dag

import (
	"fmt"
	"slices"

	"github.com/vk/fwrig/internal/script"
)

// Sorter hands out the fragments of a Graph in dependency order. It is not
// safe for concurrent use.
type Sorter struct {
	g *Graph

	pending map[int]int // handle -> prerequisites not yet done
	ready   []int       // released by Done, not yet returned by Ready
	out     map[int]bool
	done    map[int]bool
}

// NewSorter returns a sorter over g. Prepare must be called before use.
func NewSorter(g *Graph) *Sorter {
	return &Sorter{g: g}
}

// Prepare checks the graph for cycles and seeds the sorter with every node
// that has no prerequisites.
func (s *Sorter) Prepare() error {
	if s.pending != nil {
		panic("dag: Prepare called twice")
	}
	if err := s.g.DetectCycles(); err != nil {
		return err
	}

	s.g.mutex.RLock()
	defer s.g.mutex.RUnlock()

	s.pending = make(map[int]int, len(s.g.nodes))
	s.out = make(map[int]bool)
	s.done = make(map[int]bool)
	for _, id := range sortedKeys(s.g.nodes) {
		n := len(s.g.nodes[id].deps)
		s.pending[id] = n
		if n == 0 {
			s.ready = append(s.ready, id)
		}
	}
	return nil
}

// Ready returns every fragment whose prerequisites are all done and that has
// not been returned before, ordered by handle.
func (s *Sorter) Ready() []*script.Fragment {
	s.mustBePrepared()

	slices.Sort(s.ready)
	out := make([]*script.Fragment, 0, len(s.ready))
	for _, id := range s.ready {
		s.out[id] = true
		out = append(out, s.g.Fragment(id))
	}
	s.ready = s.ready[:0]
	return out
}

// Done marks fragments previously returned by Ready as complete, releasing
// their dependents.
func (s *Sorter) Done(frags ...*script.Fragment) {
	s.mustBePrepared()

	s.g.mutex.RLock()
	defer s.g.mutex.RUnlock()

	for _, f := range frags {
		id, ok := s.g.handles[f]
		if !ok {
			panic(fmt.Sprintf("dag: fragment %q is not in the graph", f))
		}
		if !s.out[id] || s.done[id] {
			panic(fmt.Sprintf("dag: fragment %q marked done out of order", f))
		}
		s.done[id] = true

		for _, dep := range sortedKeys(s.g.nodes[id].dependents) {
			s.pending[dep]--
			if s.pending[dep] == 0 {
				s.ready = append(s.ready, dep)
			}
		}
	}
}

// IsActive reports whether any fragment is still waiting, ready, or handed
// out but not done.
func (s *Sorter) IsActive() bool {
	s.mustBePrepared()
	return len(s.done) < len(s.pending)
}

func (s *Sorter) mustBePrepared() {
	if s.pending == nil {
		panic("dag: sorter used before Prepare")
	}
}
