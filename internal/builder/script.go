package builder

import (
	"strings"

	"github.com/vk/fwrig/internal/dag"
)

// MakeScript concatenates every fragment of g in dependency order into one
// script. The shared preamble is emitted once, from the first fragment.
func MakeScript(g *dag.Graph) (string, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return "", err
	}
	if len(order) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString(order[0].Preamble())
	b.WriteByte('\n')
	for _, f := range order {
		b.WriteString(f.Commands(false))
		b.WriteByte('\n')
	}
	return b.String(), nil
}
