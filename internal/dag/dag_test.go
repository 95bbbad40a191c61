package dag

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/fwrig/internal/script"
)

func frag(summary string) *script.Fragment {
	f := script.New(summary)
	f.Seal()
	return f
}

func summaries(frags []*script.Fragment) []string {
	out := make([]string, 0, len(frags))
	for _, f := range frags {
		out = append(out, f.Summary())
	}
	return out
}

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.NotNil(t, g.nodes)
	assert.Empty(t, g.nodes)
	assert.Equal(t, 0, g.Len())
}

func TestAdd(t *testing.T) {
	g := New()
	a, b := frag("a"), frag("b")

	idA := g.Add(a)
	assert.Equal(t, 1, idA)
	assert.Equal(t, idA, g.Add(a), "adding twice must return the same handle")

	idB := g.Add(b)
	assert.Equal(t, 2, idB)
	assert.Equal(t, 2, g.Len())

	got, ok := g.Handle(b)
	require.True(t, ok)
	assert.Equal(t, idB, got)
	assert.Same(t, b, g.Fragment(idB))
	assert.Nil(t, g.Fragment(42))

	t.Run("identical content gets distinct handles", func(t *testing.T) {
		g := New()
		assert.NotEqual(t, g.Add(frag("same")), g.Add(frag("same")))
	})

	t.Run("unsealed fragment panics", func(t *testing.T) {
		g := New()
		assert.Panics(t, func() { g.Add(script.New("open")) })
	})
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		a := g.Add(frag("a"))
		b := g.Add(frag("b"))

		require.NoError(t, g.AddEdge(a, b)) // b depends on a

		deps, err := g.Dependencies(b)
		require.NoError(t, err)
		assert.Equal(t, []int{a}, deps)

		dependents, err := g.Dependents(a)
		require.NoError(t, err)
		assert.Equal(t, []int{b}, dependents)
	})

	t.Run("error cases", func(t *testing.T) {
		g := New()
		a := g.Add(frag("a"))

		assert.ErrorContains(t, g.AddEdge(99, a), "source node not found")
		assert.ErrorContains(t, g.AddEdge(a, 99), "destination node not found")
		assert.ErrorContains(t, g.AddEdge(a, a), "self-referential edge")

		_, err := g.Dependencies(99)
		assert.ErrorContains(t, err, "node not found")
		_, err = g.Dependents(99)
		assert.ErrorContains(t, err, "node not found")
	})
}

func TestDependsOn(t *testing.T) {
	g := New()
	a, b, c := frag("a"), frag("b"), frag("c")

	require.NoError(t, g.DependsOn(c, a, b))
	require.NoError(t, g.DependsOn(a))

	assert.Equal(t, 3, g.Len())
	idC, _ := g.Handle(c)
	deps, err := g.Dependencies(idC)
	require.NoError(t, err)
	assert.Len(t, deps, 2)
}

func TestDetectCycles(t *testing.T) {
	t.Run("empty graph has no cycles", func(t *testing.T) {
		assert.NoError(t, New().DetectCycles())
	})

	t.Run("valid dag has no cycles", func(t *testing.T) {
		g := New()
		a, b, c, d := frag("a"), frag("b"), frag("c"), frag("d")
		require.NoError(t, g.DependsOn(b, a))
		require.NoError(t, g.DependsOn(c, a, b)) // Transitive edge
		require.NoError(t, g.DependsOn(d, c))
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("simple direct cycle is detected", func(t *testing.T) {
		g := New()
		a, b := frag("a"), frag("b")
		require.NoError(t, g.DependsOn(b, a))
		require.NoError(t, g.DependsOn(a, b))
		assert.ErrorContains(t, g.DetectCycles(), "cycle detected")
	})

	t.Run("cycle in a disjoint component is detected", func(t *testing.T) {
		g := New()
		require.NoError(t, g.DependsOn(frag("b"), frag("a")))

		x, y, z := frag("x"), frag("y"), frag("z")
		require.NoError(t, g.DependsOn(y, x))
		require.NoError(t, g.DependsOn(z, y))
		require.NoError(t, g.DependsOn(y, z))

		assert.ErrorContains(t, g.DetectCycles(), "cycle detected")
	})
}

func TestTopologicalOrder(t *testing.T) {
	g := New()
	clean, mkdir := frag("clean"), frag("mkdir")
	syncA, buildA := frag("sync a"), frag("build a")
	syncB, buildB := frag("sync b"), frag("build b")
	copyArt := frag("copy")

	require.NoError(t, g.DependsOn(mkdir, clean))
	require.NoError(t, g.DependsOn(syncA, clean))
	require.NoError(t, g.DependsOn(syncB, clean))
	require.NoError(t, g.DependsOn(buildA, syncA))
	require.NoError(t, g.DependsOn(buildB, syncB, buildA))
	require.NoError(t, g.DependsOn(copyArt, mkdir, buildA, buildB))

	order, err := g.TopologicalOrder()
	require.NoError(t, err)

	want := []string{"clean", "mkdir", "sync a", "sync b", "build a", "build b", "copy"}
	if diff := cmp.Diff(want, summaries(order)); diff != "" {
		t.Errorf("TopologicalOrder() mismatch (-want +got):\n%s", diff)
	}
}
