package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSorter(t *testing.T) {
	t.Run("releases dependents only when all prerequisites are done", func(t *testing.T) {
		// --- Arrange ---
		g := New()
		a, b, c := frag("A"), frag("B"), frag("C")
		require.NoError(t, g.DependsOn(c, a, b))
		s := NewSorter(g)
		require.NoError(t, s.Prepare())

		// --- Act & Assert ---
		assert.Equal(t, []string{"A", "B"}, summaries(s.Ready()))
		assert.Empty(t, s.Ready(), "ready nodes are only handed out once")

		s.Done(a)
		assert.Empty(t, s.Ready(), "C still waits for B")
		assert.True(t, s.IsActive())

		s.Done(b)
		assert.Equal(t, []string{"C"}, summaries(s.Ready()))
		assert.True(t, s.IsActive(), "C is handed out but not done")

		s.Done(c)
		assert.False(t, s.IsActive())
	})

	t.Run("empty graph is inactive", func(t *testing.T) {
		s := NewSorter(New())
		require.NoError(t, s.Prepare())
		assert.False(t, s.IsActive())
		assert.Empty(t, s.Ready())
	})

	t.Run("prepare reports cycles", func(t *testing.T) {
		g := New()
		a, b := frag("a"), frag("b")
		require.NoError(t, g.DependsOn(a, b))
		require.NoError(t, g.DependsOn(b, a))
		assert.ErrorContains(t, NewSorter(g).Prepare(), "cycle detected")
	})

	t.Run("misuse panics", func(t *testing.T) {
		g := New()
		a, b := frag("a"), frag("b")
		require.NoError(t, g.DependsOn(b, a))

		assert.Panics(t, func() { NewSorter(g).Ready() }, "use before Prepare")

		s := NewSorter(g)
		require.NoError(t, s.Prepare())
		assert.Panics(t, func() { s.Done(b) }, "done before handed out")
		assert.Panics(t, func() { s.Done(frag("stranger")) }, "unknown fragment")
	})
}
