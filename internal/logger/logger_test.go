package logger

import (
	"bytes"
	"testing"

	"github.com/gookit/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/fwrig/internal/process"
)

func TestFormatTag(t *testing.T) {
	testCases := []struct {
		name string
		tag  string
		size int
		want string
	}{
		{name: "pads on the left", tag: "uart0", size: 8, want: "   uart0"},
		{name: "exact fit", tag: "12345678", size: 8, want: "12345678"},
		{name: "truncates with ellipsis", tag: "terminal_long", size: 8, want: "termi..."},
		{name: "tiny width", tag: "abcdef", size: 2, want: "ab"},
		{name: "truncates by rune", tag: "консоль-uart", size: 8, want: "консо..."},
		{name: "pads by rune", tag: "ü0", size: 4, want: "  ü0"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatTag(tc.tag, tc.size))
		})
	}
}

func TestLogger_TagsEveryLine(t *testing.T) {
	// --- Arrange ---
	var buf bytes.Buffer
	l := New(&buf, 5, false)
	p := process.New([]string{"true"}, false, true)
	l.Register(p, "fvp")

	// --- Act ---
	require.NoError(t, l.Log(nil, p, []byte("one\ntwo\n"), process.Stdout))

	// --- Assert ---
	assert.Equal(t, "[   fvp ] one\n[   fvp ] two\n", buf.String())
}

func TestLogger_InterleavedSources(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, 1, false)
	a := process.New([]string{"a"}, false, true)
	b := process.New([]string{"b"}, false, true)
	l.Register(a, "A")
	l.Register(b, "B")

	require.NoError(t, l.Log(nil, a, []byte("a1"), process.Stdout))
	// Same source continues the open line without a new tag.
	require.NoError(t, l.Log(nil, a, []byte("a2"), process.Stdout))
	// A different source forces a line break first.
	require.NoError(t, l.Log(nil, b, []byte("b1"), process.Stdout))
	// A is re-tagged since B now owns the open line.
	require.NoError(t, l.Log(nil, a, []byte("a3\n"), process.Stdout))
	// After a newline every chunk starts with a tag, even for the same source.
	require.NoError(t, l.Log(nil, a, []byte("a4\n"), process.Stdout))

	want := "[ A ] a1a2\n" +
		"[ B ] b1\n" +
		"[ A ] a3\n" +
		"[ A ] a4\n"
	assert.Equal(t, want, buf.String())
}

func TestLogger_Normalization(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{name: "crlf", in: "x\r\ny\r\n", want: "[ t ] x\n[ t ] y\n"},
		{name: "double cr", in: "x\r\r\n", want: "[ t ] x\n"},
		{name: "lone cr returns to tag", in: "10%\r20%\n", want: "[ t ] 10%\r[ t ] 20%\n"},
		{name: "ansi stripped", in: "\x1b[1;32mgreen\x1b[0m\n", want: "[ t ] green\n"},
		{name: "only escapes", in: "\x1b[2J", want: ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(&buf, 1, false)
			require.NoError(t, l.Write(Source{Tag: "t"}, []byte(tc.in)))
			assert.Equal(t, tc.want, buf.String())
		})
	}
}

func TestLogger_PaletteRoundRobin(t *testing.T) {
	l := New(&bytes.Buffer{}, 4, true)
	var got []color.Color
	for i := 0; i < len(palette)+1; i++ {
		got = append(got, l.Alloc("x").Color)
	}
	assert.Equal(t, palette[0], got[len(palette)])
	assert.Equal(t, []color.Color{color.FgBlue, color.FgCyan, color.FgGreen}, got[:3])
}

func TestLogger_UnregisteredAndForget(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, 8, false)
	p := process.New([]string{"echo", "hi"}, false, true)

	require.NoError(t, l.Log(nil, p, []byte("hi\n"), process.Stdout))
	assert.Equal(t, "[ echo hi ] hi\n", buf.String())

	_, ok := l.Source(p)
	assert.True(t, ok)
	l.Forget(p)
	_, ok = l.Source(p)
	assert.False(t, ok)
}

func TestLogger_Newline(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, 1, false)
	require.NoError(t, l.Newline())
	assert.Empty(t, buf.String())

	require.NoError(t, l.Write(Source{Tag: "t"}, []byte("open")))
	require.NoError(t, l.Newline())
	require.NoError(t, l.Write(Source{Tag: "t"}, []byte("next\n")))
	assert.Equal(t, "[ t ] open\n[ t ] next\n", buf.String())
}

func TestLogger_ColorizedKeepsText(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, 1, true)
	require.NoError(t, l.Write(Source{Tag: "t", Color: color.FgGreen}, []byte("hello\n")))
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "[ t ]")
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")))
}
