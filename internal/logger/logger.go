// Package logger multiplexes the output of many processes onto one writer.
//
// Every line is prefixed with a fixed-width, right-justified tag naming the
// process that produced it, and each process is given a colour from a small
// palette as it is registered. Output from different processes may arrive
// interleaved at any byte boundary; the logger keeps track of who owns the
// current unterminated line so that two sources never share a visual line.
package logger

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/gookit/color"
	"github.com/vk/fwrig/internal/process"
)

// palette is assigned round-robin as sources are registered.
var palette = []color.Color{
	color.FgBlue,
	color.FgCyan,
	color.FgGreen,
	color.FgYellow,
	color.FgMagenta,
	color.FgGray,
}

var ansiEscape = regexp.MustCompile(`\x1b(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)

// Source is the display metadata of one registered process.
type Source struct {
	Tag   string
	Color color.Color
}

// Logger writes tagged process output. It is not safe for concurrent use; it
// is driven from a process manager's loop.
type Logger struct {
	w        io.Writer
	tagSize  int
	colorize bool

	next    int
	sources map[*process.Process]Source

	prevTag  string
	prevChar byte
}

// New returns a logger writing to w with tags padded or truncated to tagSize.
func New(w io.Writer, tagSize int, colorize bool) *Logger {
	return &Logger{
		w:        w,
		tagSize:  tagSize,
		colorize: colorize,
		sources:  make(map[*process.Process]Source),
		prevChar: '\n',
	}
}

// Alloc returns display metadata for tag with the next colour of the palette.
func (l *Logger) Alloc(tag string) Source {
	c := palette[l.next]
	l.next = (l.next + 1) % len(palette)
	return Source{Tag: tag, Color: c}
}

// Register associates p with tag and allocates its colour.
func (l *Logger) Register(p *process.Process, tag string) Source {
	src := l.Alloc(tag)
	l.sources[p] = src
	return src
}

// Forget drops the metadata of p.
func (l *Logger) Forget(p *process.Process) {
	delete(l.sources, p)
}

// Source returns the metadata registered for p.
func (l *Logger) Source(p *process.Process) (Source, bool) {
	src, ok := l.sources[p]
	return src, ok
}

// Tag returns tag right-justified to the logger's width, truncated with an
// ellipsis when it is too long.
func (l *Logger) Tag(tag string) string {
	return FormatTag(tag, l.tagSize)
}

// FormatTag right-justifies tag to size, truncating it with "..." when it
// does not fit.
func FormatTag(tag string, size int) string {
	if r := []rune(tag); len(r) > size {
		if size > 3 {
			tag = string(r[:size-3]) + "..."
		} else {
			tag = string(r[:size])
		}
	}
	return fmt.Sprintf("%*s", size, tag)
}

// Log writes data produced by p. Its signature matches
// process.OutputHandler so it can be installed on a manager directly.
// Processes that were never registered are tagged with their command line.
func (l *Logger) Log(_ *process.Manager, p *process.Process, data []byte, _ process.StreamID) error {
	src, ok := l.sources[p]
	if !ok {
		src = l.Register(p, p.String())
	}
	return l.Write(src, data)
}

// Write logs data on behalf of src.
func (l *Logger) Write(src Source, data []byte) error {
	data = ansiEscape.ReplaceAll(data, nil)
	if len(data) == 0 {
		return nil
	}
	text := normalizeNewlines(string(data))
	tag := l.Tag(src.Tag)
	prefix := "[ " + tag + " ] "

	lines := splitLines(text)
	var out strings.Builder

	start := 0
	if l.prevChar != '\n' {
		if l.prevTag == tag {
			out.WriteString(l.paint(src, returnToTag(lines[0], prefix)))
			start = 1
		} else {
			out.WriteByte('\n')
		}
	}
	for _, line := range lines[start:] {
		out.WriteString(l.paint(src, prefix+returnToTag(line, prefix)))
	}

	l.prevTag = tag
	l.prevChar = text[len(text)-1]

	_, err := io.WriteString(l.w, out.String())
	return err
}

// Newline terminates an open line, if any, so that following output from
// outside the logger starts in column zero.
func (l *Logger) Newline() error {
	if l.prevChar == '\n' {
		return nil
	}
	l.prevChar = '\n'
	_, err := io.WriteString(l.w, "\n")
	return err
}

func (l *Logger) paint(src Source, s string) string {
	if !l.colorize {
		return s
	}
	// Colour each visual line separately so that the reset code never
	// swallows the newline.
	body, nl := strings.CutSuffix(s, "\n")
	out := src.Color.Render(body)
	if nl {
		out += "\n"
	}
	return out
}

// normalizeNewlines folds the CRLF variants produced by terminals into "\n".
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\r\n", "\n")
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// splitLines splits s after every "\n", keeping the terminators.
func splitLines(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// returnToTag rewrites carriage returns so the cursor returns to the end of
// the tag rather than to column zero.
func returnToTag(line, prefix string) string {
	return strings.ReplaceAll(line, "\r", "\r"+prefix)
}
