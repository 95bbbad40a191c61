// Package label draws a block of status lines that are redrawn in place.
//
// A Controller owns an ordered list of Labels. When the output is a terminal
// the block is overdrawn by moving the cursor up over the previous render;
// otherwise only labels whose text changed are printed, as an append-only log.
package label

import (
	"io"
	"strings"

	"golang.org/x/term"
)

const cursorPrevLine = "\033[F"

// Label is one status line.
type Label struct {
	text     string
	prevText string
	rendered int
	lc       *Controller
}

// New returns a label holding text.
func New(text string) *Label {
	return &Label{text: text}
}

// Update stores text; nothing is drawn until the controller's Update.
func (l *Label) Update(text string) {
	l.text = text
	if l.lc != nil {
		l.lc.pending = true
	}
}

// Text returns the current text.
func (l *Label) Text() string {
	return l.text
}

// Controller renders a set of labels. It is not safe for concurrent use.
type Controller struct {
	w      io.Writer
	labels []*Label

	overdraw bool
	cols     int

	first   bool
	pending bool
	skip    bool
}

// fdWriter is implemented by *os.File.
type fdWriter interface {
	io.Writer
	Fd() uintptr
}

// NewController returns a controller drawing labels to w. Overdraw is only
// enabled when requested and w is a terminal whose size can be read.
func NewController(w io.Writer, labels []*Label, overdraw bool) *Controller {
	c := &Controller{w: w, labels: labels, first: true, pending: true}
	if overdraw {
		if f, ok := w.(fdWriter); ok && term.IsTerminal(int(f.Fd())) {
			if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
				c.overdraw = true
				c.cols = cols
			}
		}
	}
	for _, l := range labels {
		l.lc = c
	}
	return c
}

// NewTerminalController returns a controller that always overdraws,
// assuming a terminal cols columns wide.
func NewTerminalController(w io.Writer, labels []*Label, cols int) *Controller {
	c := NewController(w, labels, false)
	c.overdraw = cols > 0
	c.cols = cols
	return c
}

// Overdraw reports whether the controller redraws in place.
func (c *Controller) Overdraw() bool {
	return c.overdraw
}

// SkipOverdrawOnce makes the next Update start below whatever has been
// written since the last render instead of moving up over it.
func (c *Controller) SkipOverdrawOnce() {
	c.skip = true
}

// Update redraws the labels if any changed since the last call.
func (c *Controller) Update() error {
	if !c.pending {
		return nil
	}

	var b strings.Builder
	if !c.first && c.overdraw && !c.skip {
		lines := 0
		for _, l := range c.labels {
			lines += c.lineCount(l.rendered)
		}
		b.WriteString(strings.Repeat(cursorPrevLine, lines))
	}

	for _, l := range c.labels {
		if !c.overdraw && l.text == l.prevText {
			continue
		}
		b.WriteString(l.text)
		if pad := len(l.prevText) - len(l.text); pad > 0 && c.overdraw {
			b.WriteString(strings.Repeat(" ", pad))
		}
		b.WriteByte('\n')
		l.rendered = max(len(l.text), len(l.prevText))
		l.prevText = l.text
	}

	c.first = false
	c.pending = false
	c.skip = false

	_, err := io.WriteString(c.w, b.String())
	return err
}

// lineCount returns how many terminal rows n characters plus a newline take.
func (c *Controller) lineCount(n int) int {
	if n == 0 {
		return 1
	}
	return (n + c.cols - 1) / c.cols
}
