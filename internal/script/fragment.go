// Package script provides the Fragment, the unit of schedulable shell work.
//
// A Fragment is built up line by line and then sealed. Only sealed fragments
// may be added to a dag.Graph, which assigns each one a stable integer handle.
package script

import (
	"fmt"
	"strings"
)

// Fragment is a named shell script fragment with an optional
// (config, component) tag used for status display.
type Fragment struct {
	summary   string
	config    string
	component string
	final     bool
	preamble  string

	cmds   strings.Builder
	sealed bool
}

// Option configures a Fragment at construction time.
type Option func(*Fragment)

// WithTag attaches the (config, component) tag. Either may be empty.
func WithTag(config, component string) Option {
	return func(f *Fragment) {
		f.config = config
		f.component = component
	}
}

// WithPreamble sets the preamble shared by all fragments of one invocation.
func WithPreamble(preamble string) Option {
	return func(f *Fragment) { f.preamble = preamble }
}

// Final marks the fragment as the last one for its component.
func Final() Option {
	return func(f *Fragment) { f.final = true }
}

// New creates an empty, unsealed fragment.
func New(summary string, opts ...Option) *Fragment {
	f := &Fragment{summary: summary}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Append adds each argument as one command line. Calling Append with no
// arguments adds an empty line. It panics if the fragment is sealed.
func (f *Fragment) Append(lines ...string) {
	if f.sealed {
		panic(fmt.Sprintf("script: append to sealed fragment %q", f.String()))
	}
	if len(lines) == 0 {
		f.cmds.WriteByte('\n')
		return
	}
	for _, l := range lines {
		f.cmds.WriteString(l)
		f.cmds.WriteByte('\n')
	}
}

// Appendf formats a single command line.
func (f *Fragment) Appendf(format string, args ...any) {
	f.Append(fmt.Sprintf(format, args...))
}

// Seal freezes the fragment. Sealing twice is a programming error.
func (f *Fragment) Seal() {
	if f.sealed {
		panic(fmt.Sprintf("script: fragment %q sealed twice", f.String()))
	}
	f.sealed = true
}

// Sealed reports whether Seal has been called.
func (f *Fragment) Sealed() bool { return f.sealed }

// Summary returns the human readable description of the fragment.
func (f *Fragment) Summary() string { return f.summary }

// Config returns the config-name tag, or "" for global fragments.
func (f *Fragment) Config() string { return f.config }

// Component returns the component-name tag, or "".
func (f *Fragment) Component() string { return f.component }

// IsFinal reports whether this is the last fragment for its component.
func (f *Fragment) IsFinal() bool { return f.final }

// Preamble returns the shared preamble.
func (f *Fragment) Preamble() string { return f.preamble }

// Commands returns the command text, optionally prefixed with the preamble.
func (f *Fragment) Commands(withPreamble bool) string {
	if withPreamble {
		return f.preamble + "\n" + f.cmds.String()
	}
	return f.cmds.String()
}

// String renders "config:component summary", or the bare summary for an
// untagged fragment.
func (f *Fragment) String() string {
	if f.config == "" && f.component == "" {
		return f.summary
	}
	return fmt.Sprintf("%s:%s %s", f.config, f.component, f.summary)
}
