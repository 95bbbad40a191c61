package config

import (
	"fmt"
	"slices"
)

// Store is the set of configs found in the config store, sorted by name.
type Store struct {
	Configs []*Config
}

// Lookup returns the config with the given name.
func (s *Store) Lookup(name string) (*Config, bool) {
	for _, c := range s.Configs {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Select returns the named configs in the given order, or every concrete
// config when names is empty.
func (s *Store) Select(names ...string) ([]*Config, error) {
	if len(names) == 0 {
		var out []*Config
		for _, c := range s.Configs {
			if c.Concrete {
				out = append(out, c)
			}
		}
		return out, nil
	}

	out := make([]*Config, 0, len(names))
	for _, n := range names {
		c, ok := s.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown config '%s'", n)
		}
		out = append(out, c)
	}
	return out, nil
}

// Config is one fully build-time-resolved configuration.
type Config struct {
	Name        string
	Description string
	// Concrete configs are built by default; the rest only exist to be
	// named explicitly.
	Concrete bool
	// File is the file the config was declared in.
	File string

	// Components are sorted by name.
	Components []*Component
	// Artifacts are sorted by name.
	Artifacts []Artifact
	// RunVars are the declared run-time variables, sorted by name.
	RunVars []RunVar
}

// Component returns the named component.
func (c *Config) Component(name string) (*Component, bool) {
	for _, comp := range c.Components {
		if comp.Name == name {
			return comp, true
		}
	}
	return nil, false
}

// Component is one buildable unit of a config. All command text is fully
// substituted.
type Component struct {
	Name      string
	Repos     []Repo
	SourceDir string
	BuildDir  string
	Params    map[string]string
	Prebuild  []string
	Build     []string
	Postbuild []string
	Clean     []string
	// DependsOn lists the components that must be built first, sorted.
	// It merges explicit dependencies with those implied by artifact
	// references.
	DependsOn []string
	// Artifacts maps artifact name to its path in the build tree.
	Artifacts map[string]string
}

// Repo is a git checkout placed at Dir relative to the component source
// directory.
type Repo struct {
	Dir      string
	Remote   string
	Revision string
}

// Artifact is a build output copied into the package tree.
type Artifact struct {
	Name      string
	Component string
	// Src is the absolute path in the build tree.
	Src string
	// Dst is the path relative to the package root: <config>/<basename>.
	Dst string
}

// RunVar is a run-time variable declaration.
type RunVar struct {
	Name string
	// Type is "path" or "string". Path values are made absolute.
	Type       string
	Default    string
	HasDefault bool
}

// Run is the resolved run descriptor of a config.
type Run struct {
	Config string
	// Vars holds the final value of every run-time variable.
	Vars      map[string]string
	PathVars  []string
	Prerun    []string
	Run       []string
	Terminals []Terminal
}

// TerminalKind selects how a simulator terminal is reached.
type TerminalKind string

const (
	// KindStdout is an output-only terminal bridged by nc.
	KindStdout TerminalKind = "stdout"
	// KindStdinout is an interactive terminal bridged by telnet in a pty.
	KindStdinout TerminalKind = "stdinout"
	// KindXterm is opened by the simulator itself.
	KindXterm TerminalKind = "xterm"
	// KindTelnet is dialled by the user.
	KindTelnet TerminalKind = "telnet"
)

var terminalKinds = []TerminalKind{KindStdout, KindStdinout, KindXterm, KindTelnet}

// ParseTerminalKind validates a terminal type string.
func ParseTerminalKind(s string) (TerminalKind, error) {
	k := TerminalKind(s)
	if !slices.Contains(terminalKinds, k) {
		return "", fmt.Errorf("unknown terminal type '%s', expected one of %v", s, terminalKinds)
	}
	return k, nil
}

// Terminal describes one auxiliary simulator terminal.
type Terminal struct {
	// Name is the simulator parameter prefix, e.g. bp.terminal_0.
	Name string
	// Friendly is the display name used as the log tag.
	Friendly  string
	Kind      TerminalKind
	PortRegex string
	// Bridge optionally overrides the companion command. The token
	// "{port}" is replaced with the discovered port.
	Bridge []string
}
