package scheduler

import (
	"fmt"
	"io"

	"github.com/vk/fwrig/internal/label"
	"github.com/vk/fwrig/internal/script"
)

const (
	configTagSize    = 16
	componentTagSize = 8
)

// statusLabel is the label of one (config, component) pair. Once the pair's
// final fragment has completed the label is frozen.
type statusLabel struct {
	config    string
	component string
	label     *label.Label
	frozen    bool
}

// board owns the status labels of one scheduler run.
type board struct {
	labels []*statusLabel
	lc     *label.Controller
}

// newBoard creates one label per distinct (config, component) tag, in the
// order the tags first appear in frags.
func newBoard(w io.Writer, frags []*script.Fragment, overdraw bool) *board {
	b := &board{}
	seen := make(map[[2]string]bool)
	var ls []*label.Label
	for _, f := range frags {
		if f.Config() == "" || f.Component() == "" {
			continue
		}
		key := [2]string{f.Config(), f.Component()}
		if seen[key] {
			continue
		}
		seen[key] = true
		l := label.New("")
		ls = append(ls, l)
		b.labels = append(b.labels, &statusLabel{config: f.Config(), component: f.Component(), label: l})
	}
	b.lc = label.NewController(w, ls, overdraw)
	return b
}

// statusTag renders "[ <config> : <component> ]" with fixed-width fields.
func statusTag(config, component string) string {
	return fmt.Sprintf("[ %*s : %-*s ]",
		configTagSize, clamp(config, configTagSize),
		componentTagSize, clamp(component, componentTagSize))
}

func clamp(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}

// set updates every unfrozen label matching config and component. An empty
// config matches every label; an empty component matches every component of
// the config.
func (b *board) set(config, component, text string) {
	for _, sl := range b.matching(config, component) {
		if !sl.frozen {
			sl.label.Update(statusTag(sl.config, sl.component) + " " + text)
		}
	}
}

// freeze stops further updates of the matching labels.
func (b *board) freeze(config, component string) {
	for _, sl := range b.matching(config, component) {
		sl.frozen = true
	}
}

func (b *board) matching(config, component string) []*statusLabel {
	var out []*statusLabel
	for _, sl := range b.labels {
		if config != "" && sl.config != config {
			continue
		}
		if component != "" && sl.component != component {
			continue
		}
		out = append(out, sl)
	}
	return out
}

func (b *board) update() error {
	return b.lc.Update()
}
