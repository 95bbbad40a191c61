package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/go-wordwrap"
	"github.com/vk/fwrig/internal/config"
)

const (
	inspectWidth  = 80
	inspectIndent = 21
	varIndent     = 24
)

func (a *App) inspect(ctx context.Context) error {
	store, err := a.loadStore(ctx)
	if err != nil {
		return err
	}
	var configs []*config.Config
	if len(a.config.Configs) == 0 && a.config.All {
		configs = store.Configs
	} else if configs, err = store.Select(a.config.Configs...); err != nil {
		return err
	}

	descs := make([]string, 0, len(configs))
	for _, c := range configs {
		descs = append(descs, describe(c))
	}
	separator := "\n" + strings.Repeat("-", inspectWidth) + "\n\n"
	_, err = fmt.Fprintln(a.outW, strings.Join(descs, separator))
	return err
}

// describe renders the summary of one config.
func describe(c *config.Config) string {
	var b strings.Builder
	b.WriteString(field("name", c.Name, inspectWidth, inspectIndent, 1) + "\n\n")
	b.WriteString(field("description", c.Description, inspectWidth, inspectIndent, 1) + "\n\n")
	b.WriteString(field("concrete", strconv.FormatBool(c.Concrete), inspectWidth, inspectIndent, 1) + "\n\n")

	vars := []string{"None"}
	if len(c.RunVars) > 0 {
		vars = vars[:0]
		for _, v := range c.RunVars {
			value := "None"
			if v.HasDefault {
				value = v.Default
			}
			vars = append(vars, field(v.Name, value, inspectWidth-inspectIndent, varIndent, 0))
		}
	}
	b.WriteString(label("run-time variables", indent(strings.Join(vars, "\n"), inspectIndent), inspectIndent) + "\n")
	return b.String()
}

// field wraps text to width with every line indented, paragraphs separated
// by paraspace blank lines, and puts "tag:" in the left margin.
func field(tag, text string, width, margin, paraspace int) string {
	var paras []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		paras = append(paras, indent(wordwrap.WrapString(line, uint(width-margin)), margin))
	}
	return label(tag, strings.Join(paras, strings.Repeat("\n", paraspace+1)), margin)
}

// indent prefixes every line of text with n spaces.
func indent(text string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = pad + l
	}
	return strings.Join(lines, "\n")
}

// label writes "tag:" over the margin of the first line, or on a line of
// its own when it does not fit.
func label(tag, wrapped string, margin int) string {
	switch {
	case len(tag) > margin-2:
		return tag + ":\n" + wrapped
	case len(wrapped) <= len(tag)+1:
		return tag + ":"
	default:
		return tag + ":" + wrapped[len(tag)+1:]
	}
}
