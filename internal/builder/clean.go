package builder

import (
	"fmt"
	"strings"

	"github.com/vk/fwrig/internal/config"
	"github.com/vk/fwrig/internal/dag"
	"github.com/vk/fwrig/internal/script"
)

// Filter returns the components of cfg selected by filters. Each filter is
// either "<config>.<component>", applying only to the named config, or a
// bare component name applying to every config. With no applicable filter
// every component is selected. A component name that cfg does not have is
// an error.
func Filter(cfg *config.Config, filters []string) ([]*config.Component, error) {
	var names []string
	for _, f := range filters {
		if conf, comp, ok := strings.Cut(f, "."); ok {
			if conf == cfg.Name {
				names = append(names, comp)
			}
			continue
		}
		names = append(names, f)
	}
	if len(names) == 0 {
		return cfg.Components, nil
	}

	var out []*config.Component
	seen := make(map[string]bool)
	for _, n := range names {
		comp, ok := cfg.Component(n)
		if !ok {
			return nil, fmt.Errorf("bad filter: %s not a component of %s", n, cfg.Name)
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, comp)
		}
	}
	return out, nil
}

// CleanGraph returns the graph that removes the packages of configs and
// cleans the components selected by filters. With deep, source trees are
// removed as well.
func (b *Builder) CleanGraph(configs []*config.Config, deep bool, filters []string) (*dag.Graph, error) {
	g := dag.New()
	if len(configs) == 0 {
		return g, nil
	}

	remove := b.removePackage(configs)
	g.Add(remove)

	for _, c := range configs {
		comps, err := Filter(c, filters)
		if err != nil {
			return nil, err
		}
		for _, comp := range comps {
			clean := cleanFragment(c.Name, comp, !deep)
			g.Add(clean)
			if err := g.DependsOn(clean, remove); err != nil {
				return nil, err
			}
			if !deep {
				continue
			}
			purge := purgeFragment(c.Name, comp)
			g.Add(purge)
			if err := g.DependsOn(purge, clean); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

func cleanFragment(cfg string, comp *config.Component, final bool) *script.Fragment {
	opts := []script.Option{script.WithTag(cfg, comp.Name)}
	if final {
		opts = append(opts, script.Final())
	}
	f := newFragment("Cleaning", opts...)
	f.Appendf("# Clean for config=%s component=%s.", cfg, comp.Name)
	if len(comp.Clean) > 0 {
		f.Appendf("if [ -d %s ]; then", comp.SourceDir)
		f.Appendf("\tpushd %s", comp.SourceDir)
		for _, cmd := range comp.Clean {
			f.Append("\t" + cmd)
		}
		f.Append("\tpopd")
		f.Append("fi")
	}
	f.Appendf("rm -rf %s > /dev/null 2>&1 || true", comp.BuildDir)
	f.Seal()
	return f
}

func purgeFragment(cfg string, comp *config.Component) *script.Fragment {
	f := newFragment("Removing source", script.WithTag(cfg, comp.Name), script.Final())
	f.Appendf("# Remove source for config=%s component=%s.", cfg, comp.Name)
	f.Appendf("rm -rf %s > /dev/null 2>&1 || true", comp.SourceDir)
	f.Seal()
	return f
}
