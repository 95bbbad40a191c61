package builder

import (
	"fmt"
	"path/filepath"

	"github.com/vk/fwrig/internal/config"
	"github.com/vk/fwrig/internal/dag"
	"github.com/vk/fwrig/internal/script"
	"github.com/vk/fwrig/internal/workspace"
)

// Builder constructs task graphs for one workspace.
type Builder struct {
	ws workspace.Workspace
}

// New returns a builder placing packages under ws.
func New(ws workspace.Workspace) *Builder {
	return &Builder{ws: ws}
}

func newFragment(summary string, opts ...script.Option) *script.Fragment {
	return script.New(summary, append([]script.Option{script.WithPreamble(Preamble)}, opts...)...)
}

// removePackage returns the global fragment clearing every config's
// package directory.
func (b *Builder) removePackage(configs []*config.Config) *script.Fragment {
	f := newFragment("Removing old package")
	f.Append("# Remove old package.")
	for _, c := range configs {
		f.Appendf("rm -rf %s > /dev/null 2>&1 || true", b.ws.PackageDir(c.Name))
	}
	f.Seal()
	return f
}

// createDirs returns the global fragment creating every source directory and
// every artifact destination directory.
func (b *Builder) createDirs(configs []*config.Config) *script.Fragment {
	f := newFragment("Creating directory structure")
	f.Append("# Create directory structure.")
	for _, c := range configs {
		seen := make(map[string]bool)
		for _, comp := range c.Components {
			if !seen[comp.SourceDir] {
				f.Appendf("mkdir -p %s", comp.SourceDir)
				seen[comp.SourceDir] = true
			}
		}
		seen = make(map[string]bool)
		for _, a := range c.Artifacts {
			dir := filepath.Dir(filepath.Join(b.ws.Package, a.Dst))
			if !seen[dir] {
				f.Appendf("mkdir -p %s", dir)
				seen[dir] = true
			}
		}
	}
	f.Seal()
	return f
}

// BuildGraph returns the graph that builds and packages every config.
func (b *Builder) BuildGraph(configs []*config.Config) (*dag.Graph, error) {
	g := dag.New()
	if len(configs) == 0 {
		return g, nil
	}

	remove := b.removePackage(configs)
	dirs := b.createDirs(configs)
	g.Add(remove)
	if err := g.DependsOn(dirs, remove); err != nil {
		return nil, err
	}

	for _, c := range configs {
		builds := make(map[string]*script.Fragment, len(c.Components))
		var order []*script.Fragment

		for _, comp := range c.Components {
			sync := syncFragment(c.Name, comp)
			build := buildFragment(c.Name, comp)
			g.Add(sync)
			g.Add(build)
			if err := g.DependsOn(sync, dirs); err != nil {
				return nil, err
			}
			if err := g.DependsOn(build, sync); err != nil {
				return nil, err
			}
			builds[comp.Name] = build
			order = append(order, build)
		}

		for _, comp := range c.Components {
			for _, dep := range comp.DependsOn {
				prereq, ok := builds[dep]
				if !ok {
					return nil, fmt.Errorf("config '%s': component '%s' depends on unknown component '%s'", c.Name, comp.Name, dep)
				}
				if err := g.DependsOn(builds[comp.Name], prereq); err != nil {
					return nil, err
				}
			}
		}

		copyArtifacts := b.copyFragment(c)
		g.Add(copyArtifacts)
		if err := g.DependsOn(copyArtifacts, append([]*script.Fragment{dirs}, order...)...); err != nil {
			return nil, err
		}
	}

	if err := g.DetectCycles(); err != nil {
		return nil, fmt.Errorf("invalid component dependencies: %w", err)
	}
	return g, nil
}

func syncFragment(cfg string, comp *config.Component) *script.Fragment {
	f := newFragment("Syncing git repo", script.WithTag(cfg, comp.Name))
	f.Appendf("# Sync git repo for config=%s component=%s.", cfg, comp.Name)
	f.Appendf("pushd %s", filepath.Dir(comp.SourceDir))

	parent := filepath.Base(comp.SourceDir)
	for _, repo := range comp.Repos {
		local := filepath.Clean(filepath.Join(parent, repo.Dir))
		base := filepath.Dir(local)
		marker := filepath.Join(base, "."+filepath.Base(local)+"_sync")

		f.Appendf(`if [ ! -d "%s/.git" ] || [ -f "%s" ]; then`, local, marker)
		f.Appendf("\trm -rf %s > /dev/null 2>&1 || true", local)
		f.Appendf("\tmkdir -p %s", base)
		f.Appendf("\ttouch %s", marker)
		f.Appendf("\tgit clone %s %s", repo.Remote, local)
		f.Appendf("\tpushd %s", local)
		if repo.Revision != "" {
			f.Appendf("\tgit checkout --force %s", repo.Revision)
		}
		f.Append("\tgit submodule update --init --checkout --recursive --force")
		f.Append("\tpopd")
		f.Appendf("\trm %s", marker)
		f.Append("fi")
	}

	f.Append("popd")
	f.Seal()
	return f
}

func buildFragment(cfg string, comp *config.Component) *script.Fragment {
	f := newFragment("Building", script.WithTag(cfg, comp.Name))
	f.Appendf("# Build for config=%s component=%s.", cfg, comp.Name)
	f.Appendf("pushd %s", comp.SourceDir)
	for _, cmds := range [][]string{comp.Prebuild, comp.Build, comp.Postbuild} {
		appendLines(f, cmds)
	}
	f.Append("popd")
	f.Seal()
	return f
}

// appendLines appends cmds, adding nothing when cmds is empty.
func appendLines(f *script.Fragment, cmds []string) {
	if len(cmds) > 0 {
		f.Append(cmds...)
	}
}

// copyFragment is the final fragment of a config. A config tag with no
// component applies to every component of the config.
func (b *Builder) copyFragment(c *config.Config) *script.Fragment {
	f := newFragment("Copying artifacts", script.WithTag(c.Name, ""), script.Final())
	f.Appendf("# Copy artifacts for config=%s.", c.Name)
	for _, a := range c.Artifacts {
		f.Appendf("cp %s %s", a.Src, filepath.Join(b.ws.Package, a.Dst))
	}
	f.Seal()
	return f
}
