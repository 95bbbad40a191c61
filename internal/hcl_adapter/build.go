package hcl_adapter

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sort"

	"github.com/vk/fwrig/internal/config"
	"github.com/vk/fwrig/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// buildScope returns the variables shared by every build-time expression of
// a config.
func (l *Loader) buildScope(cfgName string) scope {
	return scope{
		"jobs":       cty.NumberIntVal(int64(l.jobs)),
		"config":     cty.StringVal(cfgName),
		"packagedir": cty.StringVal(l.ws.PackageDir(cfgName)),
	}
}

// resolveComponents evaluates all component blocks of a config. Evaluation
// runs in three rounds: directories, then artifact paths (which may use the
// directories), then params and commands (which may use any artifact).
func (l *Loader) resolveComponents(ctx context.Context, b *configBlock) ([]*config.Component, []config.Artifact, error) {
	logger := ctxlog.FromContext(ctx)
	base := l.buildScope(b.Name)

	blocks := slices.Clone(b.Components)
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Name < blocks[j].Name })

	comps := make([]*config.Component, len(blocks))
	scopes := make([]scope, len(blocks))
	names := make(map[string]bool, len(blocks))

	for i, cb := range blocks {
		if names[cb.Name] {
			return nil, nil, fmt.Errorf("duplicate component '%s'", cb.Name)
		}
		names[cb.Name] = true

		src, err := evalString(cb.SourceDir, base, l.ws.SourceDir(b.Name, cb.Name))
		if err != nil {
			return nil, nil, fmt.Errorf("component '%s' sourcedir: %w", cb.Name, err)
		}
		bld, err := evalString(cb.BuildDir, base, l.ws.BuildDir(b.Name, cb.Name))
		if err != nil {
			return nil, nil, fmt.Errorf("component '%s' builddir: %w", cb.Name, err)
		}

		comp := &config.Component{
			Name:      cb.Name,
			SourceDir: filepath.Clean(src),
			BuildDir:  filepath.Clean(bld),
		}
		for _, r := range cb.Repos {
			comp.Repos = append(comp.Repos, config.Repo{Dir: r.Dir, Remote: r.Remote, Revision: r.Revision})
		}
		comps[i] = comp
		scopes[i] = base.
			with("sourcedir", cty.StringVal(comp.SourceDir)).
			with("builddir", cty.StringVal(comp.BuildDir))
	}

	exporters := make(map[string]string)
	var artifacts []config.Artifact
	for i, cb := range blocks {
		arts, err := evalStringMap(cb.Artifacts, scopes[i])
		if err != nil {
			return nil, nil, fmt.Errorf("component '%s' artifacts: %w", cb.Name, err)
		}
		for name, src := range arts {
			if prev, ok := exporters[name]; ok {
				return nil, nil, fmt.Errorf("duplicate artifact '%s' exported by '%s' and '%s'", name, prev, cb.Name)
			}
			exporters[name] = cb.Name
			artifacts = append(artifacts, config.Artifact{
				Name:      name,
				Component: cb.Name,
				Src:       src,
				Dst:       filepath.Join(b.Name, filepath.Base(src)),
			})
		}
		comps[i].Artifacts = arts
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Name < artifacts[j].Name })

	srcs := make(map[string]string, len(artifacts))
	for _, a := range artifacts {
		srcs[a.Name] = a.Src
	}
	artifactVal := stringObject(srcs)

	for i, cb := range blocks {
		comp := comps[i]

		deps, err := componentDeps(cb, exporters, names)
		if err != nil {
			return nil, nil, err
		}
		comp.DependsOn = deps

		s := scopes[i].with("artifact", artifactVal)
		if comp.Params, err = evalStringMap(cb.Params, s); err != nil {
			return nil, nil, fmt.Errorf("component '%s' params: %w", cb.Name, err)
		}

		param := make(map[string]string, len(comp.Params)+2)
		for k, v := range comp.Params {
			param[k] = v
		}
		param["join_equal"] = joinParams(comp.Params, "=")
		param["join_space"] = joinParams(comp.Params, " ")
		s = s.with("param", stringObject(param))

		if comp.Prebuild, err = evalStringList(cb.Prebuild, s); err != nil {
			return nil, nil, fmt.Errorf("component '%s' prebuild: %w", cb.Name, err)
		}
		if comp.Build, err = evalStringList(cb.Build, s); err != nil {
			return nil, nil, fmt.Errorf("component '%s' build: %w", cb.Name, err)
		}
		if comp.Postbuild, err = evalStringList(cb.Postbuild, s); err != nil {
			return nil, nil, fmt.Errorf("component '%s' postbuild: %w", cb.Name, err)
		}
		if comp.Clean, err = evalStringList(cb.Clean, s); err != nil {
			return nil, nil, fmt.Errorf("component '%s' clean: %w", cb.Name, err)
		}

		logger.Debug("Resolved component.", "component", comp.Name, "depends_on", comp.DependsOn, "artifacts", len(comp.Artifacts))
	}

	return comps, artifacts, nil
}

// componentDeps merges explicit depends_on entries with the exporters of
// every artifact the component's params and commands reference.
func componentDeps(cb *componentBlock, exporters map[string]string, components map[string]bool) ([]string, error) {
	set := make(map[string]struct{})

	for _, d := range cb.DependsOn {
		if !components[d] {
			return nil, fmt.Errorf("component '%s' depends on unknown component '%s'", cb.Name, d)
		}
		set[d] = struct{}{}
	}

	for _, art := range referencedNames("artifact", cb.Params, cb.Prebuild, cb.Build, cb.Postbuild) {
		exporter, ok := exporters[art]
		if !ok {
			return nil, fmt.Errorf("component '%s' references unknown artifact '%s'", cb.Name, art)
		}
		if exporter != cb.Name {
			set[exporter] = struct{}{}
		}
	}

	deps := make([]string, 0, len(set))
	for d := range set {
		deps = append(deps, d)
	}
	sort.Strings(deps)
	return deps, nil
}
