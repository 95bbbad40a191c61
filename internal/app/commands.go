package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/fwrig/internal/builder"
	"github.com/vk/fwrig/internal/config"
	"github.com/vk/fwrig/internal/dag"
	"github.com/vk/fwrig/internal/runtime"
	"github.com/vk/fwrig/internal/scheduler"
	"github.com/vk/fwrig/internal/session"
)

// BuildScriptName is the per-config script written next to its package.
const BuildScriptName = "build.sh"

func (a *App) build(ctx context.Context) error {
	store, err := a.loadStore(ctx)
	if err != nil {
		return err
	}
	configs, err := store.Select(a.config.Configs...)
	if err != nil {
		return err
	}
	b := builder.New(a.ws)
	g, err := b.BuildGraph(configs)
	if err != nil {
		return err
	}
	if a.config.DryRun {
		return a.printScript(g)
	}

	if err := a.ws.Ensure(); err != nil {
		return err
	}
	volumes := append([]string{a.ws.Build, a.ws.Package}, a.ws.Configs...)
	for _, c := range configs {
		for _, comp := range c.Components {
			volumes = append(volumes, filepath.Dir(comp.SourceDir), comp.BuildDir)
		}
	}
	for _, v := range volumes {
		if err := os.MkdirAll(v, 0o755); err != nil {
			return fmt.Errorf("creating volume directory: %w", err)
		}
	}

	err = a.withRuntime(ctx, volumes, func(rt runtime.Runtime) error {
		return a.schedule(ctx, g, rt)
	})
	if err != nil {
		return err
	}

	for _, c := range configs {
		if err := a.writeBuildScript(b, c); err != nil {
			return err
		}
	}
	return nil
}

// writeBuildScript stores the script that rebuilds c on its own.
func (a *App) writeBuildScript(b *builder.Builder, c *config.Config) error {
	g, err := b.BuildGraph([]*config.Config{c})
	if err != nil {
		return err
	}
	script, err := builder.MakeScript(g)
	if err != nil {
		return err
	}
	path := filepath.Join(a.ws.PackageDir(c.Name), BuildScriptName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating package directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return fmt.Errorf("writing build script: %w", err)
	}
	a.logger.Debug("Build script written.", "config", c.Name, "path", path)
	return nil
}

func (a *App) clean(ctx context.Context) error {
	store, err := a.loadStore(ctx)
	if err != nil {
		return err
	}
	configs, err := store.Select(a.config.Configs...)
	if err != nil {
		return err
	}
	g, err := builder.New(a.ws).CleanGraph(configs, a.config.Deep, a.config.Filters)
	if err != nil {
		return err
	}
	if a.config.DryRun {
		return a.printScript(g)
	}

	if err := a.ws.Ensure(); err != nil {
		return err
	}
	volumes := append([]string{a.ws.Build, a.ws.Package}, a.ws.Configs...)
	for _, c := range configs {
		for _, comp := range c.Components {
			volumes = append(volumes, filepath.Dir(comp.SourceDir), filepath.Dir(comp.BuildDir))
		}
	}
	return a.withRuntime(ctx, existing(volumes), func(rt runtime.Runtime) error {
		return a.schedule(ctx, g, rt)
	})
}

// existing filters out paths that are not on disk; there is nothing to
// clean below them.
func existing(paths []string) []string {
	var out []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func (a *App) schedule(ctx context.Context, g *dag.Graph, rt runtime.Runtime) error {
	s := scheduler.New(g, scheduler.Options{
		Jobs:     a.config.Tasks,
		Verbose:  a.config.Verbose,
		Colorize: !a.config.NoColor,
		TempDir:  a.ws.Build,
		Out:      a.outW,
		Command:  rt.Command,
		Metrics:  a.metrics,
	})
	return s.Run(ctx)
}

func (a *App) printScript(g *dag.Graph) error {
	script, err := builder.MakeScript(g)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.outW, script)
	return err
}

func (a *App) run(ctx context.Context) error {
	store, err := a.loadStore(ctx)
	if err != nil {
		return err
	}
	name := a.config.Configs[0]
	c, ok := store.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown config '%s'", name)
	}
	overrides, err := config.ParseRunVars(a.config.RunVars)
	if err != nil {
		return err
	}
	run, err := a.loader.ResolveRun(ctx, c, overrides)
	if err != nil {
		return err
	}
	if a.config.DryRun {
		_, err := fmt.Fprintln(a.outW, session.Script(run))
		return err
	}

	if err := a.ws.Ensure(); err != nil {
		return err
	}
	volumes := append([]string{a.ws.Package}, run.PathVars...)
	return a.withRuntime(ctx, volumes, func(rt runtime.Runtime) error {
		s, err := session.New(run, session.Options{
			Out:          a.outW,
			Colorize:     !a.config.NoColor,
			TempDir:      a.ws.Package,
			Env:          rt,
			Acknowledge:  a.ack,
			Stdin:        a.stdin,
			ForwardStdin: true,
			Metrics:      a.metrics,
		})
		if err != nil {
			return err
		}
		return s.Run(ctx)
	})
}
