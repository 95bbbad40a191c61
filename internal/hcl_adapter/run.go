package hcl_adapter

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vk/fwrig/internal/config"
	"github.com/vk/fwrig/internal/ctxlog"
)

// runScope returns the variables visible to run-time expressions before any
// run-time variable is known. Artifacts resolve to their absolute location
// in the package tree.
func (l *Loader) runScope(cfgName string, artifacts []config.Artifact) scope {
	dsts := make(map[string]string, len(artifacts))
	for _, a := range artifacts {
		dsts[a.Name] = filepath.Join(l.ws.Package, a.Dst)
	}
	return l.buildScope(cfgName).with("artifact", stringObject(dsts))
}

// resolveRunVarDecls evaluates run-time variable defaults.
func (l *Loader) resolveRunVarDecls(ctx context.Context, cfgName string, run *runBlock, artifacts []config.Artifact) ([]config.RunVar, error) {
	if run == nil {
		return nil, nil
	}
	s := l.runScope(cfgName, artifacts)

	seen := make(map[string]bool, len(run.RunVars))
	vars := make([]config.RunVar, 0, len(run.RunVars))
	for _, rb := range run.RunVars {
		if seen[rb.Name] {
			return nil, fmt.Errorf("duplicate rtvar '%s'", rb.Name)
		}
		seen[rb.Name] = true

		typ := rb.Type
		if typ == "" {
			typ = "string"
		}
		if typ != "string" && typ != "path" {
			return nil, fmt.Errorf("rtvar '%s' has unknown type '%s', expected path or string", rb.Name, rb.Type)
		}

		v := config.RunVar{Name: rb.Name, Type: typ}
		if isExprDefined(ctx, rb.Default, "default") {
			def, err := evalString(rb.Default, s, "")
			if err != nil {
				return nil, fmt.Errorf("rtvar '%s' default: %w", rb.Name, err)
			}
			v.Default = def
			v.HasDefault = true
		}
		vars = append(vars, v)
	}

	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	return vars, nil
}

// ResolveRun applies overrides to the run-time variables of cfg and resolves
// its run section into a descriptor.
func (l *Loader) ResolveRun(ctx context.Context, cfg *config.Config, overrides map[string]string) (*config.Run, error) {
	logger := ctxlog.FromContext(ctx).With("config", cfg.Name)

	rb, ok := l.runs[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("config '%s' was not loaded by this loader", cfg.Name)
	}
	if rb == nil {
		return nil, fmt.Errorf("config '%s' has no run section", cfg.Name)
	}

	run := &config.Run{Config: cfg.Name, Vars: make(map[string]string, len(cfg.RunVars))}
	for _, v := range cfg.RunVars {
		value, set := overrides[v.Name]
		if !set {
			value, set = v.Default, v.HasDefault
		}
		if !set {
			return nil, fmt.Errorf("%s run-time variable not set by user and no default available", v.Name)
		}
		if v.Type == "path" && value != "" {
			abs, err := filepath.Abs(value)
			if err != nil {
				return nil, fmt.Errorf("rtvar '%s': %w", v.Name, err)
			}
			value = abs
			run.PathVars = append(run.PathVars, abs)
		}
		run.Vars[v.Name] = value
	}
	for k := range overrides {
		if _, declared := run.Vars[k]; !declared {
			logger.Warn("Ignoring override for undeclared run-time variable.", "rtvar", k)
		}
	}

	s := l.runScope(cfg.Name, cfg.Artifacts).with("rtvar", stringObject(run.Vars))

	name, err := evalString(rb.Name, s, "")
	if err != nil {
		return nil, fmt.Errorf("run name: %w", err)
	}
	params, err := evalStringMap(rb.Params, s)
	if err != nil {
		return nil, fmt.Errorf("run params: %w", err)
	}
	if run.Prerun, err = evalStringList(rb.Prerun, s); err != nil {
		return nil, fmt.Errorf("run prerun: %w", err)
	}
	if run.Run, err = evalStringList(rb.Run, s); err != nil {
		return nil, fmt.Errorf("run run: %w", err)
	}

	for _, tb := range rb.Terminals {
		kind, err := config.ParseTerminalKind(tb.Type)
		if err != nil {
			return nil, fmt.Errorf("terminal '%s': %w", tb.Name, err)
		}
		bridge, err := evalStringList(tb.Bridge, s)
		if err != nil {
			return nil, fmt.Errorf("terminal '%s' bridge: %w", tb.Name, err)
		}
		friendly := tb.Friendly
		if friendly == "" {
			friendly = tb.Name
		}
		if tb.PortRegex == "" && kind != config.KindXterm {
			return nil, fmt.Errorf("terminal '%s' of type %s needs a port_regex", tb.Name, kind)
		}
		run.Terminals = append(run.Terminals, config.Terminal{
			Name:      tb.Name,
			Friendly:  friendly,
			Kind:      kind,
			PortRegex: tb.PortRegex,
			Bridge:    bridge,
		})
	}
	sort.Slice(run.Terminals, func(i, j int) bool { return run.Terminals[i].Name < run.Terminals[j].Name })

	if name != "" {
		run.Run = []string{commandLine(name, params, run.Terminals)}
	}

	logger.Debug("Resolved run descriptor.", "terminals", len(run.Terminals), "prerun", len(run.Prerun))
	return run, nil
}

// commandLine assembles the simulator invocation from its program name,
// params and the per-terminal connection flags.
func commandLine(name string, params map[string]string, terminals []config.Terminal) string {
	parts := []string{name}
	if p := joinParams(params, "="); p != "" {
		parts = append(parts, p)
	}
	for _, t := range terminals {
		switch t.Kind {
		case config.KindStdout, config.KindStdinout:
			parts = append(parts, "-C "+t.Name+".start_telnet=0", "-C "+t.Name+".mode=raw")
		case config.KindXterm:
			parts = append(parts, "-C "+t.Name+".start_telnet=1", "-C "+t.Name+".mode=telnet")
		case config.KindTelnet:
			parts = append(parts, "-C "+t.Name+".start_telnet=0", "-C "+t.Name+".mode=telnet")
		}
	}
	return strings.Join(parts, " ")
}
