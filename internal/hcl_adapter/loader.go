package hcl_adapter

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/fwrig/internal/config"
	"github.com/vk/fwrig/internal/ctxlog"
	"github.com/vk/fwrig/internal/fsutil"
	"github.com/vk/fwrig/internal/workspace"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	ws   workspace.Workspace
	jobs int

	// runs keeps the undecoded run block of every loaded config so that
	// run-time variables can be applied later.
	runs map[string]*runBlock
}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new HCL configuration loader. jobs is exposed to
// build commands as the `jobs` variable.
func NewLoader(ws workspace.Workspace, jobs int) *Loader {
	return &Loader{ws: ws, jobs: jobs, runs: make(map[string]*runBlock)}
}

// Load parses every .hcl file under paths and resolves the build-time
// section of each config found.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Store, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.CollectFiles(".hcl", paths...)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	store := &config.Store{}
	declared := make(map[string]string)

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, block := range root.Configs {
			if prev, ok := declared[block.Name]; ok {
				return nil, fmt.Errorf("config '%s' declared in both %s and %s", block.Name, prev, file)
			}
			declared[block.Name] = file

			cfg, err := l.resolveConfig(ctx, block)
			if err != nil {
				return nil, fmt.Errorf("config '%s': %w", block.Name, err)
			}
			cfg.File = file
			store.Configs = append(store.Configs, cfg)
			l.runs[cfg.Name] = block.Run
		}
	}

	sort.Slice(store.Configs, func(i, j int) bool {
		return store.Configs[i].Name < store.Configs[j].Name
	})

	logger.Debug("HCL loading complete.", "configs", len(store.Configs))
	return store, nil
}

// resolveConfig translates one config block into the resolved model.
func (l *Loader) resolveConfig(ctx context.Context, b *configBlock) (*config.Config, error) {
	logger := ctxlog.FromContext(ctx).With("config", b.Name)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Resolving build-time configuration.")

	cfg := &config.Config{
		Name:        b.Name,
		Description: b.Description,
		Concrete:    b.Concrete,
	}

	components, artifacts, err := l.resolveComponents(ctx, b)
	if err != nil {
		return nil, err
	}
	cfg.Components = components
	cfg.Artifacts = artifacts

	vars, err := l.resolveRunVarDecls(ctx, b.Name, b.Run, artifacts)
	if err != nil {
		return nil, err
	}
	cfg.RunVars = vars

	return cfg, nil
}
