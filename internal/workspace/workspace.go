// Package workspace describes where fwrig keeps its working trees: the build
// tree (sources, build outputs, temporary scripts), the package tree (copied
// artifacts, generated build scripts) and the config store.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variables that override the default locations.
const (
	EnvBuild   = "FWRIG_BUILD"
	EnvPackage = "FWRIG_PACKAGE"
	EnvConfig  = "FWRIG_CONFIG"
)

// ErrNoConfigStore is returned by ConfigDirs when FWRIG_CONFIG is unset.
var ErrNoConfigStore = errors.New(EnvConfig + " environment variable not set")

// Workspace holds absolute workspace locations. It is a plain value passed
// explicitly to every component that needs a path.
type Workspace struct {
	Build   string
	Package string
	Configs []string
}

// LookupFunc matches the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv resolves the workspace from the environment, using home for the
// defaults below ~/.fwrig.
func FromEnv(lookup LookupFunc, home string) (Workspace, error) {
	root := filepath.Join(home, ".fwrig")

	build, err := location(lookup, EnvBuild, filepath.Join(root, "build"))
	if err != nil {
		return Workspace{}, err
	}
	pkg, err := location(lookup, EnvPackage, filepath.Join(root, "package"))
	if err != nil {
		return Workspace{}, err
	}

	ws := Workspace{Build: build, Package: pkg}
	if v, ok := lookup(EnvConfig); ok && v != "" {
		for _, dir := range strings.Split(v, ":") {
			if dir == "" {
				continue
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return Workspace{}, fmt.Errorf("resolving config store %q: %w", dir, err)
			}
			ws.Configs = append(ws.Configs, abs)
		}
	}
	return ws, nil
}

func location(lookup LookupFunc, key, def string) (string, error) {
	path := def
	if v, ok := lookup(key); ok && v != "" {
		path = v
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", key, err)
	}
	return abs, nil
}

// Ensure creates the build and package trees if they do not exist.
func (w Workspace) Ensure() error {
	for _, dir := range []string{w.Build, w.Package} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating workspace directory: %w", err)
		}
	}
	return nil
}

// ConfigDirs returns the config store directories, or ErrNoConfigStore.
func (w Workspace) ConfigDirs() ([]string, error) {
	if len(w.Configs) == 0 {
		return nil, ErrNoConfigStore
	}
	return w.Configs, nil
}

// PackageDir returns the package directory of a single config.
func (w Workspace) PackageDir(config string) string {
	return filepath.Join(w.Package, config)
}

// SourceDir returns the default source tree of a component.
func (w Workspace) SourceDir(config, component string) string {
	return filepath.Join(w.Build, "source", config, component)
}

// BuildDir returns the default build tree of a component.
func (w Workspace) BuildDir(config, component string) string {
	return filepath.Join(w.Build, "build", config, component)
}
