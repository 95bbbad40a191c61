// Package runtime abstracts the environment commands execute in. The null
// runtime runs everything on the host; the docker runtimes run everything in
// one long-lived container that shares the workspace directories with the
// host at identical paths.
package runtime

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Runtime maps logical command vectors to the command vectors actually
// spawned.
type Runtime interface {
	// AddVolume makes path visible in the environment. Must be called
	// before Start.
	AddVolume(path string)
	// Start prepares the environment.
	Start(ctx context.Context) error
	// Command wraps args for execution inside the environment.
	Command(args []string, interactive bool) []string
	// IPAddress returns the environment's reachable address.
	IPAddress(ctx context.Context) string
	// Close releases the environment.
	Close(ctx context.Context) error
}

// Names accepted by New.
const (
	Null        = "null"
	DockerName  = "docker"
	DockerLocal = "docker-local"
)

// Names lists every supported runtime.
var Names = []string{Null, DockerName, DockerLocal}

// New returns the runtime with the given name.
func New(name, image string) (Runtime, error) {
	switch name {
	case Null:
		return NewNative(), nil
	case DockerName:
		return NewDocker(image, true, nil), nil
	case DockerLocal:
		return NewDocker(image, false, nil), nil
	default:
		return nil, fmt.Errorf("unknown runtime '%s', expected one of %s", name, strings.Join(Names, ", "))
	}
}

// volumes is a set of mount points in which no entry is a descendant of
// another.
type volumes struct {
	paths []string
}

// add inserts path unless an existing mount already covers it, and drops
// existing mounts that path covers.
func (v *volumes) add(path string) {
	if path == "" {
		return
	}
	path = filepath.Clean(path)

	kept := v.paths[:0:0]
	for _, mp := range v.paths {
		if within(path, mp) {
			return
		}
		if !within(mp, path) {
			kept = append(kept, mp)
		}
	}
	v.paths = append(kept, path)
}

func (v *volumes) list() []string {
	return append([]string(nil), v.paths...)
}

// within reports whether path equals dir or lies below it.
func within(path, dir string) bool {
	if path == dir {
		return true
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
