package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/vk/fwrig/internal/ctxlog"
)

// CommandRunner runs a command to completion and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// execRunner is the CommandRunner backed by os/exec.
func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Docker runs every command in one container started by Start.
type Docker struct {
	image string
	pull  bool
	name  string
	cwd   string
	uid   int
	gid   int
	run   CommandRunner
	vols  volumes

	started bool
	// readyTimeout bounds how long Start waits for the container.
	readyTimeout time.Duration
}

// NewDocker returns a docker runtime. When pull is set the image is pulled
// before the container starts. A nil runner uses os/exec.
func NewDocker(image string, pull bool, runner CommandRunner) *Docker {
	if runner == nil {
		runner = execRunner
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}
	return &Docker{
		image:        image,
		pull:         pull,
		name:         "fwrig-" + uuid.NewString(),
		cwd:          cwd,
		uid:          os.Getuid(),
		gid:          os.Getgid(),
		run:          runner,
		readyTimeout: 30 * time.Second,
	}
}

// Name returns the container name.
func (d *Docker) Name() string { return d.name }

// AddVolume registers a bind mount at the same path inside the container.
func (d *Docker) AddVolume(path string) {
	if d.started {
		panic("runtime: AddVolume after Start")
	}
	d.vols.add(path)
}

// Start pulls the image if requested, starts the container and waits until
// docker reports it running.
func (d *Docker) Start(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("container", d.name, "image", d.image)

	if d.pull {
		logger.Info("Pulling container image.")
		if _, err := d.run(ctx, "docker", "pull", d.image); err != nil {
			return fmt.Errorf("pulling image: %w", err)
		}
	}

	if _, err := d.run(ctx, "docker", d.runArgs()...); err != nil {
		return fmt.Errorf("starting container: %w", err)
	}
	d.started = true
	logger.Debug("Container started, waiting for it to run.")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = d.readyTimeout
	operation := func() error {
		out, err := d.run(ctx, "docker", "inspect", "-f", "{{.State.Running}}", d.name)
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(out)) != "true" {
			return errors.New("container not running yet")
		}
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("waiting for container %s: %w", d.name, err)
	}
	logger.Info("Container ready.")
	return nil
}

func (d *Docker) runArgs() []string {
	args := []string{"run", "--detach", "--rm", "--init", "--name", d.name}
	if d.uid >= 0 {
		args = append(args, "--user", strconv.Itoa(d.uid)+":"+strconv.Itoa(d.gid))
	}
	for _, v := range d.vols.list() {
		args = append(args, "--volume", v+":"+v)
	}
	return append(args, d.image, "sleep", "infinity")
}

// Command wraps args in docker exec. Interactive commands get a tty.
func (d *Docker) Command(args []string, interactive bool) []string {
	cmd := []string{"docker", "exec", "-i"}
	if interactive {
		cmd = append(cmd, "-t")
	}
	cmd = append(cmd, "-w", d.cwd, d.name)
	return append(cmd, args...)
}

// IPAddress returns the container's address on its first network.
func (d *Docker) IPAddress(ctx context.Context) string {
	out, err := d.run(ctx, "docker", "inspect", "-f",
		"{{range .NetworkSettings.Networks}}{{.IPAddress}} {{end}}", d.name)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("Could not query container address.", "container", d.name, "error", err)
		return fallbackIP
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return fallbackIP
	}
	return fields[0]
}

// Close removes the container. It is a no-op if Start never ran.
func (d *Docker) Close(ctx context.Context) error {
	if !d.started {
		return nil
	}
	d.started = false
	if _, err := d.run(ctx, "docker", "rm", "-f", d.name); err != nil {
		return fmt.Errorf("removing container: %w", err)
	}
	return nil
}
