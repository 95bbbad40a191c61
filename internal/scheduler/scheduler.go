package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vk/fwrig/internal/ctxlog"
	"github.com/vk/fwrig/internal/dag"
	"github.com/vk/fwrig/internal/logger"
	"github.com/vk/fwrig/internal/metrics"
	"github.com/vk/fwrig/internal/process"
	"github.com/vk/fwrig/internal/script"
)

// logTagSize is the width of the per-fragment tag in verbose output.
const logTagSize = 20

// ScriptName is the file each fragment's commands are written to.
const ScriptName = "script.sh"

// Options configures a Scheduler.
type Options struct {
	// Jobs bounds the number of fragments running at once. Must be at
	// least 1.
	Jobs int
	// Verbose logs all output live instead of buffering it.
	Verbose bool
	// Colorize enables coloured output tags.
	Colorize bool
	// TempDir is the parent of the per-fragment temporary directories. It
	// must be visible to the runtime the commands are wrapped for.
	TempDir string
	// Out receives labels and fragment output. Defaults to os.Stdout.
	Out io.Writer
	// Command wraps every spawned argument vector, e.g. for a container.
	Command process.CommandFunc
	// Metrics records fragment activity. May be nil.
	Metrics *metrics.Metrics
}

// task is the scheduler's bookkeeping for one spawned fragment.
type task struct {
	frag    *script.Fragment
	dir     string
	output  bytes.Buffer
	started time.Time
}

// Scheduler runs every fragment of a graph exactly once, each only after all
// of its prerequisites have succeeded.
type Scheduler struct {
	graph *dag.Graph
	opts  Options

	sorter *dag.Sorter
	queue  []*script.Fragment
	active int
	tasks  map[*process.Process]*task

	board *board
	log   *logger.Logger
	ctx   context.Context
}

// New returns a scheduler for g. It panics if opts.Jobs is below 1.
func New(g *dag.Graph, opts Options) *Scheduler {
	if opts.Jobs < 1 {
		panic(fmt.Sprintf("scheduler: invalid concurrency limit %d", opts.Jobs))
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Scheduler{
		graph: g,
		opts:  opts,
		tasks: make(map[*process.Process]*task),
		log:   logger.New(opts.Out, logTagSize, opts.Colorize),
	}
}

// Run executes the graph. It returns a *TaskError if a fragment fails, or
// the context's error if ctx is cancelled. On return no fragment process is
// left running.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	s.ctx = ctx

	order, err := s.graph.TopologicalOrder()
	if err != nil {
		return fmt.Errorf("ordering build graph: %w", err)
	}
	s.sorter = dag.NewSorter(s.graph)
	if err := s.sorter.Prepare(); err != nil {
		return fmt.Errorf("ordering build graph: %w", err)
	}

	s.board = newBoard(s.opts.Out, order, !s.opts.Verbose)

	opts := []process.Option{}
	if s.opts.Command != nil {
		opts = append(opts, process.WithCommandFunc(s.opts.Command))
	}
	pm := process.NewManager(s.handleOutput, s.handleExit, opts...)

	s.board.set("", "", "Waiting...")
	s.queue = append(s.queue, s.sorter.Ready()...)
	if err := s.pump(pm); err != nil {
		s.cleanup()
		return err
	}
	if err := s.board.update(); err != nil {
		s.cleanup()
		return err
	}

	logger.Debug("Scheduler started.", "fragments", s.graph.Len(), "jobs", s.opts.Jobs)
	if err := pm.Run(ctx, false); err != nil {
		s.cleanup()
		return err
	}
	if s.sorter.IsActive() {
		return fmt.Errorf("scheduler stopped with fragments outstanding")
	}

	// Catch any label whose final fragment did not say so.
	s.board.set("", "", "Done")
	return s.board.update()
}

// pump starts queued fragments while slots are free.
func (s *Scheduler) pump(pm *process.Manager) error {
	for len(s.queue) > 0 && s.active < s.opts.Jobs {
		frag := s.queue[0]
		s.queue = s.queue[1:]

		s.board.set(frag.Config(), frag.Component(), frag.Summary()+"...")
		if err := s.start(pm, frag); err != nil {
			return err
		}
		s.active++
	}
	return nil
}

// start writes frag to a private script file and spawns it.
func (s *Scheduler) start(pm *process.Manager, frag *script.Fragment) error {
	dir, err := os.MkdirTemp(s.opts.TempDir, "fwrig-")
	if err != nil {
		return fmt.Errorf("creating temporary directory for '%s': %w", frag, err)
	}
	path := filepath.Join(dir, ScriptName)
	if err := os.WriteFile(path, []byte(frag.Commands(true)), 0o644); err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("writing script for '%s': %w", frag, err)
	}

	p := process.New([]string{"bash", path}, false, true)
	s.tasks[p] = &task{frag: frag, dir: dir, started: time.Now()}
	s.log.Register(p, frag.String())

	ctxlog.FromContext(s.ctx).Debug("Fragment started.", "fragment", frag.String(), "dir", dir)
	s.opts.Metrics.FragmentStarted()
	return pm.Add(p)
}

func (s *Scheduler) handleOutput(m *process.Manager, p *process.Process, data []byte, stream process.StreamID) error {
	if s.opts.Verbose {
		return s.log.Log(m, p, data, stream)
	}
	if t, ok := s.tasks[p]; ok {
		t.output.Write(data)
	}
	if stream == process.Stderr {
		s.board.lc.SkipOverdrawOnce()
		return s.log.Log(m, p, data, stream)
	}
	return nil
}

func (s *Scheduler) handleExit(m *process.Manager, p *process.Process, code int) error {
	t, ok := s.tasks[p]
	if !ok {
		return nil
	}
	delete(s.tasks, p)
	s.log.Forget(p)
	elapsed := time.Since(t.started)
	logger := ctxlog.FromContext(s.ctx)

	if code == process.ForcedExit {
		// Killed because something else failed; cleanup is best effort.
		s.opts.Metrics.FragmentFinished(metrics.ResultKilled, elapsed)
		if err := os.RemoveAll(t.dir); err != nil {
			logger.Warn("Failed to remove temporary directory.", "dir", t.dir, "error", err)
		}
		return nil
	}

	if err := removeDir(s.ctx, t.dir); err != nil {
		return err
	}

	if code != 0 {
		s.opts.Metrics.FragmentFinished(metrics.ResultFailure, elapsed)
		logger.Debug("Fragment failed.", "fragment", t.frag.String(), "exit_code", code)
		if !s.opts.Verbose {
			if err := s.printFailure(t); err != nil {
				return err
			}
		}
		return &TaskError{Fragment: t.frag.String(), ExitCode: code}
	}

	s.opts.Metrics.FragmentFinished(metrics.ResultSuccess, elapsed)
	logger.Debug("Fragment completed.", "fragment", t.frag.String(), "duration", elapsed)

	state := "Waiting..."
	if t.frag.IsFinal() {
		state = "Done"
	}
	s.board.set(t.frag.Config(), t.frag.Component(), state)
	if t.frag.IsFinal() {
		s.board.freeze(t.frag.Config(), t.frag.Component())
	}

	s.sorter.Done(t.frag)
	s.active--
	s.queue = append(s.queue, s.sorter.Ready()...)
	if err := s.pump(m); err != nil {
		return err
	}
	return s.board.update()
}

// printFailure prints a failed fragment's buffered output between markers.
func (s *Scheduler) printFailure(t *task) error {
	if err := s.log.Newline(); err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("\n== error start " + strings.Repeat("=", 65) + "\n")
	b.Write(t.output.Bytes())
	b.WriteString("\n== error end " + strings.Repeat("=", 67) + "\n\n")
	_, err := io.WriteString(s.opts.Out, b.String())
	return err
}

// cleanup removes the directories of fragments that were never spawned;
// every spawned one has been handled by handleExit once the manager returns.
func (s *Scheduler) cleanup() {
	for p, t := range s.tasks {
		os.RemoveAll(t.dir)
		delete(s.tasks, p)
	}
}

// removeDir removes dir, retrying transient failures with backoff.
func removeDir(ctx context.Context, dir string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second

	op := func() error {
		err := os.RemoveAll(dir)
		if errors.Is(err, os.ErrPermission) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("removing temporary directory %s: %w", dir, err)
	}
	return nil
}
