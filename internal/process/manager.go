package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"github.com/vk/fwrig/internal/ctxlog"
	"github.com/vk/fwrig/internal/tty"
	"golang.org/x/sys/unix"
)

// OutputHandler receives every chunk of output read from a process.
type OutputHandler func(m *Manager, p *Process, data []byte, stream StreamID) error

// TerminateHandler is called once per process when it has been reaped.
// exitCode is ForcedExit if the manager killed the process.
type TerminateHandler func(m *Manager, p *Process, exitCode int) error

// CommandFunc maps a logical argument vector to the one spawned.
type CommandFunc func(args []string, interactive bool) []string

// Manager drives a set of processes on one poll loop. It is not safe for
// concurrent use; handlers run on the loop and may call Add and SetHandler.
type Manager struct {
	handler OutputHandler
	onExit  TerminateHandler
	command CommandFunc
	stdinFd int

	procs   []*Process
	streams []*stream
	running bool
	active  int
	logCtx  context.Context

	forwarding bool
	ttyState   *tty.State

	// wake is a self-pipe written when the run context is cancelled.
	wakeMu     sync.Mutex
	wake       [2]int
	wakeClosed bool

	buf []byte
}

// Option configures a Manager.
type Option func(*Manager)

// WithCommandFunc sets the mapping applied to every argument vector before
// it is spawned, e.g. a container runtime wrapper.
func WithCommandFunc(fn CommandFunc) Option {
	return func(m *Manager) { m.command = fn }
}

// WithStdin sets the descriptor forwarded to children when Run is called
// with forwardStdin. It defaults to the process's standard input.
func WithStdin(fd int) Option {
	return func(m *Manager) { m.stdinFd = fd }
}

// NewManager returns a manager with the given handlers. Either may be nil.
func NewManager(handler OutputHandler, onExit TerminateHandler, opts ...Option) *Manager {
	m := &Manager{
		handler: handler,
		onExit:  onExit,
		command: func(args []string, _ bool) []string { return args },
		stdinFd: unix.Stdin,
		wake:    [2]int{-1, -1},
		buf:     make([]byte, 64*1024),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetHandler replaces the output handler for all processes, effective from
// the next chunk read.
func (m *Manager) SetHandler(h OutputHandler) {
	m.handler = h
}

// Processes returns the registered processes in registration order.
func (m *Manager) Processes() []*Process {
	return append([]*Process(nil), m.procs...)
}

// Add registers p. While Run is executing, p is spawned immediately and a
// spawn failure is returned; otherwise it is spawned when Run starts.
func (m *Manager) Add(p *Process) error {
	m.procs = append(m.procs, p)
	if m.running {
		return m.activate(p)
	}
	return nil
}

// Run spawns every registered process and multiplexes their output until
// no run-to-end process remains, a handler returns an error, or ctx is
// cancelled. With forwardStdin, the manager's stdin is switched to raw mode
// and its bytes are copied to every process that has an input side.
//
// On return every spawned process has been killed and reaped and the
// terminal mode has been restored, whatever the outcome.
func (m *Manager) Run(ctx context.Context, forwardStdin bool) (err error) {
	if m.running {
		return ErrRunning
	}
	logger := ctxlog.FromContext(ctx)
	m.logCtx = ctx
	m.running = true
	m.active = 0

	if err := m.openWake(); err != nil {
		m.running = false
		return err
	}
	stop := context.AfterFunc(ctx, m.signalWake)

	defer func() {
		stop()
		m.teardown(logger)
		m.closeWake()
		m.running = false
	}()

	if forwardStdin {
		if err := m.startForwarding(); err != nil {
			return err
		}
	}

	for _, p := range append([]*Process(nil), m.procs...) {
		if p.cmd == nil && !p.exited {
			if err := m.activate(p); err != nil {
				return err
			}
		}
	}

	for m.active > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.poll(); err != nil {
			return err
		}
	}
	return nil
}

// poll waits for one round of readiness events and services them.
func (m *Manager) poll() error {
	fds := make([]unix.PollFd, 0, len(m.streams)+2)
	fds = append(fds, unix.PollFd{Fd: int32(m.wake[0]), Events: unix.POLLIN})
	if m.forwarding {
		fds = append(fds, unix.PollFd{Fd: int32(m.stdinFd), Events: unix.POLLIN})
	}
	base := len(fds)
	snapshot := append([]*stream(nil), m.streams...)
	for _, s := range snapshot {
		fds = append(fds, unix.PollFd{Fd: int32(s.fd), Events: unix.POLLIN})
	}

	if _, err := unix.Poll(fds, -1); err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("poll: %w", err)
	}

	if fds[0].Revents != 0 {
		m.drainWake()
	}
	if m.forwarding && fds[1].Revents != 0 {
		if err := m.forwardStdin(); err != nil {
			return err
		}
	}
	for i, s := range snapshot {
		if fds[base+i].Revents == 0 || s.closed {
			continue
		}
		if err := m.service(s); err != nil {
			return err
		}
	}
	return nil
}

// service reads what is available on one stream and dispatches it.
func (m *Manager) service(s *stream) error {
	data, eof, rerr := readAvailable(s.fd, m.buf)
	if len(data) > 0 && m.handler != nil {
		if err := m.handler(m, s.proc, data, s.id); err != nil {
			return err
		}
	}
	if rerr != nil {
		ctxlog.FromContext(m.logCtx).Debug("Read failed, closing stream.", "process", s.proc.String(), "stream", s.id, "error", rerr)
	}
	if !eof || s.closed {
		return nil
	}

	p := s.proc
	m.closeStream(s)
	p.active--
	if p.active == 0 {
		return m.deactivate(p, false)
	}
	return nil
}

// activate spawns p and registers its output descriptors.
func (m *Manager) activate(p *Process) error {
	if len(p.Args) == 0 {
		return ErrEmptyCommand
	}
	args := m.command(p.Args, p.Interactive)
	if len(args) == 0 {
		return ErrEmptyCommand
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = p.Dir
	cmd.Env = p.Env

	var err error
	if p.Interactive {
		err = m.spawnPty(p, cmd)
	} else {
		err = m.spawnPipes(p, cmd)
	}
	if err != nil {
		return fmt.Errorf("starting %q: %w", p.String(), err)
	}

	p.cmd = cmd
	if p.RunToEnd {
		m.active++
	}
	ctxlog.FromContext(m.logCtx).Debug("Process started.", "process", p.String(), "pid", cmd.Process.Pid, "interactive", p.Interactive)
	return nil
}

func (m *Manager) spawnPty(p *Process, cmd *exec.Cmd) error {
	ptmx, pts, err := pty.Open()
	if err != nil {
		return err
	}
	defer ptmx.Close()

	cmd.Stdin, cmd.Stdout, cmd.Stderr = pts, pts, pts
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}
	err = cmd.Start()
	pts.Close()
	if err != nil {
		return err
	}

	// Keep a private descriptor for the master so that it bypasses the
	// runtime poller; the *os.File is closed by the deferred call.
	master, err := unix.Dup(int(ptmx.Fd()))
	if err != nil {
		killGroup(cmd)
		_ = cmd.Wait()
		return err
	}
	unix.CloseOnExec(master)
	if err := unix.SetNonblock(master, true); err != nil {
		unix.Close(master)
		killGroup(cmd)
		_ = cmd.Wait()
		return err
	}

	p.stdin = master
	p.streams = []*stream{m.register(p, master, Stdout)}
	p.active = 1
	return nil
}

func (m *Manager) spawnPipes(p *Process, cmd *exec.Cmd) error {
	var pipes [2][2]int
	for i := range pipes {
		if err := unix.Pipe2(pipes[i][:], unix.O_CLOEXEC); err != nil {
			for j := 0; j < i; j++ {
				unix.Close(pipes[j][0])
				unix.Close(pipes[j][1])
			}
			return err
		}
	}
	outW := os.NewFile(uintptr(pipes[0][1]), "stdout")
	errW := os.NewFile(uintptr(pipes[1][1]), "stderr")

	cmd.Stdout, cmd.Stderr = outW, errW
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	err := cmd.Start()
	outW.Close()
	errW.Close()
	if err != nil {
		unix.Close(pipes[0][0])
		unix.Close(pipes[1][0])
		return err
	}

	for _, r := range []int{pipes[0][0], pipes[1][0]} {
		if err := unix.SetNonblock(r, true); err != nil {
			unix.Close(pipes[0][0])
			unix.Close(pipes[1][0])
			killGroup(cmd)
			_ = cmd.Wait()
			return err
		}
	}

	p.stdin = -1
	p.streams = []*stream{
		m.register(p, pipes[0][0], Stdout),
		m.register(p, pipes[1][0], Stderr),
	}
	p.active = 2
	return nil
}

func (m *Manager) register(p *Process, fd int, id StreamID) *stream {
	s := &stream{fd: fd, id: id, proc: p}
	m.streams = append(m.streams, s)
	return s
}

// closeStream unregisters s and closes its descriptor unless it is still
// the process's input side.
func (m *Manager) closeStream(s *stream) {
	if s.closed {
		return
	}
	s.closed = true
	for i, r := range m.streams {
		if r == s {
			m.streams = append(m.streams[:i], m.streams[i+1:]...)
			break
		}
	}
	if s.fd != s.proc.stdin {
		unix.Close(s.fd)
	}
}

// deactivate releases every descriptor of p, reaps it and reports its exit.
// With force, the whole process group is killed first and ForcedExit is
// reported regardless of how it ended.
func (m *Manager) deactivate(p *Process, force bool) error {
	if p.cmd == nil {
		return nil
	}
	if p.RunToEnd {
		m.active--
	}
	for _, s := range p.streams {
		m.closeStream(s)
	}
	if p.stdin >= 0 {
		unix.Close(p.stdin)
		p.stdin = -1
	}

	if force {
		killGroup(p.cmd)
	}
	werr := p.cmd.Wait()

	code := waitStatusCode(p.cmd)
	if force {
		code = ForcedExit
	}
	p.cmd = nil
	p.exited = true
	p.exitCode = code

	var exitErr *exec.ExitError
	if werr != nil && !errors.As(werr, &exitErr) {
		ctxlog.FromContext(m.logCtx).Debug("Wait failed.", "process", p.String(), "error", werr)
	}
	ctxlog.FromContext(m.logCtx).Debug("Process terminated.", "process", p.String(), "exit_code", code, "forced", force)

	if m.onExit != nil {
		return m.onExit(m, p, code)
	}
	return nil
}

// teardown forcibly terminates every process still running. Handler errors
// are logged and dropped: teardown only runs once the loop has already
// decided how Run ends.
func (m *Manager) teardown(logger *slog.Logger) {
	for _, p := range m.procs {
		if err := m.deactivate(p, true); err != nil {
			logger.Warn("Error while terminating process.", "process", p.String(), "error", err)
		}
	}
	m.stopForwarding(logger)
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	// Children lead their own group (or session), so the pgid equals the pid.
	_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	_ = cmd.Process.Kill()
}
