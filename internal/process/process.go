package process

import (
	"os/exec"
	"strings"
	"syscall"
)

// StreamID identifies the output stream a chunk was read from.
type StreamID int

const (
	// Stdout is the standard output stream, and the merged stream of
	// interactive processes.
	Stdout StreamID = iota
	// Stderr is the standard error stream of non-interactive processes.
	Stderr
)

func (s StreamID) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// ForcedExit is reported instead of an exit code for processes the manager
// killed during teardown.
const ForcedExit = -1

// stream is one registered output descriptor.
type stream struct {
	fd     int
	id     StreamID
	proc   *Process
	closed bool
}

// Process is a command managed by a Manager.
type Process struct {
	// Args is the logical argument vector; the manager's command mapping
	// may wrap it before spawning.
	Args []string
	// Interactive processes run on a pseudo terminal.
	Interactive bool
	// RunToEnd processes keep the manager's loop alive until they exit.
	RunToEnd bool
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env, when non-nil, replaces the inherited environment.
	Env []string

	cmd     *exec.Cmd
	stdin   int
	streams []*stream
	active  int

	exited   bool
	exitCode int
}

// New returns a process for args.
func New(args []string, interactive, runToEnd bool) *Process {
	return &Process{Args: args, Interactive: interactive, RunToEnd: runToEnd, stdin: -1}
}

// String returns the argument vector joined by spaces.
func (p *Process) String() string {
	return strings.Join(p.Args, " ")
}

// Pid returns the OS process id while the process is running, or 0.
func (p *Process) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Running reports whether the process has been spawned and not yet reaped.
func (p *Process) Running() bool {
	return p.cmd != nil
}

// ExitCode returns the reported exit code and whether the process has
// terminated.
func (p *Process) ExitCode() (int, bool) {
	return p.exitCode, p.exited
}

// waitStatusCode maps a reaped process state to an exit code. A process
// killed by a signal reports 128 plus the signal number, as shells do.
func waitStatusCode(cmd *exec.Cmd) int {
	st := cmd.ProcessState
	if st == nil {
		return ForcedExit
	}
	if ws, ok := st.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return st.ExitCode()
}
