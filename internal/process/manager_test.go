package process

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// recorder collects output and exit codes per process.
type recorder struct {
	out   map[*Process]*strings.Builder
	err   map[*Process]*strings.Builder
	exits map[*Process]int
	order []*Process
}

func newRecorder() *recorder {
	return &recorder{
		out:   map[*Process]*strings.Builder{},
		err:   map[*Process]*strings.Builder{},
		exits: map[*Process]int{},
	}
}

func (r *recorder) handle(_ *Manager, p *Process, data []byte, s StreamID) error {
	m := r.out
	if s == Stderr {
		m = r.err
	}
	if m[p] == nil {
		m[p] = &strings.Builder{}
	}
	m[p].Write(data)
	return nil
}

func (r *recorder) exit(_ *Manager, p *Process, code int) error {
	r.exits[p] = code
	r.order = append(r.order, p)
	return nil
}

func (r *recorder) stdout(p *Process) string {
	if b := r.out[p]; b != nil {
		return b.String()
	}
	return ""
}

func sh(script string, runToEnd bool) *Process {
	return New([]string{"sh", "-c", script}, false, runToEnd)
}

func alive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}

func TestManager_RunCollectsOutputAndExitCodes(t *testing.T) {
	// --- Arrange ---
	rec := newRecorder()
	m := NewManager(rec.handle, rec.exit)
	ok := sh("echo hello; echo oops >&2", true)
	fail := sh("echo partial; exit 3", true)
	killed := sh("kill -9 $$", true)
	require.NoError(t, m.Add(ok))
	require.NoError(t, m.Add(fail))
	require.NoError(t, m.Add(killed))

	// --- Act ---
	err := m.Run(context.Background(), false)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "hello\n", rec.stdout(ok))
	assert.Equal(t, "oops\n", rec.err[ok].String())
	assert.Equal(t, "partial\n", rec.stdout(fail))

	assert.Equal(t, 0, rec.exits[ok])
	assert.Equal(t, 3, rec.exits[fail])
	assert.Equal(t, 128+9, rec.exits[killed])

	code, exited := fail.ExitCode()
	assert.True(t, exited)
	assert.Equal(t, 3, code)
	assert.False(t, fail.Running())
}

func TestManager_CompanionsAreForceKilled(t *testing.T) {
	rec := newRecorder()
	m := NewManager(rec.handle, rec.exit)
	companion := sh("echo $$; exec sleep 30", false)
	primary := sh("sleep 0.2; echo done", true)
	require.NoError(t, m.Add(companion))
	require.NoError(t, m.Add(primary))

	start := time.Now()
	require.NoError(t, m.Run(context.Background(), false))

	assert.Less(t, time.Since(start), 10*time.Second, "loop must exit once the primary ends")
	assert.Equal(t, 0, rec.exits[primary])
	assert.Equal(t, ForcedExit, rec.exits[companion])

	pid, err := strconv.Atoi(strings.TrimSpace(rec.stdout(companion)))
	require.NoError(t, err)
	assert.False(t, alive(pid), "companion must be killed and reaped")
}

func TestManager_HandlerErrorAbortsRun(t *testing.T) {
	// --- Arrange ---
	boom := errors.New("boom")
	rec := newRecorder()
	var pids []int
	handler := func(m *Manager, p *Process, data []byte, s StreamID) error {
		if strings.HasPrefix(string(data), "pid=") {
			pid, _ := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(string(data), "pid=")))
			pids = append(pids, pid)
			return nil
		}
		return boom
	}
	m := NewManager(handler, rec.exit)
	sleeper := sh("echo pid=$$; exec sleep 30", true)
	require.NoError(t, m.Add(sleeper))
	require.NoError(t, m.Add(sh("sleep 0.2; echo trigger", true)))

	// --- Act ---
	err := m.Run(context.Background(), false)

	// --- Assert ---
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ForcedExit, rec.exits[sleeper])
	require.Len(t, pids, 1)
	assert.False(t, alive(pids[0]))
}

func TestManager_TerminateHandlerErrorAbortsRun(t *testing.T) {
	failed := errors.New("task failed")
	var forced []*Process
	onExit := func(m *Manager, p *Process, code int) error {
		if code == ForcedExit {
			forced = append(forced, p)
			return errors.New("ignored during teardown")
		}
		if code != 0 {
			return failed
		}
		return nil
	}
	m := NewManager(nil, onExit)
	long := sh("exec sleep 30", true)
	require.NoError(t, m.Add(long))
	require.NoError(t, m.Add(sh("exit 1", true)))

	err := m.Run(context.Background(), false)
	assert.ErrorIs(t, err, failed)
	assert.Equal(t, []*Process{long}, forced)
}

func TestManager_AddWhileRunningAndSetHandler(t *testing.T) {
	var seen []string
	second := sh("echo second", true)

	handler := func(m *Manager, p *Process, data []byte, s StreamID) error {
		seen = append(seen, "first:"+string(data))
		m.SetHandler(func(m *Manager, p *Process, data []byte, s StreamID) error {
			seen = append(seen, "swapped:"+string(data))
			return nil
		})
		return nil
	}
	onExit := func(m *Manager, p *Process, code int) error {
		if p != second {
			return m.Add(second)
		}
		return nil
	}

	m := NewManager(handler, onExit)
	require.NoError(t, m.Add(sh("echo first", true)))
	require.NoError(t, m.Run(context.Background(), false))

	assert.Equal(t, []string{"first:first\n", "swapped:second\n"}, seen)
	code, exited := second.ExitCode()
	assert.True(t, exited)
	assert.Equal(t, 0, code)
	assert.Len(t, m.Processes(), 2)
}

func TestManager_ContextCancel(t *testing.T) {
	rec := newRecorder()
	m := NewManager(rec.handle, rec.exit)
	p := sh("exec sleep 30", true)
	require.NoError(t, m.Add(p))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := m.Run(ctx, false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ForcedExit, rec.exits[p])
}

func TestManager_CommandFunc(t *testing.T) {
	rec := newRecorder()
	var gotInteractive []bool
	wrap := func(args []string, interactive bool) []string {
		gotInteractive = append(gotInteractive, interactive)
		return append([]string{"env", "FWRIG_WRAPPED=1"}, args...)
	}
	m := NewManager(rec.handle, rec.exit, WithCommandFunc(wrap))
	p := sh("echo $FWRIG_WRAPPED", true)
	require.NoError(t, m.Add(p))
	require.NoError(t, m.Run(context.Background(), false))

	assert.Equal(t, "1\n", rec.stdout(p))
	assert.Equal(t, []bool{false}, gotInteractive)
}

func TestManager_SpawnFailure(t *testing.T) {
	rec := newRecorder()
	m := NewManager(rec.handle, rec.exit)
	other := sh("exec sleep 30", true)
	require.NoError(t, m.Add(other))
	require.NoError(t, m.Add(New([]string{"/nonexistent/fwrig-binary"}, false, true)))

	err := m.Run(context.Background(), false)
	assert.ErrorContains(t, err, "starting")
	assert.Equal(t, ForcedExit, rec.exits[other])

	m = NewManager(nil, nil)
	require.NoError(t, m.Add(New(nil, false, true)))
	assert.ErrorIs(t, m.Run(context.Background(), false), ErrEmptyCommand)
}

func requirePty(t *testing.T) {
	t.Helper()
	ptmx, pts, err := pty.Open()
	if err != nil {
		t.Skipf("no pty available: %v", err)
	}
	ptmx.Close()
	pts.Close()
}

func TestManager_InteractiveUsesPty(t *testing.T) {
	requirePty(t)
	rec := newRecorder()
	m := NewManager(rec.handle, rec.exit)
	p := New([]string{"sh", "-c", "if [ -t 0 ] && [ -t 1 ]; then echo is-a-tty; fi"}, true, true)
	require.NoError(t, m.Add(p))

	require.NoError(t, m.Run(context.Background(), false))
	assert.Contains(t, rec.stdout(p), "is-a-tty")
	assert.Equal(t, 0, rec.exits[p])
	assert.Empty(t, rec.err[p], "pty output is merged into one stream")
}

func TestManager_ForwardStdin(t *testing.T) {
	requirePty(t)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	_, err = w.WriteString("hello\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	rec := newRecorder()
	m := NewManager(rec.handle, rec.exit, WithStdin(int(r.Fd())))
	interactive := New([]string{"sh", "-c", "read line; echo got:$line"}, true, true)
	piped := sh("cat; echo piped-done", true)
	require.NoError(t, m.Add(interactive))
	require.NoError(t, m.Add(piped))

	require.NoError(t, m.Run(context.Background(), true))

	assert.Contains(t, rec.stdout(interactive), "got:hello")
	assert.Equal(t, "piped-done\n", rec.stdout(piped), "non-interactive processes read /dev/null")
}

func TestManager_ForwardStdinRestoresTerminalOnError(t *testing.T) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("no pty available: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	// --- Arrange ---
	fd := int(tty.Fd())
	before, err := term.GetState(fd)
	require.NoError(t, err)

	boom := errors.New("boom")
	var during *term.State
	handler := func(_ *Manager, _ *Process, _ []byte, _ StreamID) error {
		during, _ = term.GetState(fd)
		return boom
	}
	m := NewManager(handler, nil, WithStdin(fd))
	require.NoError(t, m.Add(sh("echo hi; sleep 5", true)))

	// --- Act ---
	err = m.Run(context.Background(), true)

	// --- Assert ---
	require.ErrorIs(t, err, boom)
	require.NotNil(t, during)
	assert.NotEqual(t, before, during, "stdin is in raw mode while running")
	after, err := term.GetState(fd)
	require.NoError(t, err)
	assert.Equal(t, before, after, "terminal mode is restored after an error")
}
