package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vk/fwrig/internal/config"
	"github.com/vk/fwrig/internal/ctxlog"
	"github.com/vk/fwrig/internal/logger"
	"github.com/vk/fwrig/internal/metrics"
	"github.com/vk/fwrig/internal/process"
	"golang.org/x/sys/unix"
)

const (
	// ScriptName is the file the run script is written to.
	ScriptName = "script.sh"

	primaryTag = "fvp"
	minTagSize = 3
	maxTagSize = 10

	// discoveryLimit bounds how much of the primary's recent output is kept
	// for matching port patterns split across reads.
	discoveryLimit = 64 * 1024

	telnetBanner = "Escape character is '^]'."
)

// Environment is where the simulator and its companions execute.
// runtime.Runtime satisfies it.
type Environment interface {
	Command(args []string, interactive bool) []string
	IPAddress(ctx context.Context) string
}

// hostEnvironment runs everything as is on the local host.
type hostEnvironment struct{}

func (hostEnvironment) Command(args []string, _ bool) []string { return args }
func (hostEnvironment) IPAddress(context.Context) string       { return "127.0.0.1" }

// Options configures a Session.
type Options struct {
	// Out receives the tagged output and prompts. Defaults to os.Stdout.
	Out      io.Writer
	Colorize bool
	// TempDir is the parent of the private run directory.
	TempDir string
	// Env defaults to running on the host.
	Env Environment
	// Acknowledge blocks until the user has read the manual dial
	// instructions of telnet terminals. Defaults to waiting for Enter on
	// Stdin.
	Acknowledge func() error
	// Stdin is the descriptor forwarded to interactive companions.
	Stdin        int
	ForwardStdin bool
	Metrics      *metrics.Metrics
}

type state int

const (
	discovering state = iota
	stripping
	steady
)

func (s state) String() string {
	switch s {
	case discovering:
		return "discovering"
	case stripping:
		return "stripping"
	default:
		return "steady"
	}
}

type terminal struct {
	config.Terminal
	re   *regexp.Regexp
	port string
}

func (t *terminal) display() string {
	if t.Friendly != "" {
		return t.Friendly
	}
	return t.Name
}

// awaited reports whether the session waits for the terminal's port.
func (t *terminal) awaited() bool {
	return t.re != nil
}

// companion tracks one bridge process. While strip is set its output is
// swallowed line by line until the telnet banner has gone by.
type companion struct {
	term    *terminal
	strip   bool
	partial []byte
}

// Session runs one simulator invocation. A Session is used once.
type Session struct {
	run   *config.Run
	opts  Options
	terms []*terminal
	log   *logger.Logger

	ctx        context.Context
	state      state
	primary    *process.Process
	companions map[*process.Process]*companion
	stripping  int
	seen       []byte
}

// New validates the terminal descriptors of run and returns a session for it.
func New(run *config.Run, opts Options) (*Session, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Env == nil {
		opts.Env = hostEnvironment{}
	}
	if opts.Acknowledge == nil {
		opts.Acknowledge = waitForEnter(opts.Stdin)
	}

	s := &Session{
		run:        run,
		opts:       opts,
		companions: make(map[*process.Process]*companion),
	}
	for _, t := range run.Terminals {
		term := &terminal{Terminal: t}
		switch {
		case t.PortRegex != "":
			re, err := regexp.Compile(t.PortRegex)
			if err != nil {
				return nil, fmt.Errorf("terminal '%s' port_regex: %w", t.Name, err)
			}
			term.re = re
		case t.Kind != config.KindXterm:
			return nil, fmt.Errorf("terminal '%s' of type %s needs a port_regex", t.Name, t.Kind)
		}
		s.terms = append(s.terms, term)
	}
	s.log = logger.New(opts.Out, s.tagSize(), opts.Colorize)
	return s, nil
}

// tagSize is the longest display name of a terminal, clamped to a range that
// keeps the primary's tag readable.
func (s *Session) tagSize() int {
	size := 0
	for _, t := range s.terms {
		size = max(size, min(len(t.display()), maxTagSize))
	}
	return max(size, minTagSize)
}

// Run writes the run script, boots the simulator and attaches to its
// terminals. It returns once the simulator has exited or the user quit with
// the interrupt key, which cancels ctx.
func (s *Session) Run(ctx context.Context) (err error) {
	logger := ctxlog.FromContext(ctx)
	s.ctx = ctx

	dir, err := os.MkdirTemp(s.opts.TempDir, "fwrig-run-")
	if err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}
	defer func() {
		if rerr := os.RemoveAll(dir); rerr != nil && err == nil {
			err = fmt.Errorf("removing run directory: %w", rerr)
		}
	}()
	path := filepath.Join(dir, ScriptName)
	if err := os.WriteFile(path, []byte(Script(s.run)), 0o755); err != nil {
		return fmt.Errorf("writing run script: %w", err)
	}

	s.primary = process.New([]string{"bash", path}, false, true)
	s.log.Register(s.primary, primaryTag)

	var handler process.OutputHandler = s.handle
	if !s.anyAwaited() {
		s.state = steady
		handler = s.log.Log
	}
	m := process.NewManager(handler, s.terminated,
		process.WithCommandFunc(s.opts.Env.Command),
		process.WithStdin(s.opts.Stdin))
	if err := m.Add(s.primary); err != nil {
		return err
	}

	ip := s.opts.Env.IPAddress(ctx)
	fmt.Fprintf(s.opts.Out, "\nPress '^]' to quit.\nAll other keys are passed through.\nEnvironment ip address: %s.\n\n", ip)
	logger.Debug("Session starting.", "script", path, "terminals", len(s.terms), "state", s.state)

	err = m.Run(ctx, s.opts.ForwardStdin)
	if nerr := s.log.Newline(); nerr != nil && err == nil {
		err = nerr
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("Session interrupted by user.")
		return nil
	}
	return err
}

func (s *Session) anyAwaited() bool {
	for _, t := range s.terms {
		if t.awaited() {
			return true
		}
	}
	return false
}

// handle dispatches output according to the current state.
func (s *Session) handle(m *process.Manager, p *process.Process, data []byte, stream process.StreamID) error {
	switch s.state {
	case discovering:
		return s.discover(m, p, data, stream)
	case stripping:
		return s.strip(m, p, data, stream)
	default:
		return s.log.Log(m, p, data, stream)
	}
}

func (s *Session) discover(m *process.Manager, p *process.Process, data []byte, stream process.StreamID) error {
	if err := s.log.Log(m, p, data, stream); err != nil {
		return err
	}
	if p != s.primary {
		return nil
	}

	s.seen = append(s.seen, data...)
	if len(s.seen) > discoveryLimit {
		s.seen = append([]byte(nil), s.seen[len(s.seen)-discoveryLimit:]...)
	}
	// Only complete lines are matched; a port may still be arriving.
	end := bytes.LastIndexByte(s.seen, '\n')
	if end < 0 {
		return nil
	}
	s.resolve(s.seen[:end+1])
	if len(s.unresolved()) > 0 {
		return nil
	}
	s.seen = nil
	return s.attach(m)
}

// resolve records the port of every awaited terminal whose pattern
// matches buf.
func (s *Session) resolve(buf []byte) {
	for _, t := range s.terms {
		if !t.awaited() || t.port != "" {
			continue
		}
		match := t.re.FindSubmatch(buf)
		if match == nil {
			continue
		}
		t.port = string(match[0])
		if len(match) > 1 {
			t.port = string(match[1])
		}
		ctxlog.FromContext(s.ctx).Debug("Terminal port discovered.", "terminal", t.Name, "port", t.port)
	}
}

func (s *Session) unresolved() []string {
	var names []string
	for _, t := range s.terms {
		if t.awaited() && t.port == "" {
			names = append(names, t.Name)
		}
	}
	return names
}

// attach spawns one companion per bridged terminal and tells the user how
// to reach the telnet ones.
func (s *Session) attach(m *process.Manager) error {
	wait := false
	for _, t := range s.terms {
		switch t.Kind {
		case config.KindStdout:
			if err := s.spawn(m, t, false); err != nil {
				return err
			}
		case config.KindStdinout:
			if err := s.spawn(m, t, true); err != nil {
				return err
			}
		case config.KindTelnet:
			if !wait {
				if err := s.log.Newline(); err != nil {
					return err
				}
			}
			wait = true
			fmt.Fprintf(s.opts.Out, "To start %s terminal, run:\n    telnet %s %s\n",
				t.display(), s.opts.Env.IPAddress(s.ctx), t.port)
		}
	}
	if wait {
		fmt.Fprint(s.opts.Out, "\nPress Enter to continue...")
		if err := s.opts.Acknowledge(); err != nil {
			return fmt.Errorf("waiting for acknowledgement: %w", err)
		}
		fmt.Fprintln(s.opts.Out)
	}

	if s.stripping > 0 {
		s.state = stripping
		return nil
	}
	s.enterSteady(m)
	return nil
}

func (s *Session) spawn(m *process.Manager, t *terminal, interactive bool) error {
	args := bridgeCommand(t, interactive)
	p := process.New(args, interactive, false)
	c := &companion{term: t, strip: interactive && filepath.Base(args[0]) == "telnet"}
	s.companions[p] = c
	s.log.Register(p, t.display())
	if c.strip {
		s.stripping++
	}
	if err := m.Add(p); err != nil {
		return fmt.Errorf("starting %s terminal: %w", t.display(), err)
	}
	s.opts.Metrics.CompanionStarted()
	return nil
}

// bridgeCommand returns the companion command of t with its port filled in.
func bridgeCommand(t *terminal, interactive bool) []string {
	if len(t.Bridge) == 0 {
		prog := "nc"
		if interactive {
			prog = "telnet"
		}
		return []string{prog, "localhost", t.port}
	}
	args := make([]string, len(t.Bridge))
	for i, a := range t.Bridge {
		args[i] = strings.ReplaceAll(a, "{port}", t.port)
	}
	return args
}

func (s *Session) strip(m *process.Manager, p *process.Process, data []byte, stream process.StreamID) error {
	c := s.companions[p]
	if c == nil || !c.strip {
		return s.log.Log(m, p, data, stream)
	}

	c.partial = append(c.partial, data...)
	for c.strip {
		i := bytes.IndexByte(c.partial, '\n')
		if i < 0 {
			return nil
		}
		line := string(c.partial[:i])
		c.partial = c.partial[i+1:]
		if strings.TrimRight(line, "\r") == telnetBanner {
			s.stripped(m, c)
		}
	}

	rest := c.partial
	c.partial = nil
	if len(rest) > 0 {
		return s.log.Log(m, p, rest, stream)
	}
	return nil
}

// stripped marks c as past its banner.
func (s *Session) stripped(m *process.Manager, c *companion) {
	c.strip = false
	c.partial = nil
	s.stripping--
	if s.stripping == 0 && s.state == stripping {
		s.enterSteady(m)
	}
}

func (s *Session) enterSteady(m *process.Manager) {
	s.state = steady
	m.SetHandler(s.log.Log)
	ctxlog.FromContext(s.ctx).Debug("Session attached.", "companions", len(s.companions))
}

func (s *Session) terminated(m *process.Manager, p *process.Process, code int) error {
	if p == s.primary {
		switch {
		case code == process.ForcedExit:
			return nil
		case code != 0:
			return fmt.Errorf("%w: exit code %d", ErrPrimaryFailed, code)
		case s.state == discovering:
			if names := s.unresolved(); len(names) > 0 {
				return fmt.Errorf("%w: no port found for %s", ErrDiscovery, strings.Join(names, ", "))
			}
		}
		return nil
	}

	c, ok := s.companions[p]
	if !ok {
		return nil
	}
	if code != 0 && code != process.ForcedExit {
		ctxlog.FromContext(s.ctx).Debug("Terminal bridge exited.", "terminal", c.term.Name, "exit_code", code)
	}
	if c.strip {
		s.stripped(m, c)
	}
	return nil
}

// waitForEnter returns an acknowledgement that reads fd until a carriage
// return or newline. The terminal may be in raw mode, so both count.
func waitForEnter(fd int) func() error {
	return func() error {
		var b [1]byte
		for {
			n, err := unix.Read(fd, b[:])
			switch {
			case errors.Is(err, unix.EINTR):
				continue
			case err != nil:
				return err
			case n == 0, b[0] == '\r', b[0] == '\n':
				return nil
			}
		}
	}
}
