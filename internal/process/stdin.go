package process

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/vk/fwrig/internal/tty"
	"golang.org/x/sys/unix"
)

// startForwarding switches stdin to raw mode and registers it.
func (m *Manager) startForwarding() error {
	state, err := tty.Configure(m.stdinFd)
	if err != nil {
		return fmt.Errorf("configuring terminal: %w", err)
	}
	m.ttyState = state
	m.forwarding = true
	return nil
}

// stopForwarding restores the terminal mode saved by startForwarding.
func (m *Manager) stopForwarding(logger *slog.Logger) {
	m.forwarding = false
	if m.ttyState == nil {
		return
	}
	if err := tty.Restore(m.stdinFd, m.ttyState); err != nil {
		logger.Warn("Failed to restore terminal mode.", "error", err)
	}
	m.ttyState = nil
}

// forwardStdin copies whatever is pending on stdin to every process with an
// open input side. EOF on stdin stops forwarding.
func (m *Manager) forwardStdin() error {
	var (
		data []byte
		eof  bool
		rerr error
	)
	err := withNonblock(m.stdinFd, func() error {
		data, eof, rerr = readAvailable(m.stdinFd, m.buf)
		return nil
	})
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	if rerr != nil {
		return fmt.Errorf("reading stdin: %w", rerr)
	}

	for _, p := range m.procs {
		if p.stdin < 0 || len(data) == 0 {
			continue
		}
		if werr := writeAll(p.stdin, data); werr != nil {
			if errors.Is(werr, unix.EIO) || errors.Is(werr, unix.EPIPE) {
				// The child is going away; its EOF is handled on the read side.
				continue
			}
			return fmt.Errorf("forwarding stdin to %q: %w", p.String(), werr)
		}
	}

	if eof {
		m.forwarding = false
	}
	return nil
}

// openWake creates the self-pipe used to interrupt poll on cancellation.
func (m *Manager) openWake() error {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return fmt.Errorf("creating wake pipe: %w", err)
	}
	m.wakeMu.Lock()
	m.wake = fds
	m.wakeClosed = false
	m.wakeMu.Unlock()
	return nil
}

// signalWake is called from the context's AfterFunc goroutine.
func (m *Manager) signalWake() {
	m.wakeMu.Lock()
	defer m.wakeMu.Unlock()
	if m.wakeClosed {
		return
	}
	_, _ = unix.Write(m.wake[1], []byte{0})
}

func (m *Manager) drainWake() {
	var b [64]byte
	for {
		if n, err := unix.Read(m.wake[0], b[:]); n <= 0 || err != nil {
			return
		}
	}
}

func (m *Manager) closeWake() {
	m.wakeMu.Lock()
	defer m.wakeMu.Unlock()
	if m.wakeClosed {
		return
	}
	m.wakeClosed = true
	unix.Close(m.wake[0])
	unix.Close(m.wake[1])
	m.wake = [2]int{-1, -1}
}
