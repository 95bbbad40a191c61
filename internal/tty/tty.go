// Package tty switches the controlling terminal into the raw-ish input mode
// used while forwarding keystrokes to child processes.
package tty

import (
	"errors"

	"golang.org/x/sys/unix"
)

// InterruptKey is the byte that raises SIGINT while the terminal is
// configured: Ctrl-].
const InterruptKey = 0x1d

// State is a saved terminal mode. A nil *State means fd was not a terminal.
type State struct {
	termios unix.Termios
}

// Configure puts fd into non-canonical, non-echoing mode with carriage
// returns passed through untranslated. Ctrl-] becomes the interrupt key and
// the quit and suspend keys are disabled, so every other key reaches the
// children. If fd is not a terminal, Configure returns a nil state and no
// error.
func Configure(fd int) (*State, error) {
	orig, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		if errors.Is(err, unix.ENOTTY) || errors.Is(err, unix.EINVAL) || errors.Is(err, unix.ENODEV) {
			return nil, nil
		}
		return nil, err
	}

	mode := *orig
	mode.Iflag &^= unix.INLCR | unix.IGNCR | unix.ICRNL
	mode.Lflag &^= unix.ECHO | unix.ICANON
	mode.Cc[unix.VMIN] = 1
	mode.Cc[unix.VTIME] = 0
	mode.Cc[unix.VINTR] = InterruptKey
	mode.Cc[unix.VQUIT] = 0
	mode.Cc[unix.VSUSP] = 0

	if err := unix.IoctlSetTermios(fd, ioctlSetTermiosFlush, &mode); err != nil {
		return nil, err
	}
	return &State{termios: *orig}, nil
}

// Restore reinstates a state returned by Configure. A nil state is a no-op.
func Restore(fd int, s *State) error {
	if s == nil {
		return nil
	}
	return unix.IoctlSetTermios(fd, ioctlSetTermiosFlush, &s.termios)
}
