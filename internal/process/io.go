package process

import (
	"errors"

	"golang.org/x/sys/unix"
)

// maxDrain bounds how much is read from one descriptor per readiness event
// so a chatty process cannot starve the others.
const maxDrain = 1 << 20

// readAvailable reads from a non-blocking fd until it would block. eof is
// set when the stream has ended; a pty master reports EIO once the slave
// side is closed, which counts as EOF too.
func readAvailable(fd int, buf []byte) (data []byte, eof bool, err error) {
	for len(data) < maxDrain {
		n, rerr := unix.Read(fd, buf)
		if n > 0 {
			data = append(data, buf[:n]...)
			continue
		}
		switch {
		case rerr == nil:
			return data, true, nil
		case errors.Is(rerr, unix.EINTR):
			continue
		case errors.Is(rerr, unix.EAGAIN):
			return data, false, nil
		case errors.Is(rerr, unix.EIO):
			return data, true, nil
		default:
			return data, true, rerr
		}
	}
	return data, false, nil
}

// writeAll writes data to a non-blocking fd, waiting for writability when
// the kernel buffer is full.
func writeAll(fd int, data []byte) error {
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if n > 0 {
			data = data[n:]
		}
		switch {
		case err == nil:
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
			if _, perr := unix.Poll(pfd, -1); perr != nil && !errors.Is(perr, unix.EINTR) {
				return perr
			}
		default:
			return err
		}
	}
	return nil
}

// withNonblock runs fn with fd temporarily switched to non-blocking mode.
// The terminal's stdin and stdout usually share one file description, so
// leaving stdin non-blocking would make writes to stdout fail with EAGAIN.
func withNonblock(fd int, fn func() error) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return err
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags|unix.O_NONBLOCK); err != nil {
		return err
	}
	ferr := fn()
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags); err != nil && ferr == nil {
		ferr = err
	}
	return ferr
}
