package tty

import (
	"os"
	"testing"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestConfigureRestore(t *testing.T) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("no pty available: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	fd := int(tty.Fd())
	before, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	require.NoError(t, err)

	// --- Act ---
	state, err := Configure(fd)
	require.NoError(t, err)
	require.NotNil(t, state)

	// --- Assert ---
	raw, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	require.NoError(t, err)
	assert.Zero(t, raw.Lflag&(unix.ECHO|unix.ICANON), "echo and canonical mode must be off")
	assert.Zero(t, raw.Iflag&(unix.INLCR|unix.IGNCR|unix.ICRNL), "input translation must be off")
	assert.EqualValues(t, InterruptKey, raw.Cc[unix.VINTR])
	assert.EqualValues(t, 1, raw.Cc[unix.VMIN])
	assert.EqualValues(t, 0, raw.Cc[unix.VQUIT])

	require.NoError(t, Restore(fd, state))
	after, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	require.NoError(t, err)
	assert.Equal(t, before.Lflag, after.Lflag)
	assert.Equal(t, before.Iflag, after.Iflag)
	assert.Equal(t, before.Cc, after.Cc)
}

func TestConfigure_NotATerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "notatty")
	require.NoError(t, err)
	defer f.Close()

	state, err := Configure(int(f.Fd()))
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.NoError(t, Restore(int(f.Fd()), state))
}
