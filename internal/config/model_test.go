package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSelect(t *testing.T) {
	store := &Store{Configs: []*Config{
		{Name: "base"},
		{Name: "ns-edk2", Concrete: true},
		{Name: "ns-preload", Concrete: true},
	}}

	t.Run("defaults to concrete configs", func(t *testing.T) {
		got, err := store.Select()
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "ns-edk2", got[0].Name)
		assert.Equal(t, "ns-preload", got[1].Name)
	})

	t.Run("named configs keep their order", func(t *testing.T) {
		got, err := store.Select("ns-preload", "base")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "ns-preload", got[0].Name)
		assert.Equal(t, "base", got[1].Name)
	})

	t.Run("unknown config", func(t *testing.T) {
		_, err := store.Select("nope")
		assert.ErrorContains(t, err, "unknown config 'nope'")
	})
}

func TestParseTerminalKind(t *testing.T) {
	for _, s := range []string{"stdout", "stdinout", "xterm", "telnet"} {
		k, err := ParseTerminalKind(s)
		require.NoError(t, err)
		assert.Equal(t, TerminalKind(s), k)
	}
	_, err := ParseTerminalKind("serial")
	assert.ErrorContains(t, err, "unknown terminal type 'serial'")
}

func TestParseRunVars(t *testing.T) {
	got, err := ParseRunVars([]string{"KERNEL=/tmp/Image", "CMDLINE=console=ttyAMA0 root=/dev/vda", "EMPTY="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"KERNEL":  "/tmp/Image",
		"CMDLINE": "console=ttyAMA0 root=/dev/vda",
		"EMPTY":   "",
	}, got)

	_, err = ParseRunVars([]string{"novalue"})
	assert.ErrorContains(t, err, "invalid rtvar novalue")
}
