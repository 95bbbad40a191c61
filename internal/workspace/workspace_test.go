package workspace

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestFromEnv(t *testing.T) {
	t.Run("defaults below home", func(t *testing.T) {
		home := t.TempDir()
		ws, err := FromEnv(env(nil), home)
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(home, ".fwrig", "build"), ws.Build)
		assert.Equal(t, filepath.Join(home, ".fwrig", "package"), ws.Package)
		assert.Empty(t, ws.Configs)

		_, err = ws.ConfigDirs()
		assert.ErrorIs(t, err, ErrNoConfigStore)
	})

	t.Run("environment overrides", func(t *testing.T) {
		root := t.TempDir()
		ws, err := FromEnv(env(map[string]string{
			EnvBuild:   filepath.Join(root, "b"),
			EnvPackage: filepath.Join(root, "p"),
			EnvConfig:  filepath.Join(root, "c1") + "::" + filepath.Join(root, "c2"),
		}), "/nonexistent")
		require.NoError(t, err)

		want := Workspace{
			Build:   filepath.Join(root, "b"),
			Package: filepath.Join(root, "p"),
			Configs: []string{filepath.Join(root, "c1"), filepath.Join(root, "c2")},
		}
		if diff := cmp.Diff(want, ws); diff != "" {
			t.Errorf("FromEnv() mismatch (-want +got):\n%s", diff)
		}

		require.NoError(t, ws.Ensure())
		assert.DirExists(t, ws.Build)
		assert.DirExists(t, ws.Package)
	})
}

func TestPaths(t *testing.T) {
	ws := Workspace{Build: "/w/build", Package: "/w/package"}
	assert.Equal(t, "/w/package/ns-edk2", ws.PackageDir("ns-edk2"))
	assert.Equal(t, "/w/build/source/ns-edk2/tfa", ws.SourceDir("ns-edk2", "tfa"))
	assert.Equal(t, "/w/build/build/ns-edk2/tfa", ws.BuildDir("ns-edk2", "tfa"))
}
