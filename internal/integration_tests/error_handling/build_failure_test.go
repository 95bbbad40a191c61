package error_handling

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/fwrig/internal/app"
	"github.com/vk/fwrig/internal/scheduler"
	"github.com/vk/fwrig/internal/testutil"
)

// Test for: a failing build aborts the run and its dependents never start.
func TestErrorHandling_FailedBuildStopsDependents(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"broken.hcl": `
config "broken" {
  concrete = true

  component "bad" {
    build = ["echo boom", "exit 3"]
  }
  component "after" {
    depends_on = ["bad"]
    build      = ["` + testutil.Record("start", "after") + `"]
  }
}
`,
	}

	// --- Act ---
	result := testutil.RunIntegrationTest(t, files, app.Config{Command: app.CommandBuild})

	// --- Assert ---
	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, scheduler.ErrTaskFailed)
	var taskErr *scheduler.TaskError
	require.True(t, errors.As(result.Err, &taskErr))
	assert.Equal(t, 3, taskErr.ExitCode)

	assert.Contains(t, result.Output, "== error start")
	assert.Contains(t, result.Output, "boom")
	assert.Contains(t, result.Output, "== error end")

	_, err := os.Stat(filepath.Join(result.Dir, testutil.RecordsFile))
	assert.True(t, os.IsNotExist(err), "dependent of a failed build ran")
	assert.NoFileExists(t, filepath.Join(result.Workspace.PackageDir("broken"), app.BuildScriptName))
}

// Test for: configuration errors surface before anything is executed.
func TestErrorHandling_ConfigErrors(t *testing.T) {
	testCases := []struct {
		name    string
		files   map[string]string
		cfg     app.Config
		wantMsg string
	}{
		{
			name: "dependency cycle",
			files: map[string]string{"c.hcl": `
config "c" {
  concrete = true
  component "a" { depends_on = ["b"] }
  component "b" { depends_on = ["a"] }
}`},
			cfg:     app.Config{Command: app.CommandBuild},
			wantMsg: "invalid component dependencies",
		},
		{
			name: "unknown dependency",
			files: map[string]string{"c.hcl": `
config "c" {
  concrete = true
  component "a" { depends_on = ["ghost"] }
}`},
			cfg:     app.Config{Command: app.CommandBuild},
			wantMsg: "component 'a' depends on unknown component 'ghost'",
		},
		{
			name: "unknown artifact",
			files: map[string]string{"c.hcl": `
config "c" {
  concrete = true
  component "a" { build = ["cp ${artifact.NOPE} ."] }
}`},
			cfg:     app.Config{Command: app.CommandBuild},
			wantMsg: "references unknown artifact 'NOPE'",
		},
		{
			name:    "malformed file",
			files:   map[string]string{"c.hcl": `config "c" {`},
			cfg:     app.Config{Command: app.CommandInspect},
			wantMsg: "failed to load configuration",
		},
		{
			name: "duplicate config",
			files: map[string]string{
				"one.hcl": `config "dup" {}`,
				"two.hcl": `config "dup" {}`,
			},
			cfg:     app.Config{Command: app.CommandInspect, All: true},
			wantMsg: "config 'dup' declared in both",
		},
		{
			name:    "unknown config",
			files:   map[string]string{"c.hcl": `config "c" {}`},
			cfg:     app.Config{Command: app.CommandBuild, Configs: []string{"d"}},
			wantMsg: "unknown config 'd'",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Act ---
			result := testutil.RunIntegrationTest(t, tc.files, tc.cfg)

			// --- Assert ---
			require.Error(t, result.Err)
			assert.ErrorContains(t, result.Err, tc.wantMsg)
			assert.NoDirExists(t, result.Workspace.Build, "nothing was executed")
		})
	}
}
