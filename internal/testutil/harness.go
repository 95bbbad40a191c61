// Package testutil holds the harness shared by the integration tests: a
// throwaway workspace with a config store, an App wired to it, and helpers
// for the timestamp records written by test build commands.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/fwrig/internal/app"
	"github.com/vk/fwrig/internal/hcl_adapter"
	"github.com/vk/fwrig/internal/workspace"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	// Output is what the user would see on stdout.
	Output    string
	LogOutput string
	Err       error
	App       *app.App
	Workspace workspace.Workspace
	// Dir is the temporary root holding the workspace.
	Dir string
}

// RunIntegrationTest provides a standardized harness for running integration tests
// using a default background context.
func RunIntegrationTest(t *testing.T, files map[string]string, cfg app.Config) *HarnessResult {
	t.Helper()
	return RunIntegrationTestWithContext(context.Background(), t, files, cfg)
}

// RunIntegrationTestWithContext writes files into a fresh config store and
// runs cfg against it. File contents may use {{root}}, replaced with the
// temporary root directory.
func RunIntegrationTestWithContext(ctx context.Context, t *testing.T, files map[string]string, cfg app.Config) *HarnessResult {
	t.Helper()

	// 1. Create a temporary root directory for the test.
	tmpDir := t.TempDir()
	ws := workspace.Workspace{
		Build:   filepath.Join(tmpDir, "build"),
		Package: filepath.Join(tmpDir, "package"),
		Configs: []string{filepath.Join(tmpDir, "configs")},
	}
	require.NoError(t, os.MkdirAll(ws.Configs[0], 0o755))

	// 2. Write all HCL files to the config store.
	for name, content := range files {
		path := filepath.Join(ws.Configs[0], name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(Expand(content, tmpDir)), 0o644))
	}

	return runApp(ctx, t, tmpDir, ws, cfg)
}

// RunInWorkspace runs cfg against the store and workspace of an earlier run,
// for tests that need several commands over the same tree.
func RunInWorkspace(t *testing.T, root string, ws workspace.Workspace, cfg app.Config) *HarnessResult {
	t.Helper()
	return runApp(context.Background(), t, root, ws, cfg)
}

func runApp(ctx context.Context, t *testing.T, root string, ws workspace.Workspace, cfg app.Config) *HarnessResult {
	t.Helper()
	// Configure the app with a quiet runtime and no terminal.
	if cfg.Runtime == "" {
		cfg.Runtime = "null"
	}
	cfg.LogLevel = "debug"
	cfg.LogFormat = "text"
	cfg.NoColor = true
	appConfig, err := app.NewConfig(cfg)
	require.NoError(t, err)

	devnull, err := os.Open(os.DevNull)
	require.NoError(t, err)
	defer devnull.Close()

	out := &SafeBuffer{}
	logBuffer := &SafeBuffer{}
	testApp := app.NewApp(out, logBuffer, appConfig, ws, hcl_adapter.NewLoader(ws, appConfig.Jobs),
		app.WithStdin(int(devnull.Fd())),
		app.WithAcknowledge(func() error { return nil }))

	// --- Act ---
	runErr := testApp.Run(ctx)

	if os.Getenv("FWRIG_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		t.Logf("--- Full Output for %s ---\n%s", t.Name(), out.String())
	}

	return &HarnessResult{
		Output:    out.String(),
		LogOutput: logBuffer.String(),
		Err:       runErr,
		App:       testApp,
		Workspace: ws,
		Dir:       root,
	}
}
