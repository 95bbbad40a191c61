package cli

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/fwrig/internal/app"
)

func TestParse_Commands(t *testing.T) {
	jobs := app.DefaultJobs()
	testCases := []struct {
		name string
		args []string
		want app.Config
	}{
		{
			name: "build defaults",
			args: []string{"build"},
			want: app.Config{
				Command: app.CommandBuild, Runtime: "null", Image: "fwrig/base:latest",
				LogLevel: "warn", LogFormat: "text", Tasks: jobs, Jobs: jobs,
			},
		},
		{
			name: "build with flags",
			args: []string{"-R", "docker", "--log-level", "DEBUG", "build", "-t", "2", "-j", "8", "-v", "-n", "-c", "ns-edk2", "ns-linux"},
			want: app.Config{
				Command: app.CommandBuild, Configs: []string{"ns-edk2", "ns-linux"}, Runtime: "docker", Image: "fwrig/base:latest",
				LogLevel: "debug", LogFormat: "text", Tasks: 2, Jobs: 8, Verbose: true, DryRun: true, NoColor: true,
			},
		},
		{
			name: "clean deep with filters",
			args: []string{"clean", "-d", "-f", "tfa", "--filter", "ns.edk2", "ns"},
			want: app.Config{
				Command: app.CommandClean, Configs: []string{"ns"}, Runtime: "null", Image: "fwrig/base:latest",
				LogLevel: "warn", LogFormat: "text", Tasks: jobs, Jobs: jobs, Deep: true, Filters: []string{"tfa", "ns.edk2"},
			},
		},
		{
			name: "run with rtvars",
			args: []string{"--log-format", "json", "--healthcheck-port", "9090", "--metrics-file", "/tmp/m.prom", "run", "ns", "-r", "KERNEL=/k", "--rtvar", "CMDLINE=quiet"},
			want: app.Config{
				Command: app.CommandRun, Configs: []string{"ns"}, Runtime: "null", Image: "fwrig/base:latest",
				LogLevel: "warn", LogFormat: "json", HealthcheckPort: 9090, MetricsFile: "/tmp/m.prom",
				Tasks: jobs, Jobs: jobs, RunVars: []string{"KERNEL=/k", "CMDLINE=quiet"},
			},
		},
		{
			name: "inspect all",
			args: []string{"inspect", "--all"},
			want: app.Config{
				Command: app.CommandInspect, Runtime: "null", Image: "fwrig/base:latest",
				LogLevel: "warn", LogFormat: "text", Tasks: jobs, Jobs: jobs, All: true,
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			var out bytes.Buffer

			// --- Act ---
			cfg, exit, err := Parse(tc.args, &out)

			// --- Assert ---
			require.NoError(t, err)
			assert.False(t, exit)
			require.NotNil(t, cfg)
			if diff := cmp.Diff(tc.want, *cfg, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_HelpExitsCleanly(t *testing.T) {
	for _, args := range [][]string{{}, {"-h"}, {"build", "--help"}} {
		var out bytes.Buffer
		cfg, exit, err := Parse(args, &out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	}
}

func TestParse_UsageErrors(t *testing.T) {
	testCases := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{name: "invalid log level", args: []string{"--log-level", "trace", "build"}, wantMsg: "invalid log-level"},
		{name: "invalid log format", args: []string{"--log-format", "xml", "build"}, wantMsg: "invalid log-format"},
		{name: "invalid runtime", args: []string{"-R", "podman", "build"}, wantMsg: "invalid runtime"},
		{name: "zero tasks", args: []string{"build", "-t", "0"}, wantMsg: "invalid tasks"},
		{name: "run without config", args: []string{"run"}, wantMsg: "accepts 1 arg(s)"},
		{name: "unknown flag", args: []string{"build", "--bogus"}, wantMsg: "unknown flag: --bogus"},
		{name: "unknown command", args: []string{"deploy"}, wantMsg: "unknown command"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			cfg, exit, err := Parse(tc.args, &out)

			assert.Nil(t, cfg)
			assert.False(t, exit)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.wantMsg)
		})
	}
}
