package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vk/fwrig/internal/app"
	"github.com/vk/fwrig/internal/runtime"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// globalFlags are shared by every command.
type globalFlags struct {
	runtime         string
	image           string
	logLevel        string
	logFormat       string
	healthcheckPort int
	metricsFile     string
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")

	var (
		g      globalFlags
		result *app.Config
	)
	root := newRootCmd(&g)
	root.AddCommand(
		newBuildCmd(&g, &result),
		newCleanCmd(&g, &result),
		newRunCmd(&g, &result),
		newInspectCmd(&g, &result),
	)
	root.SetArgs(args)
	root.SetOut(output)
	root.SetErr(output)

	if err := root.Execute(); err != nil {
		var exitErr *ExitError
		if e, ok := err.(*ExitError); ok {
			exitErr = e
		} else {
			exitErr = usageError("%s", err.Error())
		}
		return nil, false, exitErr
	}
	if result == nil {
		// Help was requested or no command was given.
		return nil, true, nil
	}

	slog.Debug("CLI parser finished successfully.", "command", result.Command)
	return result, false, nil
}

func newRootCmd(g *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "fwrig",
		Short: "Build firmware configs and run them on a simulator.",
		Long: `fwrig builds firmware configurations from component definitions and boots
them on a simulator, attaching to the simulator's terminals.

Configs are read from the directories listed in FWRIG_CONFIG. Builds are
placed under FWRIG_BUILD (default ~/.fwrig/build) and packaged under
FWRIG_PACKAGE (default ~/.fwrig/package).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&g.runtime, "runtime", "R", runtime.Null,
		fmt.Sprintf("Environment commands execute in. Options: %s.", strings.Join(runtime.Names, ", ")))
	pf.StringVarP(&g.image, "image", "I", "fwrig/base:latest", "Container image used by the docker runtimes.")
	pf.StringVar(&g.logLevel, "log-level", "warn", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&g.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	pf.IntVar(&g.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	pf.StringVar(&g.metricsFile, "metrics-file", "", "Write prometheus metrics to this file on exit.")
	return root
}

// config validates the global flags and builds the app config for cmd.
func (g *globalFlags) config(cmd app.Command, base app.Config) (*app.Config, error) {
	logFormat := strings.ToLower(g.logFormat)
	if logFormat != "text" && logFormat != "json" {
		return nil, usageError("invalid log-format: must be 'text' or 'json'")
	}
	logLevel := strings.ToLower(g.logLevel)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	if !slices.Contains(runtime.Names, g.runtime) {
		return nil, usageError("invalid runtime: must be one of %s", strings.Join(runtime.Names, ", "))
	}
	if g.healthcheckPort < 0 {
		return nil, usageError("invalid healthcheck-port: must not be negative")
	}

	base.Command = cmd
	base.Runtime = g.runtime
	base.Image = g.image
	base.LogLevel = logLevel
	base.LogFormat = logFormat
	base.HealthcheckPort = g.healthcheckPort
	base.MetricsFile = g.metricsFile

	cfg, err := app.NewConfig(base)
	if err != nil {
		return nil, usageError("%s", err.Error())
	}
	return cfg, nil
}

// buildFlags are shared by build and clean.
type buildFlags struct {
	tasks   int
	jobs    int
	verbose bool
	dryRun  bool
	noColor bool
}

func (f *buildFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVarP(&f.tasks, "tasks", "t", app.DefaultJobs(), "Maximum number of tasks performed in parallel.")
	fs.IntVarP(&f.jobs, "jobs", "j", app.DefaultJobs(), "Maximum number of low-level jobs each component build performs in parallel.")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Show the output of every executed command.")
	fs.BoolVarP(&f.dryRun, "dry-run", "n", false, "Print the script that would be executed instead of executing it.")
	fs.BoolVarP(&f.noColor, "no-color", "c", false, "Do not colorize logs.")
}

func (f *buildFlags) validate() error {
	if f.tasks < 1 {
		return usageError("invalid tasks: must be at least 1")
	}
	if f.jobs < 1 {
		return usageError("invalid jobs: must be at least 1")
	}
	return nil
}

func (f *buildFlags) apply(c *app.Config) {
	c.Tasks = f.tasks
	c.Jobs = f.jobs
	c.Verbose = f.verbose
	c.DryRun = f.dryRun
	c.NoColor = f.noColor
}

func newBuildCmd(g *globalFlags, out **app.Config) *cobra.Command {
	var f buildFlags
	cmd := &cobra.Command{
		Use:   "build [config...]",
		Short: "Build and package configs. Without arguments, every concrete config is built.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.validate(); err != nil {
				return err
			}
			base := app.Config{Configs: args}
			f.apply(&base)
			cfg, err := g.config(app.CommandBuild, base)
			if err != nil {
				return err
			}
			*out = cfg
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newCleanCmd(g *globalFlags, out **app.Config) *cobra.Command {
	var (
		f       buildFlags
		deep    bool
		filters []string
	)
	cmd := &cobra.Command{
		Use:   "clean [config...]",
		Short: "Clean build trees and packages. Without arguments, every concrete config is cleaned.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.validate(); err != nil {
				return err
			}
			base := app.Config{Configs: args, Deep: deep, Filters: filters}
			f.apply(&base)
			cfg, err := g.config(app.CommandClean, base)
			if err != nil {
				return err
			}
			*out = cfg
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVarP(&deep, "deep", "d", false, "Remove source trees as well.")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Only clean this [config.]component. May be repeated.")
	return cmd
}

func newRunCmd(g *globalFlags, out **app.Config) *cobra.Command {
	var (
		rtvars  []string
		dryRun  bool
		noColor bool
	)
	cmd := &cobra.Command{
		Use:   "run <config>",
		Short: "Boot a previously built config on the simulator.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := app.Config{Configs: args, RunVars: rtvars, DryRun: dryRun, NoColor: noColor}
			cfg, err := g.config(app.CommandRun, base)
			if err != nil {
				return err
			}
			*out = cfg
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&rtvars, "rtvar", "r", nil, "Override a run-time variable as key=value. May be repeated.")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Print the run script instead of executing it.")
	cmd.Flags().BoolVarP(&noColor, "no-color", "c", false, "Do not colorize logs.")
	return cmd
}

func newInspectCmd(g *globalFlags, out **app.Config) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "inspect [config...]",
		Short: "Describe configs. Without arguments, every concrete config is described.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config(app.CommandInspect, app.Config{Configs: args, All: all})
			if err != nil {
				return err
			}
			*out = cfg
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Describe every config, not only the concrete ones.")
	return cmd
}
