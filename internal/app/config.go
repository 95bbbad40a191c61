package app

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
)

// Command selects what an invocation does.
type Command string

const (
	CommandBuild   Command = "build"
	CommandClean   Command = "clean"
	CommandRun     Command = "run"
	CommandInspect Command = "inspect"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Command Command
	// Configs names the configs to operate on. Empty means every concrete
	// config, or every config for inspect with All.
	Configs []string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	MetricsFile     string

	Runtime string
	Image   string

	// Tasks bounds how many fragments run at once; Jobs is handed to each
	// component build.
	Tasks   int
	Jobs    int
	Verbose bool
	DryRun  bool
	NoColor bool

	Deep    bool
	Filters []string

	RunVars []string
	All     bool
}

// DefaultJobs is half the CPUs, capped at 32 and at least one.
func DefaultJobs() int {
	return max(1, min(runtime.NumCPU()/2, 32))
}

// NewConfig validates cfg.
func NewConfig(cfg Config) (*Config, error) {
	if !slices.Contains([]Command{CommandBuild, CommandClean, CommandRun, CommandInspect}, cfg.Command) {
		return nil, fmt.Errorf("unknown command '%s'", cfg.Command)
	}
	if cfg.Command == CommandRun && len(cfg.Configs) != 1 {
		return nil, errors.New("run needs exactly one config")
	}
	if cfg.Tasks < 1 {
		cfg.Tasks = DefaultJobs()
	}
	if cfg.Jobs < 1 {
		cfg.Jobs = DefaultJobs()
	}
	return &cfg, nil
}
