package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/vk/fwrig/internal/config"
	"github.com/vk/fwrig/internal/ctxlog"
	"github.com/vk/fwrig/internal/metrics"
	"github.com/vk/fwrig/internal/runtime"
	"github.com/vk/fwrig/internal/workspace"
)

// RuntimeFactory creates the execution runtime named by the config.
type RuntimeFactory func(name, image string) (runtime.Runtime, error)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	ctx    context.Context

	config     *Config
	ws         workspace.Workspace
	loader     config.Loader
	newRuntime RuntimeFactory
	metrics    *metrics.Metrics
	stdin      int
	ack        func() error

	httpServer *http.Server
}

// Option customises an App.
type Option func(*App)

// WithRuntimeFactory replaces runtime.New.
func WithRuntimeFactory(f RuntimeFactory) Option {
	return func(a *App) { a.newRuntime = f }
}

// WithStdin sets the descriptor forwarded to the simulator's terminals.
func WithStdin(fd int) Option {
	return func(a *App) { a.stdin = fd }
}

// WithAcknowledge replaces the Enter prompt shown for telnet terminals.
func WithAcknowledge(fn func() error) Option {
	return func(a *App) { a.ack = fn }
}

// NewApp is the constructor for the main application. User-facing output
// goes to outW and diagnostics to logW.
func NewApp(outW, logW io.Writer, appConfig *Config, ws workspace.Workspace, loader config.Loader, opts ...Option) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, logW)
	a := &App{
		outW:       outW,
		logger:     logger,
		ctx:        ctxlog.WithLogger(context.Background(), logger),
		config:     appConfig,
		ws:         ws,
		loader:     loader,
		newRuntime: runtime.New,
		metrics:    metrics.New(),
		stdin:      int(os.Stdin.Fd()),
	}
	for _, opt := range opts {
		opt(a)
	}
	logger.Debug("Logger configured successfully.")
	return a
}

// Metrics returns the application's collectors. This is primarily for testing.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Run executes the configured command.
func (a *App) Run(ctx context.Context) (err error) {
	ctx = ctxlog.With(ctxlog.WithLogger(ctx, a.logger), "command", a.config.Command)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.", "command", a.config.Command)

	if a.config.HealthcheckPort > 0 {
		a.healthCheckServer()
		defer func() { err = errors.Join(err, a.closeHealthCheckServer()) }()
	}
	if a.config.MetricsFile != "" {
		defer func() {
			if werr := a.metrics.WriteTextfile(a.config.MetricsFile); werr != nil {
				err = errors.Join(err, werr)
			}
		}()
	}

	switch a.config.Command {
	case CommandBuild:
		err = a.build(ctx)
	case CommandClean:
		err = a.clean(ctx)
	case CommandRun:
		err = a.run(ctx)
	case CommandInspect:
		err = a.inspect(ctx)
	default:
		err = fmt.Errorf("unknown command '%s'", a.config.Command)
	}
	a.logger.Debug("App.Run method finished.", "error", err)
	return err
}

// loadStore loads every config of the config store.
func (a *App) loadStore(ctx context.Context) (*config.Store, error) {
	dirs, err := a.ws.ConfigDirs()
	if err != nil {
		return nil, err
	}
	store, err := a.loader.Load(ctx, dirs...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	a.logger.Debug("Configuration loaded.", "configs", len(store.Configs))
	return store, nil
}

// withRuntime starts the configured runtime with the given volumes, calls
// fn and closes the runtime again.
func (a *App) withRuntime(ctx context.Context, volumes []string, fn func(rt runtime.Runtime) error) (err error) {
	rt, err := a.newRuntime(a.config.Runtime, a.config.Image)
	if err != nil {
		return err
	}
	for _, v := range volumes {
		rt.AddVolume(v)
	}
	// A cancelled run still has to remove its container.
	closeCtx := context.WithoutCancel(ctx)
	defer func() {
		if cerr := rt.Close(closeCtx); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("starting runtime: %w", err)
	}
	a.logger.Debug("Runtime started.", "runtime", a.config.Runtime, "volumes", len(volumes))
	return fn(rt)
}
