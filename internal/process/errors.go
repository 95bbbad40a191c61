package process

import "errors"

var (
	// ErrRunning is returned by Run when the manager's loop is already running.
	ErrRunning = errors.New("process manager is already running")
	// ErrEmptyCommand is returned when a process has no argument vector.
	ErrEmptyCommand = errors.New("process has an empty command")
)
