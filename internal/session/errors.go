package session

import "errors"

var (
	// ErrDiscovery is returned when the primary process exits before the
	// ports of every terminal have been discovered.
	ErrDiscovery = errors.New("terminal discovery failed")
	// ErrPrimaryFailed is returned when the primary process exits with a
	// non-zero code.
	ErrPrimaryFailed = errors.New("primary process failed")
)
