// Package process runs many child processes at once and multiplexes their
// output on a single-threaded poll loop.
//
// A Manager owns a set of Processes. Run spawns every registered process,
// waits for readiness on all of their output descriptors, and hands the bytes
// to the current OutputHandler. When all streams of a process reach EOF the
// process is reaped and the TerminateHandler receives its exit code. The loop
// exits once no run-to-end process remains; anything still running at that
// point, or when a handler fails, is killed during teardown and reported with
// the ForcedExit sentinel.
//
// Interactive processes are backed by a pseudo terminal whose master side
// serves as both their input and output. Non-interactive processes get
// separate stdout and stderr pipes and read from /dev/null.
//
// Handlers run on the loop itself, never concurrently, and may call Add and
// SetHandler.
package process
