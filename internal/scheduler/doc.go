// Package scheduler executes a dag.Graph of script fragments as external
// processes with bounded concurrency.
//
// # How It Works
//
// The scheduler keeps a FIFO ready queue seeded with the graph's source
// fragments. Whenever a slot is free it pops a fragment, writes its command
// text to script.sh in a private temporary directory and hands `bash
// script.sh` to a process.Manager. When the process exits:
//
//   - exit code 0: the temporary directory is removed, the fragment is marked
//     done in the dag.Sorter, newly unblocked fragments are queued and the
//     queue is pumped again.
//   - non-zero: buffered output is printed between error markers and Run
//     returns a *TaskError. Nothing further is started; the manager's
//     teardown kills whatever is still running.
//   - process.ForcedExit: the fragment was killed because something else
//     failed. Nothing else happens.
//
// All of this runs on the manager's single-threaded loop, so the scheduler
// itself needs no locking.
//
// # Output
//
// Each (config, component) pair gets a status label. In the default mode
// fragment output is buffered and only shown if the fragment fails, except
// for standard error which is logged as it arrives. In verbose mode every
// stream is logged live with a per-fragment tag and labels are appended
// rather than overdrawn.
package scheduler
