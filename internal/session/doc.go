// Package session runs a simulator and attaches to its terminals.
//
// # How It Works
//
// A Session drives one primary process, the simulator started from the
// resolved run script, on a process.Manager with stdin forwarding. The
// simulator announces the TCP port of each of its terminals in its own
// startup output, so the session moves through three states:
//
//   - Discovering: every chunk of the primary's output is logged and scanned
//     with each terminal's port pattern. Once all ports are known, one
//     companion bridge is spawned per terminal that needs one.
//   - Stripping: interactive telnet bridges print a banner of their own.
//     Their lines are swallowed until the "Escape character" line has been
//     seen for every such bridge.
//   - Steady: everything is logged with per-source tags.
//
// Only the primary is run-to-end. Companions are killed when it exits, and
// their exit codes never fail the session.
package session
