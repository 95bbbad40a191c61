// Package cli turns fwrig's command line into an app.Config. It owns the
// cobra command tree, flag validation and the exit code of usage errors;
// nothing here touches the workspace.
package cli
