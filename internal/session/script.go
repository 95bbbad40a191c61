package session

import (
	"slices"
	"strings"

	"github.com/vk/fwrig/internal/config"
	"github.com/vk/fwrig/internal/script"
)

// runPreamble starts the run script. Commands are not echoed.
var runPreamble = strings.Join([]string{
	"#!/bin/bash",
	"# FWRIG AUTOGENERATED SCRIPT.",
	"",
	"# Exit on error.",
	"set -e",
}, "\n") + "\n"

// Script returns the shell script executing the prerun commands and then
// the model.
func Script(run *config.Run) string {
	f := script.New("run model", script.WithPreamble(runPreamble))
	if len(run.Prerun) > 0 {
		f.Append("# Execute prerun commands.")
		f.Append(strings.Join(run.Prerun, "\n"))
		f.Append()
	}
	f.Append("# Run the model.")
	f.Append(strings.Join(prettyCommand(run.Run), "\n"))
	f.Seal()
	return f.Commands(true)
}

// prettyCommand spreads a single simulator invocation over several lines,
// one option per line in sorted order. Anything that does not look like an
// FVP or ISIM command line is returned unchanged.
func prettyCommand(run []string) []string {
	if len(run) != 1 {
		return run
	}
	prog := strings.ToLower(strings.SplitN(run[0], " ", 2)[0])
	if !strings.Contains(prog, "isim") && !strings.Contains(prog, "fvp") {
		return run
	}
	parts := strings.Split(run[0], " -")
	args := slices.Clone(parts[1:])
	slices.Sort(args)
	return []string{strings.Join(append([]string{parts[0]}, args...), " \\\n    -")}
}
