package builder

import "strings"

// Preamble starts every generated script.
var Preamble = strings.Join([]string{
	"#!/bin/bash",
	"# FWRIG AUTOGENERATED SCRIPT.",
	"",
	"# Exit on error and echo commands.",
	"set -ex",
}, "\n") + "\n"
