// Package app contains the core application logic. It defines the App
// struct, its configuration and the lifecycle of one fwrig invocation:
// loading configs from the store, preparing the execution runtime and
// dispatching to the build, clean, run or inspect command. It is decoupled
// from any specific entrypoint like a CLI.
package app
