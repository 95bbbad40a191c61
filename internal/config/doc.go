// Package config defines the format-agnostic, resolved configuration model:
// configs made of components with fully substituted build commands, the
// artifacts they export, and the run descriptor used to boot the simulator.
//
// The Loader interface is the boundary to the config resolver. Concrete
// implementations, such as the HCL one, live in separate packages.
package config
