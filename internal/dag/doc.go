// Package dag holds the Task Graph: sealed script fragments and the
// prerequisite relation between them.
//
// Every fragment added to a Graph is given a stable integer handle, assigned
// in insertion order. Handles, not fragment contents, are the identity of a
// node, and every listing the package returns is ordered by handle so that
// generated scripts and scheduling order are deterministic for a given
// configuration.
//
// A Sorter walks a Graph in topological order in the same ready/done style the
// scheduler consumes: Ready hands out nodes whose prerequisites have all been
// marked Done.
package dag
