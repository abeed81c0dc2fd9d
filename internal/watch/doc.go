// Package watch implements the watch-and-rebuild loop for snap projects.
// It monitors the source tree rooted at the entry file's directory,
// filters events through an ordered ignore-predicate list, and triggers
// the build pipeline with single-flight semantics so concurrent rebuilds
// never race on the output artifact.
package watch
