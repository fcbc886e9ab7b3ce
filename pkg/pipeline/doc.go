// Package pipeline implements a minimal CI pipeline runner based on a
// declarative matrix config (YAML or Starlark) and mvdan.cc/sh for the shell
// runtime. The goal is a fairly simple and portable system that can replay a
// hosted CI pipeline on a local machine with the same fail-fast semantics.
package pipeline
