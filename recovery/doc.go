// Package recovery provides failure policies for tree sources.
//
// A recovery.Source wraps any source.Source and decides per failed
// enumeration whether to abort, skip the node, or retry with backoff.
// Skipped and exhausted failures are collected for later inspection, so a
// long traversal over a flaky backend can finish and report what it missed.
package recovery
