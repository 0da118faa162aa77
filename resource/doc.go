// Package resource implements the resource Controller for global limits.
//
// The Controller provides centralized management of three resource types:
//
//   - Memory: track and limit bytes held by the cache tiers (fail-fast)
//   - Concurrency: cap in-flight child enumerations during parallel traversal
//   - Rate: token-bucket limit on base-provider calls per second
//
// Memory acquisition is non-blocking: the cache declines to hold an entry
// rather than stalling a traversal. Fetch slots block, since parallel walkers
// must eventually make progress on every frontier node.
//
// A nil *Controller is a valid no-op receiver; all limits read as unlimited.
package resource
