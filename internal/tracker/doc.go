// Package tracker records traversal progress as two logical sets:
// discovered paths (seen as somebody's child) and expanded paths (children
// actually enumerated).
//
// A pure "visited" boolean is ambiguous: consumers need to know whether a
// node's children were enumerated versus merely referenced. Conflating the
// two causes either false "already processed" skips or redundant work.
//
// In safe mode the tracker also keeps evicted side-sets, so a query can
// answer "was present, data since evicted" instead of a wrong "never seen".
// For each dimension a path is in exactly one of {absent, present, evicted}.
package tracker
