// Package store provides the bounded (path, depth)-keyed cache of child
// listings.
//
// # Memory tier
//
// Store is a strict-LRU cache with exact byte accounting: the tracked total
// always equals the sum of entry size estimates. Admission (oversize,
// path-segment and depth limits) runs before eviction, so an entry that
// alone exceeds the budget is rejected without evicting anything. Eviction
// is pure recency - evict from the cold end until the new entry fits, then
// enforce the entry-count cap.
//
// In fast mode (Protected=false) nothing is rejected or evicted and Get does
// not touch recency; unbounded growth is the accepted trade-off for
// throughput.
//
// # Spill tier
//
// Spill is an optional disk L2 that receives capacity-evicted entries as
// codec-encoded, compressed path lists. It is in-process overflow, not
// persistence: the directory is emptied on construction and on Close.
package store
