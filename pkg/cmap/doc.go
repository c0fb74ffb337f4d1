// Package cmap provides a sharded concurrent map.
//
// Keys are strings; each shard has its own RWMutex, so operations on keys in
// different shards never contend. GetOrCreate and DeleteIf let
// callers build check-then-act sequences without an outer lock, which is how
// the rate limiter creates and expires its buckets.
//
//	m := cmap.New[*bucket]()
//	b := m.GetOrCreate(key, newBucket)
package cmap
