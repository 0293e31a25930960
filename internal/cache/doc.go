// Package cache is the process-local tier: one TTL table per entity kind,
// each with its own size bound.
//
// A read of a present but expired entry is a miss; the entry stays in
// memory until the next sweep or overwrite. When a table is full the oldest
// quarter of its entries, by write time, is evicted in one batch before the
// insert. With the cache switched off every read misses and every write is
// dropped, so callers fall through to the database unchanged.
package cache
