// Package exclusions holds the set of record pairs a user has confirmed are
// not duplicates.
//
// Pairs are symmetric: (A,B) and (B,A) are the same entry, stored once in
// canonical order. Every mutation is written through a Persister before it
// returns. When the write fails the in-memory change stands, the returned
// error wraps ErrPersistPending, and a background loop retries with
// exponential backoff until the write lands or the store is closed.
//
// Two persisters ship with the package: FilePersister writes a versioned YAML
// file, and MemoryPersister is used by tests. The sqlite storage package
// provides a third.
package exclusions
