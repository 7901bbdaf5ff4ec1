// Package store persists trace documents in SQLite.
//
// Each drained document becomes a run; each of its entries becomes a row
// keyed by a content-addressed id. Writes are idempotent: storing the same
// run twice leaves the database unchanged.
//
// # Ordering
//
// Runs and entries carry an integer seq assigned at write time. Every query
// orders by seq and then by id, never by wall-clock timestamps, so listings
// are identical across processes.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
