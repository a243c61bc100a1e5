// Package store provides SQLite-backed local storage for morgisync.
//
// It holds three things:
//   - Events: the journal of every event the engine applied, keyed by
//     session and logical sequence number
//   - Snapshot: the last saved mirror, used for offline listing
//   - Saved URLs: the capture allow-list used to skip duplicate saves
//
// # Ordering
//
// Journal reads are ordered by seq, never by wall time, so replaying a
// session applies events in the order the engine applied them.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
