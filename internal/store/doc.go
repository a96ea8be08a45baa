// Package store provides SQLite-backed durable storage for the feed client.
//
// The store is a small slot table: each key holds one opaque value and the
// wall-clock time (epoch milliseconds) it was last written. It plays the role
// browser local storage plays for a web client, surviving process restarts so
// a cold start can render the first feed page without a network round-trip.
//
// # Semantics
//
//   - Put is an upsert: the slot is overwritten unconditionally
//   - Get on a missing key reports found=false with a nil error
//   - Delete on a missing key is a no-op
//   - Keys are returned in BINARY collation order
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
