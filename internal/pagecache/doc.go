// Package pagecache persists the first feed page across process restarts.
//
// The cache has exactly one slot. A write stores the page together with the
// time it was written; a read returns the page only while it is younger than
// the TTL, otherwise it evicts the slot and reports a miss. Expiry is checked
// lazily on read, never by a background timer.
//
// Caching is best-effort: backend failures are logged and swallowed, and an
// entry that fails to decode is treated as a miss.
package pagecache
