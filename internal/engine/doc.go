// Package engine applies user mutations to the local post store before the
// backend confirms them.
//
// Every mutation follows the same path:
//  1. Resolve the bearer token. Without one the mutation is rejected and no
//     local state changes.
//  2. Apply the local change (Do) so the UI reflects it immediately.
//  3. Send the request once. Mutations are never retried.
//  4. On failure, restore the prior state (Undo) if the mutation has one,
//     run its failure hook and raise a notice for the viewer.
//
// Each mutation gets a UUIDv7 mutation ID and a sequence number from the
// engine's logical clock. Both appear in logs and trace events so a run can
// be compared against a golden trace.
//
// Overlapping mutations on the same post are not queued. The last response
// to arrive wins.
package engine
