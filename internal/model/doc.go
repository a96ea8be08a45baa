// Package model defines the wire and in-memory types shared by the feed client.
//
// Types mirror the backend JSON contract field for field:
//   - Post: a single feed entry plus viewer-relative flags (liked, hasAccess)
//   - Page: one batch of posts and the opaque cursor for the next batch
//   - PostPatch: a shallow, field-level update applied by the post store
//   - Permissions / Subscriptions: viewer snapshots read by the access evaluator
//
// Handles are compared in NFC form so visually identical handles typed on
// different keyboards resolve to the same author.
package model
