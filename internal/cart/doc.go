// Package cart implements the Cart Store: the authoritative in-memory cart
// for one identity, persisted write-through to a kv.Storage.
//
// Invariants maintained after every operation:
//   - at most one line per product ID
//   - every line has Quantity >= 1
//   - every line has Quantity <= the product's current stock
//   - TotalQuantity and TotalPrice are recomputed from the lines and the
//     current price source, never trusted from input
//
// Business-rule refusals (insufficient stock, stale line index) are reported
// as Outcome values. Only construction can fail with an error.
//
// Thread-safety: all operations are serialized by a mutex. Subscribers are
// invoked outside the lock, one snapshot at a time, in publication order.
package cart
