// Package kv provides the key-value persistence substrate carts are stored in.
//
// A domain is one shared storage area (the analogue of a browser origin's
// localStorage). Each execution context that uses the domain (a tab, a CLI
// process) obtains its own Storage handle by name. The contract mirrors the
// platform's storage events:
//
//   - Set is write-through and synchronous from the caller's perspective.
//   - Watch callbacks fire for writes made by OTHER contexts only. A context
//     never observes its own writes, which keeps self-reconciliation loops
//     from forming.
//   - A write whose bytes equal the stored value is a no-op and notifies
//     nobody. Two contexts merging each other's carts therefore stop
//     exchanging writes as soon as their encodings converge.
//
// Ordering within a domain uses a logical sequence (seq) assigned at write
// time, never wall-clock time.
//
// Two domains are provided:
//
//   - Memory: in-process, delivers changes synchronously after the write.
//   - SQLite: file-backed and shareable between processes. Changes are
//     discovered by polling rows with seq greater than the last one seen.
package kv
