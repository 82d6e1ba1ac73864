// Package canon produces canonical JSON (RFC 8785 subset) and domain-separated
// fingerprints for cart state.
//
// Fingerprints identify a cart's contents independently of map iteration order
// or encoder whitespace. The store uses them to skip writes that would not
// change the persisted bytes, and the harness uses canonical JSON for golden
// trace files.
//
// Supported values: string, bool, int, int64, decimal.Decimal (encoded as a
// JSON string so no float ever reaches the output), []any, []string and
// map[string]any. Strings are NFC normalised at the serialization boundary.
// null and floats are rejected.
package canon
