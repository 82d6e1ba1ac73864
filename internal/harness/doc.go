// Package harness runs YAML cart scenarios across several execution contexts
// that share one storage domain.
//
// # Scenario Format
//
//	name: clamp_on_add
//	description: "Adding past stock clamps the line"
//	seed: ../shop              # optional CUE seed dir, relative to this file
//	products:
//	  - { id: 1, name: Keyboard, price: "10.00", stock: 5 }
//	prices:
//	  - { product: 1, current: "10.00", adjustment: "20", direction: "-" }
//	user: { id: "7" }
//	tabs: [a, b]               # default: [main]
//	steps:
//	  - tab: a
//	    op: add
//	    product: 1
//	    quantity: 4
//	    expect: { kind: added, changed: true }
//	  - op: set_stock          # admin op, written from the "admin" context
//	    product: 1
//	    stock: 2
//	  - op: reconcile          # drain every tab until all are idle
//	assertions:
//	  - { type: line, tab: b, product: 1, quantity: 2 }
//	  - { type: notice, tab: a, kind: adjusted, product: 1 }
//	  - { type: converged }
//
// Tab ops: add, remove, update, inc, dec, clear, refresh.
// Admin ops: set_stock, set_available, delete_product, put_product,
// set_price, write_raw.
//
// Writes made in one context are delivered to the others synchronously but
// only queued; nothing is reconciled until a reconcile step runs. Two tabs
// can therefore act on stale state between reconcile steps, which is how
// concurrent sessions are simulated.
//
// # Assertion Types
//
//   - line: a tab's quantity (0 means no line), unit price, and price source
//     for one product
//   - totals: a tab's total quantity and total price
//   - notice: a tab's reconciler reported a notice of the given kind
//   - converged: every tab holds the same lines and totals
//   - trace_count: an op ran exactly N times
//
// # Deterministic Testing
//
// Cart IDs come from testutil.SeqGenerator and trace sequence numbers from a
// kv.Clock starting at zero, so traces compare byte-for-byte against golden
// files in testdata/golden.
package harness
