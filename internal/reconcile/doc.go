// Package reconcile keeps a cart.Store consistent with the world around it.
//
// Three kinds of signal arrive as typed Notifications:
//
//   - cart: another execution context wrote this identity's cart. The payload
//     is decoded through the validated codec and merged with ReplaceItems,
//     never copied over the live cart.
//   - catalog: stock, availability, or the product list changed. Every line
//     is revalidated against the catalog; vanished or unavailable products
//     are removed and over-stock quantities are clamped.
//   - price: adjustment records changed. Totals are recomputed.
//
// Signals are only ever enqueued by callbacks. A single writer (Run, or a
// caller of Drain) processes them in FIFO order, so reconciliation never
// re-enters itself from inside a storage callback.
//
// Every change reaches the store through ReplaceItems, so each published
// snapshot already satisfies the stock invariant.
package reconcile
