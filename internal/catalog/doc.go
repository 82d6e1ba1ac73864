// Package catalog provides the product catalog carts are validated against.
//
// Product is the reference a cart line captures at add time. The catalog is
// the authoritative source of current stock and availability; a line's
// captured copy is only consulted when the catalog does not know the product.
//
// Memory is the in-process catalog used by the CLI, the scenario harness, and
// tests. When bound to a kv.Storage it persists itself under the "products"
// key and writes a "products_sync" signal after every mutation so that other
// execution contexts sharing the domain can reload.
package catalog
