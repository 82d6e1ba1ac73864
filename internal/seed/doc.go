// Package seed loads catalog and price fixtures written in CUE.
//
// A seed declares products keyed by a label, and optional price adjustment
// records keyed by the same labels:
//
//	product: Keyboard: {
//		id:    1
//		price: 80.00
//		stock: 3
//		sku:   "KB-1"
//	}
//
//	price: Keyboard: {
//		current:    80.00
//		adjustment: 10
//		direction:  "-"
//	}
//
// name defaults to the label and available defaults to true. Numbers are
// read from their literal text so prices keep their exact decimal value.
package seed
