// Package testutil provides deterministic helpers shared by tests and the
// scenario harness.
package testutil

import (
	"fmt"
	"sync"
)

// SeqGenerator hands out "<prefix>-1", "<prefix>-2", ... and never runs out.
//
// Implements cart.IDGenerator. Safe for concurrent use.
type SeqGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSeqGenerator creates a generator. An empty prefix becomes "cart".
func NewSeqGenerator(prefix string) *SeqGenerator {
	if prefix == "" {
		prefix = "cart"
	}
	return &SeqGenerator{prefix: prefix}
}

// Generate returns the next ID.
func (g *SeqGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts the sequence at 1.
func (g *SeqGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
