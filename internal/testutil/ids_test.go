package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeqGenerator(t *testing.T) {
	g := NewSeqGenerator("tab")
	assert.Equal(t, "tab-1", g.Generate())
	assert.Equal(t, "tab-2", g.Generate())

	g.Reset()
	assert.Equal(t, "tab-1", g.Generate())
}

func TestSeqGenerator_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "cart-1", NewSeqGenerator("").Generate())
}

func TestSeqGenerator_Concurrent(t *testing.T) {
	g := NewSeqGenerator("x")
	seen := sync.Map{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, dup := seen.LoadOrStore(g.Generate(), true)
			assert.False(t, dup)
		}()
	}
	wg.Wait()
}

func TestProduct(t *testing.T) {
	p := Product(3, "Lamp", "12.50", 4)
	assert.Equal(t, int64(3), p.ID)
	assert.Equal(t, "12.50", p.ListPrice.StringFixed(2))
	assert.True(t, p.Available)
	assert.Equal(t, 4, p.Sellable())
}
