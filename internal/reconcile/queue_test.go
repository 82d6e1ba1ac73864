package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := newQueue()
	require.True(t, q.enqueue(Notification{Kind: KindCart, Key: "a"}))
	require.True(t, q.enqueue(Notification{Kind: KindCatalog, Key: "b"}))
	require.True(t, q.enqueue(Notification{Kind: KindPrice, Key: "c"}))
	assert.Equal(t, 3, q.len())

	for _, want := range []string{"a", "b", "c"} {
		n, ok := q.tryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, n.Key)
	}
	_, ok := q.tryDequeue()
	assert.False(t, ok)
}

func TestQueue_SignalCoalesces(t *testing.T) {
	q := newQueue()
	q.enqueue(Notification{Kind: KindCart})
	q.enqueue(Notification{Kind: KindCart})

	select {
	case <-q.wait():
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-q.wait():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestQueue_Close(t *testing.T) {
	q := newQueue()
	q.enqueue(Notification{Kind: KindCart})
	q.close()
	q.close()

	assert.False(t, q.enqueue(Notification{Kind: KindCart}))

	// Items queued before close are still delivered
	_, ok := q.tryDequeue()
	assert.True(t, ok)

	_, open := <-q.wait()
	assert.False(t, open)
}
