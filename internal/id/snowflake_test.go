package id

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextIsStrictlyIncreasing(t *testing.T) {
	g, err := NewGenerator(1)
	require.NoError(t, err)

	prev := g.Next()
	for i := 0; i < 10000; i++ {
		next := g.Next()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestNextIsUniqueAcrossGoroutines(t *testing.T) {
	g, err := NewGenerator(3)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := make(map[int64]struct{})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				v := g.Next()
				mu.Lock()
				seen[v] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 8*500)
}

func TestFormatKeepsLexicalOrder(t *testing.T) {
	assert.Equal(t, "0000000000000000042", Format(42))
	assert.Less(t, Format(999), Format(1000))
	assert.Len(t, Format(1<<62), 19)
}

func TestInvalidNode(t *testing.T) {
	_, err := NewGenerator(5000)
	assert.Error(t, err)
}
