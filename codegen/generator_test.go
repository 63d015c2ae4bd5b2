package codegen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequentialGenerator(t *testing.T) {
	g := NewSequentialGenerator(6, 0)

	first, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, "000001", first)

	prev := uint64(1)
	for i := 0; i < 100; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		n, err := Decode(code)
		require.NoError(t, err)
		assert.Greater(t, n, prev)
		prev = n
	}
}

func TestSequentialGeneratorConcurrentUniqueness(t *testing.T) {
	g := NewSequentialGenerator(8, 0)

	const workers = 16
	const perWorker = 200

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				code, err := g.Generate()
				assert.NoError(t, err)
				mu.Lock()
				seen[code] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestRandomGenerator(t *testing.T) {
	g := NewRandomGenerator(7)

	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		assert.Len(t, code, 7)
		for j := 0; j < len(code); j++ {
			assert.True(t, strings.IndexByte(Alphabet, code[j]) >= 0, "character %q outside alphabet", code[j])
		}
		seen[code] = struct{}{}
	}
	// 500 draws from 62^7 should essentially never collide
	assert.Len(t, seen, 500)
}
