package cache

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectIndex(t *testing.T) {
	idx := newDirectIndex(4)
	_, found := idx.get(0)
	assert.False(t, found, "Key 0 must not be found in an empty index")

	idx.put(0, 2)
	idx.put(3, 0)
	pos, found := idx.get(0)
	assert.True(t, found)
	assert.Equal(t, int32(2), pos)
	pos, found = idx.get(3)
	assert.True(t, found)
	assert.Equal(t, int32(0), pos)

	idx.remove(0)
	_, found = idx.get(0)
	assert.False(t, found)
}

func TestHashedIndex_Sizing(t *testing.T) {
	assert.Len(t, newHashedIndex(1).cells, 2)
	assert.Len(t, newHashedIndex(2).cells, 4)
	assert.Len(t, newHashedIndex(3).cells, 8)
	assert.Len(t, newHashedIndex(64).cells, 128)
}

func TestHashedIndex_PutGetRemove(t *testing.T) {
	idx := newHashedIndex(4)
	for pos, key := range []int{0, 1, math.MaxInt, 1 << 40} {
		idx.put(key, int32(pos))
	}
	for pos, key := range []int{0, 1, math.MaxInt, 1 << 40} {
		got, found := idx.get(key)
		assert.Truef(t, found, "key %d", key)
		assert.Equalf(t, int32(pos), got, "key %d", key)
	}

	idx.put(1, 3) // Overwrite.
	got, found := idx.get(1)
	assert.True(t, found)
	assert.Equal(t, int32(3), got)

	idx.remove(0)
	idx.remove(0) // Removing an absent key is a no-op.
	_, found = idx.get(0)
	assert.False(t, found)
	_, found = idx.get(math.MaxInt)
	assert.True(t, found)
}

// TestHashedIndex_MatchesMap runs a random workload against both the index and a map and compares them.
func TestHashedIndex_MatchesMap(t *testing.T) {
	const capacity = 16
	rng := rand.New(rand.NewPCG(1, 2))
	idx := newHashedIndex(capacity)
	expected := make(map[int]int32)

	for step := 0; step < 10_000; step++ {
		key := rng.IntN(64)
		if _, exists := expected[key]; exists && rng.IntN(2) == 0 {
			idx.remove(key)
			delete(expected, key)
		} else if exists || len(expected) < capacity {
			pos := int32(rng.IntN(capacity))
			idx.put(key, pos)
			expected[key] = pos
		}

		used := 0
		for _, cell := range idx.cells {
			if cell.used {
				used++
			}
		}
		assert.Equal(t, len(expected), used, "Index holds a different number of keys")
	}
	for key := 0; key < 64; key++ {
		pos, found := idx.get(key)
		wantPos, wantFound := expected[key]
		assert.Equalf(t, wantFound, found, "key %d", key)
		if wantFound {
			assert.Equalf(t, wantPos, pos, "key %d", key)
		}
	}
}
