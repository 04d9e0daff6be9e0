// Resident keys are mapped to their slot positions by a slotIndex. When the key space is known to be small and
// dense, a direct table indexed by key avoids hashing entirely. Otherwise keys are placed in an open-addressed
// table with linear probing, which covers the whole non-negative int range.

package cache

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// slotIndex maps resident keys to slot positions. Callers validate keys before reaching the index.
type slotIndex interface {
	get(key int) (int32, bool /*found*/)
	put(key int, pos int32)
	remove(key int)
}

// hashKey hashes an int key. Since int's size is architecture-dependent, it is widened to 64 bits first.
func hashKey(key int) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(key))
	return xxhash.Sum64(b[:])
}

// directIndex stores the slot position of key k at table[k]; nilSlot marks an absent key.
type directIndex struct {
	table []int32
}

var _ slotIndex = (*directIndex)(nil)

func newDirectIndex(maxKey int) *directIndex {
	idx := &directIndex{table: make([]int32, maxKey)}
	for i := range idx.table {
		idx.table[i] = nilSlot
	}
	return idx
}

func (d *directIndex) get(key int) (int32, bool) {
	pos := d.table[key]
	return pos, pos != nilSlot
}

func (d *directIndex) put(key int, pos int32) {
	d.table[key] = pos
}

func (d *directIndex) remove(key int) {
	d.table[key] = nilSlot
}

// hashCell is one cell of the open-addressed table. `used` tracks occupancy so that key 0 needs no special casing.
type hashCell struct {
	key  int
	pos  int32
	used bool
}

// hashedIndex is an open-addressed hash table with linear probing and backward shift deletion.
// The table is sized to at least twice the cache capacity, so probe sequences stay short and always end at an
// unused cell.
type hashedIndex struct {
	cells []hashCell
	mask  uint64
}

var _ slotIndex = (*hashedIndex)(nil)

func newHashedIndex(capacity int) *hashedIndex {
	size := 2
	for size < 2*capacity {
		size <<= 1
	}
	return &hashedIndex{cells: make([]hashCell, size), mask: uint64(size - 1)}
}

// home returns the preferred cell of `key`.
func (h *hashedIndex) home(key int) uint64 {
	return hashKey(key) & h.mask
}

// find returns the cell holding `key`, or the unused cell terminating its probe sequence.
func (h *hashedIndex) find(key int) (uint64, bool /*found*/) {
	i := h.home(key)
	for h.cells[i].used {
		if h.cells[i].key == key {
			return i, true
		}
		i = (i + 1) & h.mask
	}
	return i, false
}

func (h *hashedIndex) get(key int) (int32, bool) {
	i, found := h.find(key)
	if !found {
		return nilSlot, false
	}
	return h.cells[i].pos, true
}

func (h *hashedIndex) put(key int, pos int32) {
	i, _ := h.find(key)
	h.cells[i] = hashCell{key: key, pos: pos, used: true}
}

func (h *hashedIndex) remove(key int) {
	hole, found := h.find(key)
	if !found {
		return
	}
	// Shift following cells of the same cluster back into the hole unless that would move them before their home.
	for j := (hole + 1) & h.mask; h.cells[j].used; j = (j + 1) & h.mask {
		home := h.home(h.cells[j].key)
		// Skip cells whose home lies cyclically in (hole, j]; they are already reachable.
		if (hole < j && hole < home && home <= j) || (hole > j && (home > hole || home <= j)) {
			continue
		}
		h.cells[hole] = h.cells[j]
		hole = j
	}
	h.cells[hole] = hashCell{}
}
