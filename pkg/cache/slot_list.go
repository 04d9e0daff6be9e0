package cache

// nilSlot marks the absence of a slot position, e.g. the `prev` of the list head.
const nilSlot int32 = -1

// slotLink holds the neighbours of a slot position inside a slotList.
type slotLink struct {
	prev int32
	next int32
}

// slotList is a doubly linked list over the slot positions [0, capacity). Links live in a preallocated arena
// indexed by position, so pushing and removing never allocates. A position must be linked at most once.
type slotList struct {
	links []slotLink
	head  int32
	tail  int32
	size  int
}

// newSlotList creates an empty list able to hold positions in [0, capacity).
func newSlotList(capacity int) *slotList {
	l := &slotList{links: make([]slotLink, capacity), head: nilSlot, tail: nilSlot}
	for i := range l.links {
		l.links[i] = slotLink{prev: nilSlot, next: nilSlot}
	}
	return l
}

// Len returns the number of linked positions.
func (l *slotList) Len() int {
	return l.size
}

// Front returns the first position of the list or nilSlot if the list is empty.
func (l *slotList) Front() int32 {
	return l.head
}

// Back returns the last position of the list or nilSlot if the list is empty.
func (l *slotList) Back() int32 {
	return l.tail
}

// Next returns the position after `pos` or nilSlot if `pos` is the back.
func (l *slotList) Next(pos int32) int32 {
	return l.links[pos].next
}

// Prev returns the position before `pos` or nilSlot if `pos` is the front.
func (l *slotList) Prev(pos int32) int32 {
	return l.links[pos].prev
}

// PushFront links `pos` at the front of the list.
func (l *slotList) PushFront(pos int32) {
	l.links[pos] = slotLink{prev: nilSlot, next: l.head}
	if l.head != nilSlot {
		l.links[l.head].prev = pos
	} else { // List was empty.
		l.tail = pos
	}
	l.head = pos
	l.size++
}

// Remove unlinks `pos` from the list.
func (l *slotList) Remove(pos int32) {
	link := l.links[pos]
	if link.prev != nilSlot {
		l.links[link.prev].next = link.next
	} else { // Node is the head.
		l.head = link.next
	}
	if link.next != nilSlot {
		l.links[link.next].prev = link.prev
	} else { // Node is the tail.
		l.tail = link.prev
	}
	l.links[pos] = slotLink{prev: nilSlot, next: nilSlot}
	l.size--
}

// MoveToFront moves an already linked `pos` to the front of the list.
func (l *slotList) MoveToFront(pos int32) {
	if l.head == pos {
		return
	}
	l.Remove(pos)
	l.PushFront(pos)
}
