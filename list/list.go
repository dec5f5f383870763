// Package list implements the intrusive, circular, sentinel-terminated
// doubly-linked list used for every scheduler queue: ready lists, delayed
// lists, wait lists and the pending-ready list (spec.md §4.1).
//
// Unlike container/list, items carry a back-pointer to their owning List
// (Item.container) so callers can ask "is this item linked, and where"
// without threading that answer through separately — the same shape the
// original's listLIST_ITEM_t/xLIST use, and the reason a generic wrapper
// around container/list would not fit: container/list elements do not know
// which list holds them, and this kernel relies on that fact at every
// wake/unlink call site (see kernel.Kernel.RemoveFromEventList).
package list

import (
	"math"

	"github.com/joeycumines/gokernel/kernerr"
)

// ValueMax is the sentinel value: no ordered insert ever produces a key
// larger than this, so the sentinel node (whose Value is always ValueMax)
// terminates every insert-ordered walk in finite time.
const ValueMax = math.MaxUint64

// Item is an intrusive node. Owner carries a reference back to whatever
// object (TCB, queue, timer) embeds this Item; List code never dereferences
// Owner, it is purely a payload for the caller.
type Item[T any] struct {
	Value uint64
	Owner T

	next, prev *Item[T]
	container  *List[T]
}

// Linked reports whether the item currently belongs to a list.
func (it *Item[T]) Linked() bool { return it.container != nil }

// List returns the list the item currently belongs to, or nil.
func (it *Item[T]) List() *List[T] { return it.container }

// List is a circular doubly-linked list with an embedded sentinel whose
// Value is always ValueMax. The cursor (index) implements round-robin
// selection for Append/Advance.
type List[T any] struct {
	sentinel Item[T]
	index    *Item[T]
	length   int
}

// New returns an initialised, empty list.
func New[T any]() *List[T] {
	l := &List[T]{}
	l.Init()
	return l
}

// Init resets l to the empty state. Safe to call on a zero-value List, and
// required before first use if not constructed via New.
func (l *List[T]) Init() {
	l.sentinel.Value = ValueMax
	l.sentinel.next = &l.sentinel
	l.sentinel.prev = &l.sentinel
	l.sentinel.container = l
	l.index = &l.sentinel
	l.length = 0
}

// Len returns the number of items linked into l (excluding the sentinel).
func (l *List[T]) Len() int { return l.length }

// Empty reports whether l has no items.
func (l *List[T]) Empty() bool { return l.length == 0 }

// Head returns the first item after the sentinel, or nil if l is empty.
func (l *List[T]) Head() *Item[T] {
	if l.length == 0 {
		return nil
	}
	return l.sentinel.next
}

func (l *List[T]) insertBefore(mark, item *Item[T]) {
	kernerr.Assert(item.container == nil, "list: item already linked", "value=%d", item.Value)
	item.next = mark
	item.prev = mark.prev
	mark.prev.next = item
	mark.prev = item
	item.container = l
	l.length++
}

// InsertOrdered walks from the sentinel until it finds the first item whose
// Value exceeds item.Value, and links item immediately before it. This is
// O(n) in the list length, same as the original. When item.Value equals
// ValueMax it is linked immediately before the sentinel in O(1) — the
// common case for a task with an indefinite (non-timed) wait.
func (l *List[T]) InsertOrdered(item *Item[T]) {
	mark := &l.sentinel
	if item.Value != ValueMax {
		for n := l.sentinel.next; n != &l.sentinel; n = n.next {
			if n.Value > item.Value {
				mark = n
				break
			}
		}
	}
	l.insertBefore(mark, item)
}

// Append links item immediately before the round-robin cursor, giving
// FIFO-among-equals insertion at the current selection point. O(1).
func (l *List[T]) Append(item *Item[T]) {
	l.insertBefore(l.index, item)
}

// Remove unlinks item from whatever list currently holds it (which must be
// l) and returns the resulting length. If the cursor pointed at item, the
// cursor is stepped back to item's predecessor first, so a subsequent
// Advance resumes from the right place.
func (l *List[T]) Remove(item *Item[T]) int {
	kernerr.Assert(item.container == l, "list: remove from wrong list", "value=%d", item.Value)
	if l.index == item {
		l.index = item.prev
	}
	item.prev.next = item.next
	item.next.prev = item.prev
	item.next = nil
	item.prev = nil
	item.container = nil
	l.length--
	return l.length
}

// Advance moves the round-robin cursor forward one link, skipping the
// sentinel, and returns the owner of the item now selected. Used by
// priority-level task selection to implement round-robin among equal
// priorities. Panics if the list is empty.
func (l *List[T]) Advance() T {
	kernerr.Assert(l.length > 0, "list: advance on empty list", "")
	l.index = l.index.next
	if l.index == &l.sentinel {
		l.index = l.index.next
	}
	return l.index.Owner
}

// Items returns every linked item's owner, head-to-tail, for diagnostics
// and tests. It never mutates the list.
func (l *List[T]) Items() []T {
	out := make([]T, 0, l.length)
	for n := l.sentinel.next; n != &l.sentinel; n = n.next {
		out = append(out, n.Owner)
	}
	return out
}
