package lsm

import (
	"bytes"
	"container/heap"
)

// mergeHeapItem is one source's current position, ranked by key with ties
// broken by source priority (spec §7: "on equal keys, the source added
// earlier wins" — lower index added first/newer data wins).
type mergeHeapItem struct {
	iter     StorageIterator
	priority int
}

type mergeHeap []*mergeHeapItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	c := bytes.Compare(h[i].iter.Key(), h[j].iter.Key())
	if c != 0 {
		return c < 0
	}
	return h[i].priority < h[j].priority
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(*mergeHeapItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// MergeIterator k-way merges sources in priority order: the source with the
// lowest index is the newest and wins ties on equal keys (spec §7). Sources
// are given in newest-first order by the caller (active memtable, frozen
// memtables newest-first, L0 SSTs newest-first, ...).
type MergeIterator struct {
	h   mergeHeap
	cur *mergeHeapItem
}

// NewMergeIterator builds a merge iterator over iters, already positioned
// at their starting entries. Exhausted iterators are dropped immediately.
func NewMergeIterator(iters []StorageIterator) (*MergeIterator, error) {
	m := &MergeIterator{}
	for i, it := range iters {
		if it != nil && it.IsValid() {
			m.h = append(m.h, &mergeHeapItem{iter: it, priority: i})
		}
	}
	heap.Init(&m.h)
	if err := m.advanceToNextDistinctKey(); err != nil {
		return nil, err
	}
	return m, nil
}

// advanceToNextDistinctKey pops the heap's minimum into m.cur and discards
// any other heap entries sharing the same key, advancing each past it.
func (m *MergeIterator) advanceToNextDistinctKey() error {
	if m.h.Len() == 0 {
		m.cur = nil
		return nil
	}
	top := heap.Pop(&m.h).(*mergeHeapItem)
	m.cur = top

	for m.h.Len() > 0 {
		next := m.h[0]
		if !bytes.Equal(next.iter.Key(), top.iter.Key()) {
			break
		}
		heap.Pop(&m.h)
		if err := next.iter.Next(); err != nil {
			return err
		}
		if next.iter.IsValid() {
			heap.Push(&m.h, next)
		}
	}
	return nil
}

// IsValid reports whether the iterator is positioned at an entry.
func (m *MergeIterator) IsValid() bool { return m.cur != nil }

// Key returns the winning source's current key.
func (m *MergeIterator) Key() []byte { return m.cur.iter.Key() }

// Value returns the winning source's current value.
func (m *MergeIterator) Value() []byte { return m.cur.iter.Value() }

// Next advances the winning source and re-establishes the heap invariant.
func (m *MergeIterator) Next() error {
	if m.cur == nil {
		return nil
	}
	if err := m.cur.iter.Next(); err != nil {
		return err
	}
	if m.cur.iter.IsValid() {
		heap.Push(&m.h, m.cur)
	}
	return m.advanceToNextDistinctKey()
}

// TwoMergeIterator merges exactly two sources where a shadows b on equal
// keys (spec §7). Used to fold memtables over L0 without the overhead of
// the general heap merge.
type TwoMergeIterator struct {
	a, b    StorageIterator
	chooseA bool
}

// NewTwoMergeIterator builds a two-way merge of a (higher priority) and b.
func NewTwoMergeIterator(a, b StorageIterator) (*TwoMergeIterator, error) {
	t := &TwoMergeIterator{a: a, b: b}
	t.skipB()
	t.chooseA = t.shouldChooseA()
	return t, nil
}

// skipB advances b past any key that a is currently positioned on, since a
// shadows it.
func (t *TwoMergeIterator) skipB() {
	for t.a.IsValid() && t.b.IsValid() && bytes.Equal(t.a.Key(), t.b.Key()) {
		_ = t.b.Next()
	}
}

func (t *TwoMergeIterator) shouldChooseA() bool {
	if !t.a.IsValid() {
		return false
	}
	if !t.b.IsValid() {
		return true
	}
	return bytes.Compare(t.a.Key(), t.b.Key()) <= 0
}

// IsValid reports whether either source still has entries.
func (t *TwoMergeIterator) IsValid() bool {
	if t.chooseA {
		return t.a.IsValid()
	}
	return t.b.IsValid()
}

// Key returns the current winning key.
func (t *TwoMergeIterator) Key() []byte {
	if t.chooseA {
		return t.a.Key()
	}
	return t.b.Key()
}

// Value returns the current winning value.
func (t *TwoMergeIterator) Value() []byte {
	if t.chooseA {
		return t.a.Value()
	}
	return t.b.Value()
}

// Next advances the winning source, then re-derives which source wins next.
func (t *TwoMergeIterator) Next() error {
	if t.chooseA {
		if err := t.a.Next(); err != nil {
			return err
		}
	} else {
		if err := t.b.Next(); err != nil {
			return err
		}
	}
	t.skipB()
	t.chooseA = t.shouldChooseA()
	return nil
}
