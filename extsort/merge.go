package extsort

import (
	"container/heap"
	"io"

	"github.com/jomonson/pgtricks"
)

type iterWithRecord struct {
	iter   pgtricks.Iterator
	record pgtricks.Record
	// Position of iter in the list passed to NewMerge; breaks ties.
	index int
}

// merge takes a list of sorted Iterators as input and returns a single stream
// of Records in totally sorted order.  Records that compare equal are returned
// in the order of the Iterators they came from, so merging the sorted runs of
// a stable sort is itself stable.
type merge struct {
	inputs []*iterWithRecord
	t      *pgtricks.TableHeader

	// We keep track of these so we can close them when the merge is closed.
	exhaustedIters []pgtricks.Iterator
	closed         bool
}

var _ heap.Interface = (*merge)(nil)

var _ pgtricks.Iterator = (*merge)(nil)

// NewMerge takes ownership of iters: they are closed when the merge is
// closed, or before returning if NewMerge fails.
func NewMerge(iters []pgtricks.Iterator, t *pgtricks.TableHeader) (*merge, error) {
	m := &merge{
		inputs:         make([]*iterWithRecord, 0, len(iters)),
		t:              t,
		exhaustedIters: make([]pgtricks.Iterator, 0, len(iters)),
	}
	for i, iter := range iters {
		record, err := iter.Next()
		if err == io.EOF {
			m.exhaustedIters = append(m.exhaustedIters, iter)
		} else if err != nil {
			m.exhaustedIters = append(m.exhaustedIters, iters[i:]...)
			m.Close()
			return nil, err
		} else {
			m.inputs = append(m.inputs, &iterWithRecord{iter, record, i})
		}
	}
	heap.Init(m)
	return m, nil
}

func (m *merge) Len() int {
	return len(m.inputs)
}

func (m *merge) Swap(i, j int) {
	m.inputs[i], m.inputs[j] = m.inputs[j], m.inputs[i]
}

func (m *merge) Less(i, j int) bool {
	switch pgtricks.CompareRecords(m.inputs[i].record, m.inputs[j].record) {
	case pgtricks.Less:
		return true
	case pgtricks.Greater:
		return false
	default:
		return m.inputs[i].index < m.inputs[j].index
	}
}

func (m *merge) Push(x interface{}) {
	m.inputs = append(m.inputs, x.(*iterWithRecord))
}

func (m *merge) Pop() interface{} {
	i := len(m.inputs) - 1
	result := m.inputs[i]
	m.inputs[i] = nil
	m.inputs = m.inputs[:i]
	return result
}

func (m *merge) TableHeader() *pgtricks.TableHeader {
	return m.t
}

func (m *merge) Next() (pgtricks.Record, error) {
	if m.Len() == 0 {
		return pgtricks.Record{}, io.EOF
	}
	// Replace the head in place instead of Pop+Push; each input contributes
	// at most one element to the heap.
	head := m.inputs[0]
	record := head.record
	nextRecord, err := head.iter.Next()
	if err == io.EOF {
		heap.Pop(m)
		m.exhaustedIters = append(m.exhaustedIters, head.iter)
	} else if err != nil {
		return pgtricks.Record{}, err
	} else {
		head.record = nextRecord
		heap.Fix(m, 0)
	}
	return record, nil
}

func (m *merge) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	var firstErr error
	for _, input := range m.inputs {
		err := input.iter.Close()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, iter := range m.exhaustedIters {
		err := iter.Close()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.inputs = nil
	m.exhaustedIters = nil
	return firstErr
}
