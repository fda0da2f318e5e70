package extsort

import (
	"io"
	"sort"

	"github.com/jomonson/pgtricks"
)

type byLine []pgtricks.Record

var _ sort.Interface = byLine(nil)

func (b byLine) Len() int {
	return len(b)
}

func (b byLine) Swap(i, j int) {
	b[i], b[j] = b[j], b[i]
}

func (b byLine) Less(i, j int) bool {
	return pgtricks.RecordLess(b[i], b[j])
}

// sortRecords orders records in place.  Records that compare equal keep their
// relative order, which keeps the output reproducible.
func sortRecords(records []pgtricks.Record) {
	sort.Stable(byLine(records))
}

type sortInMemory struct {
	iter          pgtricks.Iterator
	sortedRecords []pgtricks.Record
}

var _ pgtricks.Iterator = (*sortInMemory)(nil)

// NewSortInMemory reads all of iter into memory before sorting, regardless of
// size.
func NewSortInMemory(iter pgtricks.Iterator) (*sortInMemory, error) {
	records, err := pgtricks.ReadAll(iter)
	if err == io.EOF {
		records = nil
	} else if err != nil {
		return nil, err
	}
	sortRecords(records)
	return &sortInMemory{
		iter:          iter,
		sortedRecords: records,
	}, nil
}

func (s *sortInMemory) TableHeader() *pgtricks.TableHeader {
	return s.iter.TableHeader()
}

func (s *sortInMemory) Next() (pgtricks.Record, error) {
	if len(s.sortedRecords) == 0 {
		return pgtricks.Record{}, io.EOF
	}
	record := s.sortedRecords[0]
	s.sortedRecords = s.sortedRecords[1:]
	return record, nil
}

func (s *sortInMemory) Close() error {
	s.sortedRecords = nil
	return s.iter.Close()
}
