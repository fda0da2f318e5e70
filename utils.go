package pgtricks

import (
	"io"
)

// ReadAll drains iter.  Unlike a plain loop, it reports io.EOF when iter
// produced no Records at all.
func ReadAll(iter Iterator) ([]Record, error) {
	var records []Record
	for {
		record, err := iter.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		} else {
			records = append(records, record)
		}
	}
	if len(records) == 0 {
		return nil, io.EOF
	} else {
		return records, nil
	}
}

// ForEachRecord calls recordFunc on every Record of iter, stopping at the
// first error.
func ForEachRecord(iter Iterator, recordFunc func(Record) error) error {
	for {
		record, err := iter.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		err = recordFunc(record)
		if err != nil {
			return err
		}
	}
}

func RecordsFromLines(lines []string) []Record {
	records := make([]Record, len(lines))
	for i, line := range lines {
		records[i] = NewRecord(line)
	}
	return records
}

func LinesFromRecords(records []Record) []string {
	lines := make([]string, len(records))
	for i, record := range records {
		lines[i] = record.Line
	}
	return lines
}

// IsSorted reports whether no Record compares greater than its successor.
func IsSorted(records []Record) bool {
	for i := 1; i < len(records); i++ {
		if CompareRecords(records[i-1], records[i]) == Greater {
			return false
		}
	}
	return true
}
