package pgtricks

import (
	"strings"
)

// FieldSeparator separates the fields of a row in a COPY block.
const FieldSeparator = "\t"

// NullMarker is how the text COPY format spells an absent value.  It has no
// special meaning for ordering.
const NullMarker = `\N`

// Approximate per-record bookkeeping cost used for memory accounting: the
// Record struct itself plus one string header per field.
const (
	recordOverhead = 64
	fieldOverhead  = 16
)

// TableHeader identifies the table that a stream of Records belongs to.  Rows
// that appear outside of any table data section have an empty header.
type TableHeader struct {
	Schema string
	Name   string
}

func (t *TableHeader) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Record is a single row of bulk data.
type Record struct {
	// Line is the raw row text, without the terminating newline.
	Line string
	// Fields is Line split on FieldSeparator.  The fields share memory with
	// Line.
	Fields []string
}

func NewRecord(line string) Record {
	return Record{
		Line:   line,
		Fields: strings.Split(line, FieldSeparator),
	}
}

// Size estimates how many bytes of memory the Record occupies.
func (r Record) Size() int64 {
	return int64(len(r.Line)) + recordOverhead + fieldOverhead*int64(len(r.Fields))
}

func (r Record) Equals(other Record) bool {
	return r.Line == other.Line
}

type Iterator interface {
	TableHeader() *TableHeader
	Next() (Record, error)
	Close() error
}
