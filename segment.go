package pgtricks

import (
	"fmt"
	"strings"
)

const (
	PrologueNumber = 0
	EpilogueNumber = 9999
)

type SegmentKind uint8

const (
	Prologue SegmentKind = iota
	Table
	Epilogue
)

func (k SegmentKind) String() string {
	switch k {
	case Prologue:
		return "prologue"
	case Table:
		return "table"
	case Epilogue:
		return "epilogue"
	default:
		return fmt.Sprintf("SegmentKind(%d)", uint8(k))
	}
}

// Segment is one independently written part of a split dump.
type Segment struct {
	Number int
	Kind   SegmentKind
	// Table is only set for Table segments.
	Table TableHeader
}

func PrologueSegment() Segment {
	return Segment{Number: PrologueNumber, Kind: Prologue}
}

func EpilogueSegment() Segment {
	return Segment{Number: EpilogueNumber, Kind: Epilogue}
}

func TableSegment(number int, t TableHeader) Segment {
	return Segment{Number: number, Kind: Table, Table: t}
}

func (s Segment) Name() string {
	if s.Kind == Table {
		return s.Table.QualifiedName()
	}
	return s.Kind.String()
}

var fileNameReplacer = strings.NewReplacer("/", "_", "\\", "_", "\x00", "_")

// FileName is e.g. "0000_prologue.sql" or "0001_public.users.sql".  Path
// separators in table names are replaced so that the name never refers to a
// different directory.
func (s Segment) FileName() string {
	return fmt.Sprintf("%04d_%s.sql", s.Number, fileNameReplacer.Replace(s.Name()))
}

func (s Segment) String() string {
	return fmt.Sprintf("%04d %s", s.Number, s.Name())
}
