package split

import (
	"io"
	"strings"

	"github.com/dropbox/godropbox/errors"

	"github.com/jomonson/pgtricks"
)

// copyScan yields the rows of a single COPY block.  It stops at the block
// terminator, which is kept so that it can be written back verbatim.
type copyScan struct {
	t         *pgtricks.TableHeader
	lines     *lineScanner
	startLine int

	terminator string
	done       bool
	err        error
	closed     bool
}

var _ pgtricks.Iterator = (*copyScan)(nil)

func newCopyScan(t *pgtricks.TableHeader, lines *lineScanner) *copyScan {
	return &copyScan{
		t:         t,
		lines:     lines,
		startLine: lines.LineNumber(),
	}
}

func (s *copyScan) TableHeader() *pgtricks.TableHeader {
	return s.t
}

// Each Record holds a row without its "\n".  A "\r" before it, if any, stays
// part of the last field.
func (s *copyScan) Next() (pgtricks.Record, error) {
	if s.closed {
		return pgtricks.Record{}, errors.New(
			"Next cannot be called after Iterator has been closed.")
	}
	if s.done {
		return pgtricks.Record{}, io.EOF
	}
	if s.err != nil {
		return pgtricks.Record{}, s.err
	}

	line, err := s.lines.Next()
	if err == io.EOF {
		s.err = pgtricks.NewStructureError(
			s.startLine,
			"COPY block for %q is not terminated before the end of input",
			s.t.QualifiedName())
		return pgtricks.Record{}, s.err
	} else if err != nil {
		s.err = err
		return pgtricks.Record{}, err
	}
	if trimTerminator(line) == copyTerminator {
		s.terminator = line
		s.done = true
		return pgtricks.Record{}, io.EOF
	}
	return pgtricks.NewRecord(strings.TrimSuffix(line, "\n")), nil
}

// Terminator is the raw "\." line, available once Next has returned io.EOF.
func (s *copyScan) Terminator() string {
	return s.terminator
}

func (s *copyScan) Close() error {
	s.closed = true
	return nil
}
