package split

import (
	"bufio"
	"io"

	"github.com/dropbox/godropbox/errors"
	"github.com/sirupsen/logrus"

	"github.com/jomonson/pgtricks"
	"github.com/jomonson/pgtricks/extsort"
)

// Destination receives the segments of a dump.  Segments are created one at
// a time, in output order, and each is closed before the next is created.
type Destination interface {
	Create(seg pgtricks.Segment) (io.WriteCloser, error)
}

type Options struct {
	// Sort orders the rows of every COPY block.  Otherwise blocks are copied
	// as is, and the segments concatenate back to the exact input.
	Sort   bool
	Sorter extsort.Options
	Logger logrus.FieldLogger
}

type SegmentSummary struct {
	Segment pgtricks.Segment
	// Lines counts every line written, COPY rows included.
	Lines int
	Rows  int
	Bytes int64
}

type Summary struct {
	Segments    []SegmentSummary
	Tables      int
	Rows        int
	SpilledRuns int
}

// Split reads a plain-format dump from r and writes it to dest as a prologue,
// one segment per table data section and an epilogue.  The prologue segment
// is always created.  Statements between two table data sections stay with
// the earlier table; the epilogue holds the statements after the last one,
// and is only created if there are any.
//
// Any error aborts the split.  The segment being written is closed, and the
// segments created so far are left to dest to discard.
func Split(r io.Reader, dest Destination, opts Options) (_ *Summary, err error) {
	s := &splitter{
		opts:    opts,
		logger:  loggerOrDiscard(opts.Logger),
		dest:    dest,
		lines:   newLineScanner(r),
		summary: &Summary{},
	}
	if s.opts.Sorter.Logger == nil {
		s.opts.Sorter.Logger = s.logger
	}
	defer func() {
		if err != nil {
			s.closeSegment()
		}
	}()

	err = s.openSegment(pgtricks.PrologueSegment())
	if err != nil {
		return nil, err
	}
	for {
		line, err := s.lines.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		err = s.handle(line)
		if err != nil {
			return nil, err
		}
	}
	if s.deferring {
		err = s.openSegment(pgtricks.EpilogueSegment())
		if err != nil {
			return nil, err
		}
		err = s.commitDeferred()
		if err != nil {
			return nil, err
		}
	}
	// Lines held back at the end go to whatever segment is open.
	err = s.flush()
	if err != nil {
		return nil, err
	}
	err = s.closeSegment()
	if err != nil {
		return nil, err
	}
	return s.summary, nil
}

type splitter struct {
	opts    Options
	logger  logrus.FieldLogger
	dest    Destination
	lines   *lineScanner
	summary *Summary

	// Blank and comment lines waiting to learn which segment they belong to.
	held []string
	// Statements after a table's data.  They belong to that table if more
	// table data follows, and to the epilogue otherwise.
	deferred  []string
	deferring bool

	current *SegmentSummary
	wc      io.WriteCloser
	w       *bufio.Writer
}

func (s *splitter) handle(line string) error {
	class := Classify(line)
	switch class.Kind {
	case Blank, Dashes:
		s.held = append(s.held, line)
		return nil
	case SearchPath:
		err := s.flush()
		if err != nil {
			return err
		}
		s.held = append(s.held, line)
		return nil
	case CopyEnd:
		return pgtricks.NewStructureError(
			s.lines.LineNumber(), "COPY terminator outside of a COPY block")
	case TableData, CopyStart, SequenceSet:
		// More table data follows, so deferred statements stay with the
		// current table.
		err := s.commitDeferred()
		if err != nil {
			return err
		}
		if class.Kind == TableData {
			err = s.startTable(class.Table)
			if err != nil {
				return err
			}
		}
	default:
		if s.summary.Tables > 0 {
			s.deferring = true
		}
	}

	s.held = append(s.held, line)
	err := s.flush()
	if err != nil {
		return err
	}
	if class.Kind == CopyStart {
		return s.copyBlock()
	}
	return nil
}

func (s *splitter) startTable(t *pgtricks.TableHeader) error {
	number := s.summary.Tables + 1
	if number >= pgtricks.EpilogueNumber {
		return pgtricks.NewStructureError(
			s.lines.LineNumber(),
			"too many tables; at most %d are supported",
			pgtricks.EpilogueNumber-1)
	}
	s.summary.Tables = number
	return s.openSegment(pgtricks.TableSegment(number, *t))
}

// commitDeferred writes the deferred statements to the current segment.
func (s *splitter) commitDeferred() error {
	s.deferring = false
	for _, line := range s.deferred {
		err := s.write(line)
		if err != nil {
			return err
		}
	}
	s.deferred = s.deferred[:0]
	return nil
}

func (s *splitter) copyBlock() error {
	t := &pgtricks.TableHeader{}
	if s.current.Segment.Kind == pgtricks.Table {
		t = &s.current.Segment.Table
	}
	scan := newCopyScan(t, s.lines)

	var rows pgtricks.Iterator = scan
	if s.opts.Sort {
		sorted, err := extsort.NewSortOnDisk(scan, s.opts.Sorter)
		if err != nil {
			return err
		}
		s.summary.SpilledRuns += sorted.Stats().SpilledRuns
		rows = sorted
	}

	err := pgtricks.ForEachRecord(rows, func(record pgtricks.Record) error {
		s.current.Rows++
		s.summary.Rows++
		return s.write(record.Line + "\n")
	})
	closeErr := rows.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}
	return s.write(scan.Terminator())
}

func (s *splitter) flush() error {
	if s.deferring {
		s.deferred = append(s.deferred, s.held...)
		s.held = s.held[:0]
		return nil
	}
	for _, line := range s.held {
		err := s.write(line)
		if err != nil {
			return err
		}
	}
	s.held = s.held[:0]
	return nil
}

func (s *splitter) write(line string) error {
	n, err := s.w.WriteString(line)
	s.current.Lines++
	s.current.Bytes += int64(n)
	if err != nil {
		return errors.Wrapf(err, "Failed to write segment %s", s.current.Segment)
	}
	return nil
}

func (s *splitter) openSegment(seg pgtricks.Segment) error {
	err := s.closeSegment()
	if err != nil {
		return err
	}
	wc, err := s.dest.Create(seg)
	if err != nil {
		return errors.Wrapf(err, "Failed to create segment %s", seg)
	}
	s.summary.Segments = append(s.summary.Segments, SegmentSummary{Segment: seg})
	s.current = &s.summary.Segments[len(s.summary.Segments)-1]
	s.wc = wc
	s.w = bufio.NewWriter(wc)
	s.logger.WithFields(logrus.Fields{
		"action":  "split_segment",
		"segment": seg.FileName(),
		"line":    s.lines.LineNumber(),
	}).Debug("started segment")
	return nil
}

// closeSegment flushes and closes the current segment writer, if any.
func (s *splitter) closeSegment() error {
	if s.wc == nil {
		return nil
	}
	wc := s.wc
	s.wc = nil
	err := s.w.Flush()
	closeErr := wc.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrapf(err, "Failed to finish segment %s", s.current.Segment)
	}
	return nil
}

func loggerOrDiscard(logger logrus.FieldLogger) logrus.FieldLogger {
	if logger != nil {
		return logger
	}
	discard := logrus.New()
	discard.Out = io.Discard
	return discard
}
