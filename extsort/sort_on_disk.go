package extsort

import (
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dropbox/godropbox/errors"
	"github.com/sirupsen/logrus"

	"github.com/jomonson/pgtricks"
	"github.com/jomonson/pgtricks/encoding/stream"
)

type Options struct {
	// MaxMemory bounds the estimated size (see Record.Size) of the rows held
	// in memory.  Zero or negative means pgtricks.DefaultMaxMemory.
	MaxMemory int64
	// TempDir is where the directory for sorted runs gets created.  Empty
	// means os.TempDir().
	TempDir string
	// CompressRuns compresses sorted runs with s2 before they hit the disk.
	CompressRuns bool
	Logger       logrus.FieldLogger
}

type Stats struct {
	Records     int
	SpilledRuns int
	// SpilledBytes is the size of the run files on disk, after compression.
	SpilledBytes int64
}

type state uint8

const (
	// Rows are being added to the current in-memory run.
	accumulating state = iota
	// The current run is being sorted and written to a run file.
	spilling
	// Input is exhausted; rows are produced in sorted order.
	merging
)

func (s state) String() string {
	switch s {
	case accumulating:
		return "accumulating"
	case spilling:
		return "spilling"
	case merging:
		return "merging"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// sortOnDisk sorts an Iterator of any size while holding at most
// Options.MaxMemory worth of Records (plus one Record) in memory.  Runs that
// don't fit are sorted and written to private temporary files, which are
// merged once the input is exhausted.
type sortOnDisk struct {
	state  state
	opts   Options
	logger logrus.FieldLogger
	iter   pgtricks.Iterator
	t      *pgtricks.TableHeader

	run      []pgtricks.Record
	runBytes int64

	// Created on the first spill; we assume exclusive access to it.
	sortedRunDir   string
	sortedRunPaths []string

	stats  Stats
	output pgtricks.Iterator
	closed bool
}

var _ pgtricks.Iterator = (*sortOnDisk)(nil)

// NewSortOnDisk consumes iter completely before returning.  Any error leaves
// no temporary files behind.  Failures of the temporary storage are reported
// as *pgtricks.StorageError.
func NewSortOnDisk(iter pgtricks.Iterator, opts Options) (_ *sortOnDisk, err error) {
	if opts.MaxMemory <= 0 {
		opts.MaxMemory = pgtricks.DefaultMaxMemory
	}
	s := &sortOnDisk{
		state:  accumulating,
		opts:   opts,
		logger: loggerOrDiscard(opts.Logger),
		iter:   iter,
		t:      iter.TableHeader(),
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	err = pgtricks.ForEachRecord(iter, s.add)
	if err != nil {
		return nil, err
	}
	err = s.startMerging()
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sortOnDisk) add(record pgtricks.Record) error {
	size := record.Size()
	if len(s.run) > 0 && s.runBytes+size > s.opts.MaxMemory {
		s.state = spilling
		err := s.spill()
		if err != nil {
			return err
		}
		s.state = accumulating
	}
	s.run = append(s.run, record)
	s.runBytes += size
	s.stats.Records++
	return nil
}

func (s *sortOnDisk) spill() error {
	if s.sortedRunDir == "" {
		dir, err := os.MkdirTemp(s.opts.TempDir, "pgtricks-sort-")
		if err != nil {
			return pgtricks.NewStorageError("create run directory", s.opts.TempDir, err)
		}
		s.sortedRunDir = dir
	}

	sortRecords(s.run)

	runID := len(s.sortedRunPaths)
	sortedRunPath := filepath.Join(s.sortedRunDir, "sorted-run-"+strconv.Itoa(runID))
	// Register the path before writing so that a partial file is removed
	// along with the directory.
	s.sortedRunPaths = append(s.sortedRunPaths, sortedRunPath)
	err := stream.WriteAll(sortedRunPath, s.t, s.run, s.opts.CompressRuns)
	if err != nil {
		return pgtricks.NewStorageError("write run", sortedRunPath, err)
	}
	info, err := os.Stat(sortedRunPath)
	if err != nil {
		return pgtricks.NewStorageError("stat run", sortedRunPath, err)
	}

	s.stats.SpilledRuns++
	s.stats.SpilledBytes += info.Size()
	s.logger.WithFields(logrus.Fields{
		"action":     "sort_spill_run",
		"table":      s.t.QualifiedName(),
		"run":        runID,
		"records":    len(s.run),
		"bytes":      s.runBytes,
		"file_bytes": info.Size(),
	}).Debug("spilled sorted run")

	// Drop references so the rows can be collected, but keep the buffer.
	for i := range s.run {
		s.run[i] = pgtricks.Record{}
	}
	s.run = s.run[:0]
	s.runBytes = 0
	return nil
}

func (s *sortOnDisk) startMerging() error {
	s.state = merging
	sortRecords(s.run)
	if len(s.sortedRunPaths) == 0 {
		s.output = pgtricks.NewInMemoryScan(s.t, s.run)
		s.run = nil
		return nil
	}

	iters := make([]pgtricks.Iterator, 0, len(s.sortedRunPaths)+1)
	for _, sortedRunPath := range s.sortedRunPaths {
		iter, err := stream.NewScan(sortedRunPath)
		if err != nil {
			for _, opened := range iters {
				opened.Close()
			}
			return pgtricks.NewStorageError("open run", sortedRunPath, err)
		}
		iters = append(iters, iter)
	}
	// The final run never touches the disk; it is the last merge input so
	// that ties still resolve in input order.
	iters = append(iters, pgtricks.NewInMemoryScan(s.t, s.run))
	s.run = nil

	merge, err := NewMerge(iters, s.t)
	if err != nil {
		return pgtricks.NewStorageError("read run", s.sortedRunDir, err)
	}
	s.output = merge
	s.logger.WithFields(logrus.Fields{
		"action":  "sort_merge_runs",
		"table":   s.t.QualifiedName(),
		"runs":    len(iters),
		"records": s.stats.Records,
	}).Debug("merging sorted runs")
	return nil
}

func (s *sortOnDisk) TableHeader() *pgtricks.TableHeader {
	return s.t
}

func (s *sortOnDisk) Next() (pgtricks.Record, error) {
	if s.closed {
		return pgtricks.Record{}, errors.New(
			"Next cannot be called after Iterator has been closed.")
	}
	record, err := s.output.Next()
	if err != nil && err != io.EOF {
		return pgtricks.Record{}, pgtricks.NewStorageError("read run", s.sortedRunDir, err)
	}
	return record, err
}

func (s *sortOnDisk) Stats() Stats {
	return s.stats
}

// Close releases the run files.  It is safe to call more than once.
func (s *sortOnDisk) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var firstErr error
	if s.output != nil {
		firstErr = s.output.Close()
	}
	err := s.iter.Close()
	if err != nil && firstErr == nil {
		firstErr = err
	}
	s.run = nil
	if s.sortedRunDir != "" {
		err = os.RemoveAll(s.sortedRunDir)
		if err != nil && firstErr == nil {
			firstErr = pgtricks.NewStorageError("remove run directory", s.sortedRunDir, err)
		}
	}
	return firstErr
}

func loggerOrDiscard(logger logrus.FieldLogger) logrus.FieldLogger {
	if logger != nil {
		return logger
	}
	discard := logrus.New()
	discard.Out = io.Discard
	return discard
}
