package stream

import (
	"bufio"
	"io"
	"os"

	"github.com/dropbox/godropbox/errors"
	"github.com/klauspost/compress/s2"

	"github.com/jomonson/pgtricks"
)

type write struct {
	w   *bufio.Writer
	s2w *s2.Writer
	f   *os.File
	// Declared in the header; Close checks that exactly this many were
	// written.
	numRecords     uint64
	numRecordsSeen uint64
	closed         bool
}

// NewWrite creates a run file at path that will hold numRecords Records.
// Records must be written in sorted order if the file is going to be merged.
func NewWrite(
	path string,
	t *pgtricks.TableHeader,
	numRecords uint64,
	compress bool,
) (*write, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	var flags uint8
	if compress {
		flags |= flagCompressed
	}
	_, err = f.Write([]byte{flags})
	if err != nil {
		f.Close()
		return nil, err
	}
	wr := &write{f: f, numRecords: numRecords}
	var body io.Writer = f
	if compress {
		wr.s2w = s2.NewWriter(f)
		body = wr.s2w
	}
	wr.w = bufio.NewWriter(body)
	err = writeRunHeader(wr.w, t, numRecords)
	if err != nil {
		f.Close()
		return nil, err
	}
	return wr, nil
}

func (w *write) WriteRecord(record pgtricks.Record) error {
	if w.numRecordsSeen == w.numRecords {
		return errors.Newf("run file declared %d records", w.numRecords)
	}
	w.numRecordsSeen++
	return writeRecord(w.w, record)
}

// Close flushes all buffered data; the file is only complete once Close
// returns nil.
func (w *write) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var err error
	if w.numRecordsSeen != w.numRecords {
		err = errors.Newf(
			"run file declared %d records but %d were written",
			w.numRecords,
			w.numRecordsSeen)
	}
	if err == nil {
		err = w.w.Flush()
	}
	if err == nil && w.s2w != nil {
		err = w.s2w.Close()
	}
	closeErr := w.f.Close()
	if err != nil {
		return err
	}
	return closeErr
}

// WriteAll writes a complete run file.
func WriteAll(
	path string,
	t *pgtricks.TableHeader,
	records []pgtricks.Record,
	compress bool,
) error {
	w, err := NewWrite(path, t, uint64(len(records)), compress)
	if err != nil {
		return err
	}
	for _, record := range records {
		err = w.WriteRecord(record)
		if err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
