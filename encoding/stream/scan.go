package stream

import (
	"bufio"
	"io"
	"os"
	"sync"

	"github.com/dropbox/godropbox/errors"
	"github.com/klauspost/compress/s2"

	"github.com/jomonson/pgtricks"
)

type result struct {
	record pgtricks.Record
	err    error
}

// scan reads a run file written by write.  Records are decoded on a separate
// goroutine so that disk reads overlap with whatever consumes the scan.
type scan struct {
	r *bufio.Reader
	t *pgtricks.TableHeader

	// Records declared in the header and not read yet.  Only touched by
	// the reader goroutine once it has started.
	remaining uint64
	results   chan *result
	// Sticky error or io.EOF once results has been drained.
	err    error
	closed bool
	done   chan struct{}
	wg     *sync.WaitGroup
	c      io.Closer
}

var _ pgtricks.Iterator = (*scan)(nil)

func NewScan(path string) (*scan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := newBodyReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	t, numRecords, err := readRunHeader(r)
	if err != nil {
		f.Close()
		return nil, err
	}
	s := &scan{
		r:         r,
		t:         t,
		remaining: numRecords,
		results:   make(chan *result),
		done:      make(chan struct{}),
		wg:        &sync.WaitGroup{},
		c:         f,
	}
	s.wg.Add(1)
	go s.scanRecords()
	return s, nil
}

func newBodyReader(f *os.File) (*bufio.Reader, error) {
	var flags [1]byte
	_, err := io.ReadFull(f, flags[:])
	if err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	} else if err != nil {
		return nil, err
	}
	switch flags[0] {
	case 0:
		return bufio.NewReader(f), nil
	case flagCompressed:
		return bufio.NewReader(s2.NewReader(f)), nil
	default:
		return nil, errors.Newf("unknown run file flags %#x", flags[0])
	}
}

func (s *scan) scanRecords() {
	defer s.wg.Done()
	for ; s.remaining > 0; s.remaining-- {
		record, err := readRecord(s.r)
		if err == io.EOF {
			// The file ended before all declared records.
			err = io.ErrUnexpectedEOF
		}
		if err != nil {
			s.sendResult(pgtricks.Record{}, err)
			close(s.results)
			return
		}
		if !s.sendResult(record, nil) {
			return
		}
	}
	close(s.results)
}

// Returns whether the result was successfully sent.
func (s *scan) sendResult(record pgtricks.Record, err error) bool {
	select {
	case <-s.done:
		return false
	case s.results <- &result{record, err}:
		return true
	}
}

func (s *scan) TableHeader() *pgtricks.TableHeader {
	return s.t
}

func (s *scan) Next() (pgtricks.Record, error) {
	if s.closed {
		return pgtricks.Record{}, errors.New(
			"Next cannot be called after Iterator has been closed.")
	}
	if s.err != nil {
		return pgtricks.Record{}, s.err
	}
	result, ok := <-s.results
	if !ok {
		s.err = io.EOF
		return pgtricks.Record{}, io.EOF
	}
	if result.err != nil {
		s.err = result.err
	}
	return result.record, result.err
}

func (s *scan) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	s.wg.Wait()
	return s.c.Close()
}

// ReadAll reads every record of the run file at path.
func ReadAll(path string) (*pgtricks.TableHeader, []pgtricks.Record, error) {
	s, err := NewScan(path)
	if err != nil {
		return nil, nil, err
	}
	defer s.Close()
	records, err := pgtricks.ReadAll(s)
	if err == io.EOF {
		return s.TableHeader(), nil, nil
	} else if err != nil {
		return nil, nil, err
	}
	return s.TableHeader(), records, nil
}
