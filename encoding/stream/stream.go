// The stream package defines the on-disk representation of a sorted run: a
// flag byte, then (possibly s2-compressed) a header naming the table the rows
// belong to and how many rows follow, then the rows themselves.  Rows are
// length-prefixed, so they may contain any byte.
package stream

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/jomonson/pgtricks"
	"github.com/jomonson/pgtricks/encoding"
)

const (
	flagCompressed uint8 = 1 << iota
)

// readRunHeader returns io.ErrUnexpectedEOF rather than io.EOF, since a run
// file always has a header.
func readRunHeader(r *bufio.Reader) (*pgtricks.TableHeader, uint64, error) {
	schema, err := encoding.ReadTerminatedString(r)
	if err == io.EOF {
		return nil, 0, io.ErrUnexpectedEOF
	} else if err != nil {
		return nil, 0, err
	}
	name, err := encoding.ReadTerminatedString(r)
	if err == io.EOF {
		return nil, 0, io.ErrUnexpectedEOF
	} else if err != nil {
		return nil, 0, err
	}
	numRecords, err := binary.ReadUvarint(r)
	if err == io.EOF {
		return nil, 0, io.ErrUnexpectedEOF
	} else if err != nil {
		return nil, 0, err
	}
	t := &pgtricks.TableHeader{
		Schema: schema,
		Name:   name,
	}
	return t, numRecords, nil
}

func writeRunHeader(w *bufio.Writer, t *pgtricks.TableHeader, numRecords uint64) error {
	err := encoding.WriteTerminatedString(w, t.Schema)
	if err != nil {
		return err
	}
	err = encoding.WriteTerminatedString(w, t.Name)
	if err != nil {
		return err
	}
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], numRecords)
	_, err = w.Write(buf[:n])
	return err
}

func readRecord(r *bufio.Reader) (pgtricks.Record, error) {
	line, err := encoding.ReadLengthPrefixed(r)
	if err != nil {
		return pgtricks.Record{}, err
	}
	return pgtricks.NewRecord(line), nil
}

func writeRecord(w *bufio.Writer, record pgtricks.Record) error {
	return encoding.WriteLengthPrefixed(w, record.Line)
}
