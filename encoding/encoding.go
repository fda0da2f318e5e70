// Package encoding holds the primitive codecs used by sorted-run files.
package encoding

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/dropbox/godropbox/errors"
)

// Use null-terminated strings for names.
var StringTerminator uint8 = 0

// Upper bound on a single length-prefixed value; anything larger is treated
// as corruption rather than allocated.
var maxValueLength uint64 = 1 << 31

func ReadTerminatedString(r *bufio.Reader) (string, error) {
	s, err := r.ReadString(StringTerminator)
	if err == io.EOF && len(s) > 0 {
		return "", io.ErrUnexpectedEOF
	} else if err != nil {
		return "", err
	}
	return s[:len(s)-1], nil
}

func WriteTerminatedString(w *bufio.Writer, s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] == StringTerminator {
			return errors.Newf("string %q contains the terminator byte", s)
		}
	}
	_, err := w.WriteString(s)
	if err != nil {
		return err
	}
	return w.WriteByte(StringTerminator)
}

// ReadLengthPrefixed reads a value written by WriteLengthPrefixed.  It returns
// io.EOF only if r is exhausted before the first byte of the value.
func ReadLengthPrefixed(r *bufio.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	if n > maxValueLength {
		return "", errors.Newf("value length %d exceeds limit %d", n, maxValueLength)
	}
	buf := make([]byte, n)
	_, err = io.ReadFull(r, buf)
	if err == io.EOF {
		return "", io.ErrUnexpectedEOF
	} else if err != nil {
		return "", err
	}
	return string(buf), nil
}

func WriteLengthPrefixed(w *bufio.Writer, s string) error {
	var prefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(prefix[:], uint64(len(s)))
	_, err := w.Write(prefix[:n])
	if err != nil {
		return err
	}
	_, err = w.WriteString(s)
	return err
}
