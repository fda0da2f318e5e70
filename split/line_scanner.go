package split

import (
	"bufio"
	"io"

	"github.com/dropbox/godropbox/errors"
)

// lineScanner hands out the raw lines of a dump one at a time, terminators
// included, so that they can be written back unchanged.
type lineScanner struct {
	r          *bufio.Reader
	lineNumber int
	err        error
}

func newLineScanner(r io.Reader) *lineScanner {
	return &lineScanner{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns io.EOF once the input is exhausted.  The last line may lack a
// terminator.
func (l *lineScanner) Next() (string, error) {
	if l.err != nil {
		return "", l.err
	}
	line, err := l.r.ReadString('\n')
	if err == io.EOF {
		if line == "" {
			l.err = io.EOF
			return "", io.EOF
		}
	} else if err != nil {
		l.err = errors.Wrapf(err, "Failed to read line %d", l.lineNumber+1)
		return "", l.err
	}
	l.lineNumber++
	return line, nil
}

// LineNumber is the 1-based number of the line last returned by Next.
func (l *lineScanner) LineNumber() int {
	return l.lineNumber
}
