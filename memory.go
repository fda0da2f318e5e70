package pgtricks

import (
	"math"
	"strings"

	"github.com/dropbox/godropbox/errors"
	"github.com/dustin/go-humanize"
)

// DefaultMaxMemory bounds the rows held in memory by a single sort.
const DefaultMaxMemory int64 = 100 * 1024 * 1024

// ParseMemorySize parses sizes such as "190", "64k", "100MiB" or "1.5 GB".
// A bare k, m or g suffix is binary (1k == 1024), any other unit follows
// go-humanize (1kB == 1000, 1KiB == 1024).
func ParseMemorySize(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, errors.New("empty memory size")
	}
	switch last := trimmed[len(trimmed)-1]; last {
	case 'k', 'K', 'm', 'M', 'g', 'G':
		trimmed += "iB"
	}
	n, err := humanize.ParseBytes(trimmed)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid memory size %q", s)
	}
	if n == 0 {
		return 0, errors.Newf("memory size %q must be positive", s)
	}
	if n > math.MaxInt64 {
		return 0, errors.Newf("memory size %q is too large", s)
	}
	return int64(n), nil
}

// FormatMemorySize renders n for log output, e.g. "100 MiB".
func FormatMemorySize(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}
