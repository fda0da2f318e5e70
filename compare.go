package pgtricks

import (
	"strconv"
	"strings"
)

// Order is the result of a three-way comparison.
type Order int8

const (
	Less    Order = -1
	Equal   Order = 0
	Greater Order = 1
)

// Int converts the Order to the -1/0/+1 convention used by sort helpers.
func (o Order) Int() int {
	return int(o)
}

func (o Order) String() string {
	switch o {
	case Less:
		return "less"
	case Equal:
		return "equal"
	case Greater:
		return "greater"
	default:
		return "Order(" + strconv.Itoa(int(o)) + ")"
	}
}

// operands is the outcome of coercing a pair of fields: either both fields
// as numbers, or both fields as the original text.  A pair is never mixed.
type operands struct {
	numeric bool
	x, y    float64
	a, b    string
}

func coerce(a, b string) operands {
	if isNumeric(a) && isNumeric(b) {
		return operands{
			numeric: true,
			x:       parseNumeric(a),
			y:       parseNumeric(b),
		}
	}
	return operands{a: a, b: b}
}

// isNumeric accepts an optional leading minus sign, then digits with at most
// one decimal point, and at least one digit overall.  Exponents, a plus sign,
// whitespace and digit grouping are all rejected.
func isNumeric(s string) bool {
	if strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	digits := 0
	seenPoint := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' && !seenPoint:
			seenPoint = true
		default:
			return false
		}
	}
	return digits > 0
}

// Precondition: isNumeric(s).
func parseNumeric(s string) float64 {
	// The grammar is a subset of what ParseFloat accepts, so the only
	// possible error is ErrRange, in which case x is the correctly signed
	// infinity (or zero on underflow).
	x, _ := strconv.ParseFloat(s, 64)
	return x
}

// CompareFields orders two fields numerically when both of them are numbers
// and by their bytes otherwise.
func CompareFields(a, b string) Order {
	ops := coerce(a, b)
	if ops.numeric {
		switch {
		case ops.x < ops.y:
			return Less
		case ops.x > ops.y:
			return Greater
		default:
			return Equal
		}
	}
	return Order(strings.Compare(ops.a, ops.b))
}

// CompareRecords orders two Records field by field.  If one Record is a
// prefix of the other (under CompareFields), the one with fewer fields comes
// first.
func CompareRecords(r1, r2 Record) Order {
	n := len(r1.Fields)
	if len(r2.Fields) < n {
		n = len(r2.Fields)
	}
	for i := 0; i < n; i++ {
		if o := CompareFields(r1.Fields[i], r2.Fields[i]); o != Equal {
			return o
		}
	}
	switch {
	case len(r1.Fields) < len(r2.Fields):
		return Less
	case len(r1.Fields) > len(r2.Fields):
		return Greater
	default:
		return Equal
	}
}

// CompareLines is CompareRecords for unsplit row text.
func CompareLines(l1, l2 string) Order {
	return CompareRecords(NewRecord(l1), NewRecord(l2))
}

func RecordLess(r1, r2 Record) bool {
	return CompareRecords(r1, r2) == Less
}
