package split

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jomonson/pgtricks"
)

// Kind is what a single line of a dump means to the splitter.
type Kind uint8

const (
	Other Kind = iota
	// An empty line.
	Blank
	// A line consisting of exactly "--".
	Dashes
	// "SET search_path = ..."
	SearchPath
	// "-- Data for Name: <table>; Type: TABLE DATA; Schema: <schema>; ..."
	TableData
	// "COPY <table> (<columns>) FROM stdin;"
	CopyStart
	// The "\." line that ends a COPY block.
	CopyEnd
	// A comment or setval() call restoring a sequence position.
	SequenceSet
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other"
	case Blank:
		return "blank"
	case Dashes:
		return "dashes"
	case SearchPath:
		return "search_path"
	case TableData:
		return "table_data"
	case CopyStart:
		return "copy_start"
	case CopyEnd:
		return "copy_end"
	case SequenceSet:
		return "sequence_set"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Line is the classification of one line.
type Line struct {
	Kind Kind
	// Table is only set for TableData lines.
	Table *pgtricks.TableHeader
}

const copyTerminator = `\.`

var (
	dataCommentRegexp = regexp.MustCompile(
		`^-- Data for Name: (.*?); Type: TABLE DATA; Schema: (.*?);`)
	copyStartRegexp   = regexp.MustCompile(`^COPY \S.* FROM stdin;$`)
	sequenceSetRegexp = regexp.MustCompile(
		`^(-- Name: .+; Type: SEQUENCE SET; Schema: |SELECT pg_catalog\.setval\()`)
)

// trimTerminator strips a trailing "\n" or "\r\n".
func trimTerminator(line string) string {
	if strings.HasSuffix(line, "\n") {
		line = line[:len(line)-1]
		return strings.TrimSuffix(line, "\r")
	}
	return line
}

// Classify looks at a single line, with or without its line terminator.
func Classify(line string) Line {
	line = trimTerminator(line)
	switch {
	case line == "":
		return Line{Kind: Blank}
	case line == "--":
		return Line{Kind: Dashes}
	case line == copyTerminator:
		return Line{Kind: CopyEnd}
	case strings.HasPrefix(line, "SET search_path = "):
		return Line{Kind: SearchPath}
	case strings.HasPrefix(line, "COPY "):
		if copyStartRegexp.MatchString(line) {
			return Line{Kind: CopyStart}
		}
	case strings.HasPrefix(line, "-- "), strings.HasPrefix(line, "SELECT "):
		if m := dataCommentRegexp.FindStringSubmatch(line); m != nil {
			return Line{
				Kind:  TableData,
				Table: &pgtricks.TableHeader{Schema: m[2], Name: m[1]},
			}
		}
		if sequenceSetRegexp.MatchString(line) {
			return Line{Kind: SequenceSet}
		}
	}
	return Line{Kind: Other}
}
