package split

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	. "gopkg.in/check.v1"

	. "github.com/dropbox/godropbox/gocheck2"
	"github.com/dropbox/godropbox/errors"

	"github.com/jomonson/pgtricks"
	"github.com/jomonson/pgtricks/extsort"
)

type SplitSuite struct{}

var _ = Suite(&SplitSuite{})

const prologue = `
--
-- Name: table1; Type: TABLE; Schema: public; Owner:
--

(information for table1 goes here)
`

const table1Copy = `
-- Data for Name: table1; Type: TABLE DATA; Schema: public;

COPY foo (id) FROM stdin;
3
1
4
1
5
9
2
6
5
3
8
4
\.
`

const table1CopySorted = `
-- Data for Name: table1; Type: TABLE DATA; Schema: public;

COPY foo (id) FROM stdin;
1
1
2
3
3
4
4
5
5
6
8
9
\.
`

const epilogue = `
-- epilogue
`

// memoryDestination keeps every segment in a buffer.
type memoryDestination struct {
	segments []pgtricks.Segment
	buffers  []*bytes.Buffer
	open     int
	// Create fails for the segment with this index, if non-negative.
	failAt int
}

func newMemoryDestination() *memoryDestination {
	return &memoryDestination{failAt: -1}
}

type memoryWriter struct {
	*bytes.Buffer
	d *memoryDestination
}

func (w memoryWriter) Close() error {
	w.d.open--
	return nil
}

func (d *memoryDestination) Create(seg pgtricks.Segment) (io.WriteCloser, error) {
	if len(d.segments) == d.failAt {
		return nil, errors.New("disk full")
	}
	if d.open != 0 {
		return nil, errors.New("previous segment is still open")
	}
	d.open++
	buf := &bytes.Buffer{}
	d.segments = append(d.segments, seg)
	d.buffers = append(d.buffers, buf)
	return memoryWriter{Buffer: buf, d: d}, nil
}

func (d *memoryDestination) fileNames() []string {
	names := make([]string, len(d.segments))
	for i, seg := range d.segments {
		names[i] = seg.FileName()
	}
	return names
}

func (d *memoryDestination) contents() []string {
	contents := make([]string, len(d.buffers))
	for i, buf := range d.buffers {
		contents[i] = buf.String()
	}
	return contents
}

func (d *memoryDestination) concatenated() string {
	return strings.Join(d.contents(), "")
}

func sortOptions(c *C, maxMemory int64) Options {
	return Options{
		Sort:   true,
		Sorter: extsort.Options{MaxMemory: maxMemory, TempDir: c.MkDir()},
	}
}

func (s *SplitSuite) TestSplitAndSort(c *C) {
	opts := sortOptions(c, 190)
	dest := newMemoryDestination()
	summary, err := Split(strings.NewReader(prologue+table1Copy+epilogue), dest, opts)
	c.Assert(err, IsNil)

	c.Assert(dest.fileNames(), DeepEquals, []string{
		"0000_prologue.sql",
		"0001_public.table1.sql",
		"9999_epilogue.sql",
	})
	c.Assert(dest.contents(), DeepEquals, []string{prologue, table1CopySorted, epilogue})
	c.Assert(dest.open, Equals, 0)

	c.Assert(summary.Tables, Equals, 1)
	c.Assert(summary.Rows, Equals, 12)
	c.Assert(summary.SpilledRuns > 0, IsTrue)
	c.Assert(summary.Segments, HasLen, 3)
	c.Assert(summary.Segments[1].Segment.Table.Name, Equals, "table1")
	c.Assert(summary.Segments[1].Rows, Equals, 12)
	c.Assert(summary.Segments[1].Lines, Equals, 17)
	c.Assert(summary.Segments[1].Bytes, Equals, int64(len(table1CopySorted)))
	c.Assert(summary.Segments[0].Rows, Equals, 0)

	// Sorting left nothing behind.
	entries, err := os.ReadDir(opts.Sorter.TempDir)
	c.Assert(err, IsNil)
	c.Assert(entries, HasLen, 0)
}

func (s *SplitSuite) TestSortBudgetDoesNotChangeOutput(c *C) {
	input := prologue + table1Copy + epilogue
	var expected []string
	for _, maxMemory := range []int64{1, 190, 1 << 20} {
		dest := newMemoryDestination()
		_, err := Split(strings.NewReader(input), dest, sortOptions(c, maxMemory))
		c.Assert(err, IsNil)
		if expected == nil {
			expected = dest.contents()
		}
		c.Assert(dest.contents(), DeepEquals, expected)
	}
}

const mixedDump = "SET statement_timeout = 0;\r\n" +
	"SET search_path = public, pg_catalog;\r\n" +
	"\r\n" +
	"--\r\n" +
	"-- Data for Name: movies; Type: TABLE DATA; Schema: public; Owner: joe\r\n" +
	"--\r\n" +
	"\r\n" +
	"COPY movies (id, title, rating) FROM stdin;\r\n" +
	"2\tGattaca\t4.5\r\n" +
	"1\tLeon: The Professional\t\\N\r\n" +
	"\\.\r\n" +
	"\n" +
	"-- Name: movies_id_seq; Type: SEQUENCE SET; Schema: public; Owner: joe\n" +
	"SELECT pg_catalog.setval('movies_id_seq', 2, true);\n" +
	"\n" +
	"SET search_path = archive, pg_catalog;\n" +
	"\n" +
	"-- Data for Name: old_movies; Type: TABLE DATA; Schema: archive;\n" +
	"COPY old_movies (id) FROM stdin;\n" +
	"\\.\n" +
	"\n" +
	"CREATE INDEX movies_title ON movies (title);\n" +
	"--\n" +
	"-- no final newline"

func (s *SplitSuite) TestRoundTrip(c *C) {
	for _, input := range []string{
		mixedDump,
		prologue + table1Copy + epilogue,
		"",
		"\n",
		"just one line",
		"-- Data for Name: t; Type: TABLE DATA; Schema: s;\nCOPY t (a) FROM stdin;\n\\.",
	} {
		dest := newMemoryDestination()
		_, err := Split(strings.NewReader(input), dest, Options{})
		c.Assert(err, IsNil)
		c.Assert(dest.concatenated(), Equals, input)
	}
}

func (s *SplitSuite) TestSegmentBoundaries(c *C) {
	dest := newMemoryDestination()
	summary, err := Split(strings.NewReader(mixedDump), dest, sortOptions(c, 1<<20))
	c.Assert(err, IsNil)
	c.Assert(summary.Tables, Equals, 2)
	c.Assert(summary.Rows, Equals, 2)

	c.Assert(dest.fileNames(), DeepEquals, []string{
		"0000_prologue.sql",
		"0001_public.movies.sql",
		"0002_archive.old_movies.sql",
		"9999_epilogue.sql",
	})
	contents := dest.contents()
	c.Assert(contents[0], Equals, "SET statement_timeout = 0;\r\n")
	// The search_path and the blank and dash lines travel with the data
	// comment that follows them.  Rows are sorted, and the sequence position
	// stays with its table.  The blank line before the next search_path is
	// flushed here as well.
	c.Assert(contents[1], Equals,
		"SET search_path = public, pg_catalog;\r\n"+
			"\r\n"+
			"--\r\n"+
			"-- Data for Name: movies; Type: TABLE DATA; Schema: public; Owner: joe\r\n"+
			"--\r\n"+
			"\r\n"+
			"COPY movies (id, title, rating) FROM stdin;\r\n"+
			"1\tLeon: The Professional\t\\N\r\n"+
			"2\tGattaca\t4.5\r\n"+
			"\\.\r\n"+
			"\n"+
			"-- Name: movies_id_seq; Type: SEQUENCE SET; Schema: public; Owner: joe\n"+
			"SELECT pg_catalog.setval('movies_id_seq', 2, true);\n"+
			"\n")
	c.Assert(contents[2], Equals,
		"SET search_path = archive, pg_catalog;\n"+
			"\n"+
			"-- Data for Name: old_movies; Type: TABLE DATA; Schema: archive;\n"+
			"COPY old_movies (id) FROM stdin;\n"+
			"\\.\n")
	c.Assert(contents[3], Equals,
		"\n"+
			"CREATE INDEX movies_title ON movies (title);\n"+
			"--\n"+
			"-- no final newline")
}

func (s *SplitSuite) TestNoTables(c *C) {
	input := "SET client_encoding = 'UTF8';\n\nCREATE TABLE foo (id integer);\n--\n"
	dest := newMemoryDestination()
	summary, err := Split(strings.NewReader(input), dest, sortOptions(c, 1))
	c.Assert(err, IsNil)
	c.Assert(dest.fileNames(), DeepEquals, []string{"0000_prologue.sql"})
	c.Assert(dest.contents(), DeepEquals, []string{input})
	c.Assert(summary.Tables, Equals, 0)

	// The prologue exists even for empty input.
	dest = newMemoryDestination()
	_, err = Split(strings.NewReader(""), dest, Options{})
	c.Assert(err, IsNil)
	c.Assert(dest.contents(), DeepEquals, []string{""})
}

func (s *SplitSuite) TestNoEpilogueWithoutTrailingStatements(c *C) {
	input := table1Copy + "\n--\n"
	dest := newMemoryDestination()
	_, err := Split(strings.NewReader(input), dest, Options{})
	c.Assert(err, IsNil)
	c.Assert(dest.fileNames(), DeepEquals, []string{
		"0000_prologue.sql",
		"0001_public.table1.sql",
	})
	c.Assert(dest.contents(), DeepEquals, []string{"", table1Copy + "\n--\n"})
}

func (s *SplitSuite) TestCopyBlockOutsideOfTableData(c *C) {
	input := "COPY foo (id) FROM stdin;\n2\n10\n1\n\\.\n"
	dest := newMemoryDestination()
	_, err := Split(strings.NewReader(input), dest, sortOptions(c, 1<<20))
	c.Assert(err, IsNil)
	c.Assert(dest.contents(), DeepEquals, []string{"COPY foo (id) FROM stdin;\n1\n2\n10\n\\.\n"})
}

// Data-only dumps made with --disable-triggers wrap every COPY block in
// ALTER TABLE statements.
func disabledTriggersTable(name string, rows string) string {
	return "\n" +
		"--\n" +
		"-- Data for Name: " + name + "; Type: TABLE DATA; Schema: public; Owner: joe\n" +
		"--\n" +
		"\n" +
		"ALTER TABLE public." + name + " DISABLE TRIGGER ALL;\n" +
		"\n" +
		"COPY public." + name + " (id) FROM stdin;\n" +
		rows +
		"\\.\n" +
		"\n" +
		"\n" +
		"ALTER TABLE public." + name + " ENABLE TRIGGER ALL;\n"
}

const dumpComplete = "\n" +
	"--\n" +
	"-- PostgreSQL database dump complete\n" +
	"--\n" +
	"\n"

func (s *SplitSuite) TestStatementsBetweenTables(c *C) {
	input := "SET client_encoding = 'UTF8';\n" +
		disabledTriggersTable("t1", "2\n1\n") +
		"\n" +
		"SET default_tablespace = '';\n" +
		disabledTriggersTable("t2", "20\n10\n3\n") +
		dumpComplete

	for _, opts := range []Options{{}, sortOptions(c, 1)} {
		dest := newMemoryDestination()
		summary, err := Split(strings.NewReader(input), dest, opts)
		c.Assert(err, IsNil)
		c.Assert(summary.Tables, Equals, 2)
		c.Assert(summary.Rows, Equals, 5)
		c.Assert(dest.fileNames(), DeepEquals, []string{
			"0000_prologue.sql",
			"0001_public.t1.sql",
			"0002_public.t2.sql",
			"9999_epilogue.sql",
		})
		c.Assert(dest.concatenated() == input, Equals, !opts.Sort)

		contents := dest.contents()
		c.Assert(contents[0], Equals, "SET client_encoding = 'UTF8';\n")
		// Statements between two tables stay with the earlier one.
		t1 := disabledTriggersTable("t1", "2\n1\n") + "\n" + "SET default_tablespace = '';\n"
		t2 := disabledTriggersTable("t2", "20\n10\n3\n")
		if opts.Sort {
			t1 = disabledTriggersTable("t1", "1\n2\n") + "\n" + "SET default_tablespace = '';\n"
			t2 = disabledTriggersTable("t2", "3\n10\n20\n")
		}
		c.Assert(contents[1], Equals, t1)
		// Only what follows the last table's data is the epilogue.
		dataEnd := strings.Index(t2, "\\.\n") + len("\\.\n")
		c.Assert(contents[2], Equals, t2[:dataEnd])
		c.Assert(contents[3], Equals, t2[dataEnd:]+dumpComplete)
	}
}

func (s *SplitSuite) TestTableDataAfterOtherStatements(c *C) {
	input := table1Copy + epilogue + table1Copy
	dest := newMemoryDestination()
	summary, err := Split(strings.NewReader(input), dest, sortOptions(c, 190))
	c.Assert(err, IsNil)
	c.Assert(summary.Tables, Equals, 2)
	c.Assert(dest.fileNames(), DeepEquals, []string{
		"0000_prologue.sql",
		"0001_public.table1.sql",
		"0002_public.table1.sql",
	})
	c.Assert(dest.contents(), DeepEquals, []string{
		"",
		table1CopySorted + epilogue,
		table1CopySorted,
	})
}

func (s *SplitSuite) TestStructureErrors(c *C) {
	type testCase struct {
		input      string
		lineNumber int
	}
	for _, tc := range []testCase{
		// Not terminated.
		{table1Copy[:strings.Index(table1Copy, `\.`)], 4},
		{"COPY foo (id) FROM stdin;\n1\n2", 1},
		// Terminator without a block.
		{prologue + "\\.\n", 7},
		{table1Copy + epilogue + "\\.\n", 20},
	} {
		for _, opts := range []Options{{}, sortOptions(c, 1)} {
			dest := newMemoryDestination()
			summary, err := Split(strings.NewReader(tc.input), dest, opts)
			c.Assert(summary, IsNil)
			c.Assert(err, NotNil, Commentf("%q", tc.input))
			c.Assert(pgtricks.IsStructureError(err), IsTrue, Commentf("%v", err))
			c.Assert(pgtricks.IsStorageError(err), IsFalse)
			c.Assert(err.(*pgtricks.StructureError).LineNumber, Equals, tc.lineNumber,
				Commentf("%v", err))
			// The open segment has been closed.
			c.Assert(dest.open, Equals, 0)

			if opts.Sort {
				entries, err := os.ReadDir(opts.Sorter.TempDir)
				c.Assert(err, IsNil)
				c.Assert(entries, HasLen, 0)
			}
		}
	}
}

func (s *SplitSuite) TestTooManyTables(c *C) {
	var input strings.Builder
	for i := 0; i < pgtricks.EpilogueNumber-1; i++ {
		input.WriteString("-- Data for Name: t; Type: TABLE DATA; Schema: s;\n")
	}
	dest := newMemoryDestination()
	summary, err := Split(strings.NewReader(input.String()), dest, Options{})
	c.Assert(err, IsNil)
	c.Assert(summary.Tables, Equals, pgtricks.EpilogueNumber-1)
	c.Assert(dest.segments[len(dest.segments)-1].FileName(), Equals, "9998_s.t.sql")

	input.WriteString("-- Data for Name: t; Type: TABLE DATA; Schema: s;\n")
	_, err = Split(strings.NewReader(input.String()), newMemoryDestination(), Options{})
	c.Assert(pgtricks.IsStructureError(err), IsTrue)
}

func (s *SplitSuite) TestStorageFailure(c *C) {
	notADir := filepath.Join(c.MkDir(), "file")
	c.Assert(os.WriteFile(notADir, nil, 0o600), IsNil)
	opts := Options{
		Sort:   true,
		Sorter: extsort.Options{MaxMemory: 1, TempDir: notADir},
	}
	dest := newMemoryDestination()
	_, err := Split(strings.NewReader(prologue+table1Copy+epilogue), dest, opts)
	c.Assert(err, NotNil)
	c.Assert(pgtricks.IsStorageError(err), IsTrue)
	c.Assert(pgtricks.IsStructureError(err), IsFalse)
	c.Assert(dest.open, Equals, 0)
}

func (s *SplitSuite) TestDestinationFailure(c *C) {
	dest := newMemoryDestination()
	dest.failAt = 1
	_, err := Split(strings.NewReader(prologue+table1Copy+epilogue), dest, Options{})
	c.Assert(err, NotNil)
	c.Assert(pgtricks.ErrorMessage(err), Matches, ".*0001 public.table1: disk full")
	c.Assert(dest.segments, HasLen, 1)
	c.Assert(dest.open, Equals, 0)
}

type failingReader struct {
	r io.Reader
}

func (f failingReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF {
		return n, errors.New("connection reset")
	}
	return n, err
}

func (s *SplitSuite) TestReadFailure(c *C) {
	dest := newMemoryDestination()
	_, err := Split(failingReader{strings.NewReader(prologue)}, dest, Options{})
	c.Assert(err, NotNil)
	c.Assert(pgtricks.ErrorMessage(err), Matches, "Failed to read line .*: connection reset")
	c.Assert(dest.open, Equals, 0)
}
