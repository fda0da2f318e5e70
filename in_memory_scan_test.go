package pgtricks

import (
	. "gopkg.in/check.v1"
)

type InMemoryScanSuite struct{}

var _ = Suite(&InMemoryScanSuite{})

func (s *InMemoryScanSuite) TestInMemoryScan(c *C) {
	t := &TableHeader{Schema: "public", Name: "users"}
	records := RecordsFromLines([]string{
		"1\tewd",
		"2\tdmr",
		"3\trob",
		"4\tken",
		"5\tgri",
	})
	scan := NewInMemoryScan(t, records)
	c.Assert(scan.TableHeader().QualifiedName(), Equals, "public.users")
	CheckIterator(c, scan, records)
}
