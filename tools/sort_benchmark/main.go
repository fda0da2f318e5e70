package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"net/http"
	_ "net/http/pprof"

	"github.com/dropbox/godropbox/math2/rand2"
	flags "github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/jomonson/pgtricks"
	"github.com/jomonson/pgtricks/extsort"
)

type options struct {
	Rows         int    `long:"rows" default:"1000000" description:"Number of generated rows"`
	MaxMemory    string `long:"max-memory" default:"64MiB" description:"Memory budget of the on-disk sort"`
	TempDir      string `long:"temp-dir" description:"Where to keep sorted runs"`
	CompressRuns bool   `long:"compress-runs" description:"Compress sorted runs on disk"`
	Pprof        string `long:"pprof" description:"Serve pprof on this address, e.g. localhost:6060"`
}

// ratings generates rows shaped like a ratings table: user id, movie id,
// rating and timestamp, with some null ratings.
func ratings(n int) []pgtricks.Record {
	records := make([]pgtricks.Record, n)
	for i := range records {
		rating := `\N`
		if rand2.Intn(10) > 0 {
			rating = strconv.Itoa(rand2.Intn(5)) + "." + strconv.Itoa(rand2.Intn(2)*5)
		}
		records[i] = pgtricks.NewRecord(strings.Join([]string{
			strconv.Itoa(rand2.Intn(140000)),
			strconv.Itoa(rand2.Intn(130000)),
			rating,
			strconv.Itoa(789652009 + rand2.Intn(700000000)),
		}, pgtricks.FieldSeparator))
	}
	return records
}

func drain(iter pgtricks.Iterator) (int, error) {
	numRecords := 0
	for {
		_, err := iter.Next()
		if err == io.EOF {
			return numRecords, iter.Close()
		} else if err != nil {
			iter.Close()
			return numRecords, err
		}
		numRecords++
	}
}

func main() {
	var opts options
	_, err := flags.Parse(&opts)
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	if opts.Pprof != "" {
		go func() {
			err := http.ListenAndServe(opts.Pprof, nil)
			logger.WithField("action", "pprof").WithError(err).Error("pprof server stopped")
		}()
	}
	err = benchmark(opts, os.Stdout, logger)
	if err != nil {
		logger.WithField("action", "sort_benchmark").Fatal(pgtricks.ErrorMessage(err))
	}
}

func benchmark(opts options, out io.Writer, logger logrus.FieldLogger) error {
	maxMemory, err := pgtricks.ParseMemorySize(opts.MaxMemory)
	if err != nil {
		return err
	}

	t := &pgtricks.TableHeader{Schema: "public", Name: "ratings"}
	records := ratings(opts.Rows)

	start := time.Now()
	inMemory, err := extsort.NewSortInMemory(pgtricks.NewInMemoryScan(t, records))
	if err != nil {
		return err
	}
	numRecords, err := drain(inMemory)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Sorted %v records in memory after %v\n", numRecords, time.Since(start))

	start = time.Now()
	onDisk, err := extsort.NewSortOnDisk(
		pgtricks.NewInMemoryScan(t, records),
		extsort.Options{
			MaxMemory:    maxMemory,
			TempDir:      opts.TempDir,
			CompressRuns: opts.CompressRuns,
			Logger:       logger,
		})
	if err != nil {
		return err
	}
	stats := onDisk.Stats()
	fmt.Fprintf(
		out,
		"Done writing %v sorted runs (%v) after %v!\n",
		stats.SpilledRuns,
		pgtricks.FormatMemorySize(stats.SpilledBytes),
		time.Since(start))
	numRecords, err = drain(onDisk)
	if err != nil {
		return err
	}
	fmt.Fprintf(
		out,
		"Done iterating through all %v sorted records after %v\n",
		numRecords,
		time.Since(start))
	return nil
}
