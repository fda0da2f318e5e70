// pg_dump_splitsort splits a plain-format pg_dump file into one file per
// table plus a prologue and an epilogue, sorting the rows of every table so
// that successive dumps of the same database diff cleanly.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/jomonson/pgtricks"
	"github.com/jomonson/pgtricks/extsort"
	"github.com/jomonson/pgtricks/segfile"
	"github.com/jomonson/pgtricks/split"
)

const (
	exitOK = iota
	exitFailure
	exitUsage
)

type options struct {
	MaxMemory    string `long:"max-memory" env:"PGTRICKS_MAX_MEMORY" default:"100MiB" value-name:"SIZE" description:"Memory to use for sorting a table before spilling to disk, e.g. 64k, 512m or 1GiB"`
	OutputDir    string `long:"output-dir" value-name:"DIR" description:"Where to write the split files (default: the directory of SQL_FILEPATH)"`
	TempDir      string `long:"temp-dir" env:"PGTRICKS_TEMP_DIR" value-name:"DIR" description:"Where to keep sorted runs while sorting (default: the system temp directory)"`
	CompressRuns bool   `long:"compress-runs" description:"Compress sorted runs on disk"`
	NoSort       bool   `long:"no-sort" description:"Split only, keep rows in their original order"`
	LogLevel     string `long:"log-level" env:"LOG_LEVEL" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
	LogFormat    string `long:"log-format" env:"LOG_FORMAT" default:"json" choice:"json" choice:"text" description:"Log format"`

	Args struct {
		SQLFilePath string `positional-arg-name:"SQL_FILEPATH"`
	} `positional-args:"yes" required:"yes"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "pg_dump_splitsort"
	_, err := parser.ParseArgs(args)
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, flagsErr.Message)
			return exitOK
		}
		fmt.Fprintf(stderr, "%s: %v\n", parser.Name, err)
		return exitUsage
	}

	maxMemory, err := pgtricks.ParseMemorySize(opts.MaxMemory)
	if err != nil {
		fmt.Fprintf(stderr, "%s: --max-memory: %s\n", parser.Name, pgtricks.ErrorMessage(err))
		return exitUsage
	}
	logger := newLogger(stderr, opts.LogLevel, opts.LogFormat)

	err = splitSQLFile(opts, maxMemory, logger)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %s\n", parser.Name, pgtricks.ErrorMessage(err))
		return exitFailure
	}
	return exitOK
}

// newLogger defaults to log level info and json format.
func newLogger(out io.Writer, level string, format string) *logrus.Logger {
	logger := logrus.New()
	logger.Out = out
	if format != "text" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

func splitSQLFile(opts options, maxMemory int64, logger logrus.FieldLogger) error {
	sqlFilePath := opts.Args.SQLFilePath
	start := time.Now()

	f, err := os.Open(sqlFilePath)
	if err != nil {
		return err
	}
	defer f.Close()

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = filepath.Dir(sqlFilePath)
	}
	dest, err := segfile.New(outputDir)
	if err != nil {
		return err
	}

	summary, err := split.Split(f, dest, split.Options{
		Sort: !opts.NoSort,
		Sorter: extsort.Options{
			MaxMemory:    maxMemory,
			TempDir:      opts.TempDir,
			CompressRuns: opts.CompressRuns,
			Logger:       logger,
		},
		Logger: logger,
	})
	if err != nil {
		abortErr := dest.Abort()
		if abortErr != nil {
			logger.WithField("action", "split_abort").
				WithError(abortErr).
				Warn("could not remove staged segment files")
		}
		return err
	}
	err = dest.Commit()
	if err != nil {
		return err
	}

	for _, seg := range summary.Segments {
		logger.WithFields(logrus.Fields{
			"action":  "split_segment_written",
			"segment": seg.Segment.FileName(),
			"lines":   seg.Lines,
			"rows":    seg.Rows,
			"bytes":   seg.Bytes,
		}).Debug("wrote segment")
	}
	logger.WithFields(logrus.Fields{
		"action":       "split_dump",
		"file":         sqlFilePath,
		"output_dir":   outputDir,
		"segments":     len(summary.Segments),
		"tables":       summary.Tables,
		"rows":         summary.Rows,
		"sorted":       !opts.NoSort,
		"max_memory":   pgtricks.FormatMemorySize(maxMemory),
		"spilled_runs": summary.SpilledRuns,
		"took":         time.Since(start).String(),
	}).Info("split dump")
	return nil
}
