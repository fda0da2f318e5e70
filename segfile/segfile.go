// Package segfile writes the segments of a split dump into a directory.
// Segments are staged in hidden temporary files and only get their final
// names on Commit, so a failed split never leaves a partial set of segment
// files behind.
package segfile

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dropbox/godropbox/errors"

	"github.com/jomonson/pgtricks"
)

// ErrPathInvalid is returned for segment file names that would refer to a
// location outside of the directory.
var ErrPathInvalid = errors.New("segment path invalid")

const filePerm os.FileMode = 0o644

type staged struct {
	tmpPath string
	path    string
}

type Dir struct {
	dir    string
	staged []staged
	closed bool
}

func New(dir string) (*Dir, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "Output directory %s is not usable", dir)
	}
	if !info.IsDir() {
		return nil, errors.Newf("Output directory %s is not a directory", dir)
	}
	return &Dir{dir: dir}, nil
}

func (d *Dir) mapPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) ||
		filepath.Base(name) != name ||
		filepath.VolumeName(name) != "" {
		return "", ErrPathInvalid
	}
	return filepath.Join(d.dir, name), nil
}

// Create stages seg in a new temporary file.
func (d *Dir) Create(seg pgtricks.Segment) (io.WriteCloser, error) {
	if d.closed {
		return nil, errors.New("Create cannot be called after Commit or Abort.")
	}
	path, err := d.mapPath(seg.FileName())
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(d.dir, ".pgtricks-*.tmp")
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to stage segment %s", seg)
	}
	// CreateTemp makes files readable by the owner only.
	err = f.Chmod(filePerm)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, errors.Wrapf(err, "Failed to stage segment %s", seg)
	}
	d.staged = append(d.staged, staged{tmpPath: f.Name(), path: path})
	return &stagedFile{f}, nil
}

type stagedFile struct {
	*os.File
}

func (f *stagedFile) Close() error {
	err := f.File.Sync()
	closeErr := f.File.Close()
	if err != nil {
		return err
	}
	return closeErr
}

// Commit moves every staged segment onto its final name, replacing existing
// files.  The directory is left as is if a rename fails part way; staged
// files that were not renamed are removed.
func (d *Dir) Commit() error {
	if d.closed {
		return errors.New("Commit cannot be called after Commit or Abort.")
	}
	for i, s := range d.staged {
		err := os.Rename(s.tmpPath, s.path)
		if err != nil {
			d.staged = d.staged[i:]
			d.Abort()
			return errors.Wrapf(err, "Failed to commit %s", s.path)
		}
	}
	d.closed = true
	syncDir(d.dir)
	return nil
}

// Abort removes every staged segment.  It is safe to call more than once,
// and after Commit, in which case it does nothing.
func (d *Dir) Abort() error {
	if d.closed {
		return nil
	}
	d.closed = true
	var firstErr error
	for _, s := range d.staged {
		err := os.Remove(s.tmpPath)
		if err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = errors.Wrapf(err, "Failed to remove %s", s.tmpPath)
		}
	}
	return firstErr
}

// Paths lists the final paths of the staged segments in creation order.
func (d *Dir) Paths() []string {
	paths := make([]string, len(d.staged))
	for i, s := range d.staged {
		paths[i] = s.path
	}
	return paths
}

// syncDir persists the renames on platforms that support syncing a
// directory.  Errors are ignored.
func syncDir(dir string) {
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	defer f.Close()
	_ = f.Sync()
}
