package vfs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"
)

// listBatchSize is how many directory entries are pulled from the kernel per
// ReadDir call while streaming a listing.
const listBatchSize = 256

// Entry is one row of a directory listing.
type Entry struct {
	Name    string
	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
	IsDir   bool
}

// ListStream yields directory entries lazily in batches.
//
// A stream is finite and cannot be restarted; callers iterate with Next until
// io.EOF and must Close it. Entries added or removed while streaming may or
// may not be observed.
type ListStream struct {
	dir   *os.File
	batch []os.DirEntry
	idx   int
	done  bool
}

// List opens a directory listing stream for a virtual path.
// The path must name a directory.
func (g *Gateway) List(p string) (*ListStream, error) {
	rel, err := g.resolve(p)
	if err != nil {
		return nil, err
	}

	info, err := g.root.Stat(rel)
	if err != nil {
		return nil, classify(err)
	}
	if !info.IsDir() {
		return nil, ErrNotDirectory
	}

	dir, err := g.root.Open(rel)
	if err != nil {
		return nil, classify(err)
	}
	return &ListStream{dir: dir}, nil
}

// Next returns the next entry, or io.EOF when the listing is exhausted.
// Entries whose metadata cannot be read (deleted mid-listing) are skipped.
func (s *ListStream) Next() (Entry, error) {
	for {
		if s.idx < len(s.batch) {
			de := s.batch[s.idx]
			s.idx++

			info, err := de.Info()
			if err != nil {
				continue
			}
			return Entry{
				Name:    de.Name(),
				Size:    info.Size(),
				Mode:    info.Mode(),
				ModTime: info.ModTime(),
				IsDir:   de.IsDir(),
			}, nil
		}

		if s.done {
			return Entry{}, io.EOF
		}

		batch, err := s.dir.ReadDir(listBatchSize)
		if err == io.EOF || len(batch) == 0 {
			s.done = true
			if len(batch) == 0 {
				return Entry{}, io.EOF
			}
		} else if err != nil {
			return Entry{}, err
		}
		s.batch = batch
		s.idx = 0
	}
}

// Close releases the directory handle.
func (s *ListStream) Close() error {
	return s.dir.Close()
}

// FormatLong renders an entry as one Unix-style long listing line, the format
// clients expect from LIST.
func FormatLong(e Entry) string {
	mode := e.Mode.String()
	links := 1
	if e.IsDir {
		links = 2
	}
	return fmt.Sprintf("%s %4d %-8s %-8s %12d %s %s",
		mode, links, "ftp", "ftp", e.Size, formatListTime(e.ModTime), e.Name)
}

// formatListTime follows ls convention: month day time for recent entries,
// month day year for older ones.
func formatListTime(t time.Time) string {
	if time.Since(t) < 180*24*time.Hour && time.Until(t) < time.Hour {
		return t.Format("Jan _2 15:04")
	}
	return t.Format("Jan _2  2006")
}

// FormatShort renders an entry for NLST output, a bare name with a trailing
// slash on directories.
func FormatShort(e Entry) string {
	if e.IsDir && !strings.HasSuffix(e.Name, "/") {
		return e.Name + "/"
	}
	return e.Name
}
