// Package sink writes verified piece data to its final on-disk position.
// A piece may span multiple files in a multi-file torrent, so every write
// is split at file boundaries before it reaches disk. Grounded on
// gtorrent's original createEmptyFiles/writePiece (download_manager.go),
// generalized from a single whole-piece write into a general byte-range
// WriteAt a piece downloader can call as each block arrives.
package sink

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gtorrent/torrentfile"
)

// FileSpec describes one output file's placement in the flat byte-offset
// address space spanning the torrent's whole content.
type FileSpec struct {
	Path   string
	Offset int64
	Length int64
}

// Sink is the destination for verified block data. Implementations must
// tolerate overlapping or repeated WriteAt calls at the same offset
// (idempotent writes), matching spec.md §4.5's duplicate-block handling.
type Sink interface {
	WriteAt(offset int64, p []byte) (int, error)
	Files() []FileSpec
	Close() error
}

// FileSink writes directly into pre-allocated files on disk.
type FileSink struct {
	dir   string
	specs []FileSpec
	files []*os.File
}

// NewFileSink pre-allocates every file info describes under dir (creating
// parent directories as needed) and returns a Sink ready for WriteAt calls
// at any offset in [0, info.Length).
func NewFileSink(info *torrentfile.Info, dir string) (*FileSink, error) {
	s := &FileSink{dir: dir}

	var offset int64
	for _, f := range info.Files {
		path := filepath.Join(dir, f.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sink: creating directory for %s: %w", f.Path, err)
		}

		fh, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return nil, fmt.Errorf("sink: creating %s: %w", f.Path, err)
		}
		if err := fh.Truncate(f.Length); err != nil {
			fh.Close()
			return nil, fmt.Errorf("sink: preallocating %s: %w", f.Path, err)
		}

		s.specs = append(s.specs, FileSpec{Path: path, Offset: offset, Length: f.Length})
		s.files = append(s.files, fh)
		offset += f.Length
	}

	return s, nil
}

// Files returns the sink's file layout in content-offset order.
func (s *FileSink) Files() []FileSpec {
	return s.specs
}

// WriteAt writes p at the given content offset, splitting across file
// boundaries as needed (a piece may straddle two or more files).
func (s *FileSink) WriteAt(offset int64, p []byte) (int, error) {
	writeEnd := offset + int64(len(p))
	written := 0

	for i, spec := range s.specs {
		fileStart := spec.Offset
		fileEnd := spec.Offset + spec.Length

		overlapStart := offset
		if fileStart > overlapStart {
			overlapStart = fileStart
		}
		overlapEnd := writeEnd
		if fileEnd < overlapEnd {
			overlapEnd = fileEnd
		}
		if overlapStart >= overlapEnd {
			continue
		}

		chunk := p[overlapStart-offset : overlapEnd-offset]
		n, err := s.files[i].WriteAt(chunk, overlapStart-fileStart)
		written += n
		if err != nil {
			return written, fmt.Errorf("sink: writing %s at %d: %w", spec.Path, overlapStart-fileStart, err)
		}
	}

	return written, nil
}

// Close closes every underlying file handle, returning the first error
// encountered (if any) after attempting to close them all.
func (s *FileSink) Close() error {
	var first error
	for _, fh := range s.files {
		if err := fh.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ io.Closer = (*FileSink)(nil)
