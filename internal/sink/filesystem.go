package sink

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
)

// FileSystemSink writes each category to <dir>/<slug>.jsonl. Records
// are flushed as they are written so a crash leaves every line that
// was reported written intact.
type FileSystemSink struct {
	dir string
}

// NewFileSystemSink creates the output directory if needed.
func NewFileSystemSink(dir string) (*FileSystemSink, error) {
	if dir == "" {
		return nil, errors.New("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &FileSystemSink{dir: dir}, nil
}

func (s *FileSystemSink) path(slug string) string {
	return filepath.Join(s.dir, slug+".jsonl")
}

// Open truncates any previous output for the slug and starts fresh.
func (s *FileSystemSink) Open(slug string) (Writer, error) {
	if slug == "" {
		return nil, errors.New("slug is required")
	}
	f, err := os.OpenFile(s.path(slug), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening output unit %s: %w", slug, err)
	}
	return &fileWriter{file: f, buf: bufio.NewWriter(f)}, nil
}

// HasOutput reports whether an output unit from an earlier run exists.
func (s *FileSystemSink) HasOutput(slug string) (bool, error) {
	_, err := os.Stat(s.path(slug))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("probing output unit %s: %w", slug, err)
}

type fileWriter struct {
	file   *os.File
	buf    *bufio.Writer
	closed bool
}

func (w *fileWriter) Write(rec catalog.ProductRecord) error {
	if w.closed {
		return errors.New("output unit already closed")
	}
	enc := json.NewEncoder(w.buf)
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("encoding record %s: %w", rec.Identifier, err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flushing record %s: %w", rec.Identifier, err)
	}
	return nil
}

func (w *fileWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("flushing output unit: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing output unit: %w", err)
	}
	return nil
}
