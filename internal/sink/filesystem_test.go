package sink

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
)

func record(id, title string, price float64) catalog.ProductRecord {
	return catalog.ProductRecord{
		Identifier:   catalog.ProductIdentifier(id),
		Title:        title,
		Price:        price,
		CategoryPath: []string{"Food", "Dairy"},
	}
}

func readLines(t *testing.T, path string) []catalog.ProductRecord {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []catalog.ProductRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec catalog.ProductRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestFileSystemSinkWritesJSONLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewFileSystemSink(dir)
	require.NoError(t, err)

	w, err := s.Open("food-dairy")
	require.NoError(t, err)
	require.NoError(t, w.Write(record("p1", "Whole Milk 1L", 1.15)))
	require.NoError(t, w.Write(record("p2", "Butter 250g", 2.05)))
	require.NoError(t, w.Close())

	records := readLines(t, filepath.Join(dir, "food-dairy.jsonl"))
	require.Len(t, records, 2)
	require.Equal(t, catalog.ProductIdentifier("p1"), records[0].Identifier)
	require.Equal(t, "Butter 250g", records[1].Title)
}

func TestFileSystemSinkTruncatesOnReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewFileSystemSink(dir)
	require.NoError(t, err)

	w, err := s.Open("bakery")
	require.NoError(t, err)
	require.NoError(t, w.Write(record("old-1", "Stale Loaf", 0.5)))
	require.NoError(t, w.Write(record("old-2", "Stale Roll", 0.2)))
	require.NoError(t, w.Close())

	w, err = s.Open("bakery")
	require.NoError(t, err)
	require.NoError(t, w.Write(record("new-1", "Fresh Loaf", 1.1)))
	require.NoError(t, w.Close())

	records := readLines(t, filepath.Join(dir, "bakery.jsonl"))
	require.Len(t, records, 1)
	require.Equal(t, "Fresh Loaf", records[0].Title)
}

func TestFileSystemSinkFlushesPerRecord(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewFileSystemSink(dir)
	require.NoError(t, err)

	w, err := s.Open("household")
	require.NoError(t, err)
	require.NoError(t, w.Write(record("p1", "Sponge", 0.75)))

	// Visible on disk before Close.
	records := readLines(t, filepath.Join(dir, "household.jsonl"))
	require.Len(t, records, 1)
	require.NoError(t, w.Close())
}

func TestFileSystemSinkHasOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewFileSystemSink(dir)
	require.NoError(t, err)

	ok, err := s.HasOutput("food-dairy")
	require.NoError(t, err)
	require.False(t, ok)

	w, err := s.Open("food-dairy")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	ok, err = s.HasOutput("food-dairy")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFileWriterCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	s, err := NewFileSystemSink(t.TempDir())
	require.NoError(t, err)

	w, err := s.Open("pets")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.Error(t, w.Write(record("p1", "Dog Chews", 3.5)))
}
