package sink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	payload, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.objects[path] = payload
	f.mu.Unlock()
	return "memory://" + path, nil
}

func (f *fakeBlobStore) object(path string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[path]
}

func TestMirrorSinkUploadsOnClose(t *testing.T) {
	t.Parallel()

	inner := NewMemorySink()
	store := newFakeBlobStore()
	s := NewMirrorSink(inner, store, "harvest/uk", zap.NewNop())

	w, err := s.Open("food-dairy")
	require.NoError(t, err)
	require.NoError(t, w.Write(record("p1", "Whole Milk 1L", 1.15)))
	require.NoError(t, w.Write(record("p2", "Butter 250g", 2.05)))

	require.Nil(t, store.object("harvest/uk/food-dairy.jsonl"))
	require.NoError(t, w.Close())

	payload := store.object("harvest/uk/food-dairy.jsonl")
	require.NotNil(t, payload)
	lines := bytes.Split(bytes.TrimSpace(payload), []byte("\n"))
	require.Len(t, lines, 2)
	require.True(t, strings.Contains(string(lines[0]), "Whole Milk 1L"))

	// Inner sink still holds the authoritative copy.
	require.Len(t, inner.Written("food-dairy"), 2)
}

func TestMirrorSinkUploadFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	inner := NewMemorySink()
	store := newFakeBlobStore()
	store.err = errors.New("bucket gone")
	s := NewMirrorSink(inner, store, "harvest/uk", zap.NewNop())

	w, err := s.Open("bakery")
	require.NoError(t, err)
	require.NoError(t, w.Write(record("p1", "Loaf", 1.1)))
	require.NoError(t, w.Close())
	require.Len(t, inner.Written("bakery"), 1)
}

func TestMirrorSinkDelegatesHasOutput(t *testing.T) {
	t.Parallel()

	inner := NewMemorySink()
	s := NewMirrorSink(inner, newFakeBlobStore(), "harvest/uk", zap.NewNop())

	ok, err := s.HasOutput("pets")
	require.NoError(t, err)
	require.False(t, ok)

	w, err := s.Open("pets")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	ok, err = s.HasOutput("pets")
	require.NoError(t, err)
	require.True(t, ok)
}
