package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
	"github.com/shelfbase/catalog-harvester/internal/hash/sha256"
)

// BlobStore uploads finished output units to durable storage.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

const (
	mirrorContentType   = "application/x-ndjson"
	defaultUploadWindow = 60 * time.Second
)

// MirrorSink wraps another sink and uploads each output unit to a blob
// store when it closes. The local output stays authoritative; a failed
// upload is logged and otherwise ignored.
type MirrorSink struct {
	inner  Sink
	store  BlobStore
	prefix string
	window time.Duration
	logger *zap.Logger
}

// NewMirrorSink mirrors inner's output units under prefix in store.
func NewMirrorSink(inner Sink, store BlobStore, prefix string, logger *zap.Logger) *MirrorSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MirrorSink{
		inner:  inner,
		store:  store,
		prefix: prefix,
		window: defaultUploadWindow,
		logger: logger.Named("mirror"),
	}
}

// Open opens the inner output unit and starts buffering its mirror copy.
func (s *MirrorSink) Open(slug string) (Writer, error) {
	w, err := s.inner.Open(slug)
	if err != nil {
		return nil, err
	}
	return &mirrorWriter{sink: s, slug: slug, inner: w}, nil
}

// HasOutput delegates to the wrapped sink.
func (s *MirrorSink) HasOutput(slug string) (bool, error) {
	return s.inner.HasOutput(slug)
}

func (s *MirrorSink) upload(slug string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), s.window)
	defer cancel()
	digest := sha256.Digest(data)
	uri, err := s.store.PutObject(ctx, path.Join(s.prefix, slug+".jsonl"), mirrorContentType, bytes.NewReader(data))
	if err != nil {
		s.logger.Warn("mirror upload failed",
			zap.String("category", slug),
			zap.String("sha256", digest),
			zap.Int("bytes", len(data)),
			zap.Error(err))
		return
	}
	s.logger.Debug("output unit mirrored",
		zap.String("category", slug),
		zap.String("uri", uri),
		zap.String("sha256", digest),
		zap.Int("bytes", len(data)))
}

type mirrorWriter struct {
	sink   *MirrorSink
	slug   string
	inner  Writer
	buf    bytes.Buffer
	closed bool
}

func (w *mirrorWriter) Write(rec catalog.ProductRecord) error {
	if err := w.inner.Write(rec); err != nil {
		return err
	}
	enc := json.NewEncoder(&w.buf)
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("buffering mirror record %s: %w", rec.Identifier, err)
	}
	return nil
}

func (w *mirrorWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.inner.Close(); err != nil {
		return err
	}
	w.sink.upload(w.slug, w.buf.Bytes())
	return nil
}
