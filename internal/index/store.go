package index

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/choislab/hanisearch/internal/logging"
)

var indexLog = logging.ForComponent(logging.CompIndex)

// BlobLoader fetches a document's persisted index blob from wherever the
// document came from. A (nil, nil) return means the document has no
// persisted index.
type BlobLoader interface {
	LoadIndexBlob(ctx context.Context, docID string) (io.ReadCloser, error)
}

// Store caches built and loaded indexes per document id.
//
// Writes are whole-index replacements: last write wins, no merging. The
// cache is additive and idempotent, so a stale async load completing after
// a newer query is harmless.
type Store struct {
	mu      sync.RWMutex
	indexes map[string]Index
	loader  BlobLoader
}

// NewStore returns a Store that lazily fetches persisted blobs via loader.
// loader may be nil for a purely in-memory store (tests, local-only use).
func NewStore(loader BlobLoader) *Store {
	return &Store{
		indexes: make(map[string]Index),
		loader:  loader,
	}
}

// Get returns the cached index for a document, if any.
func (s *Store) Get(docID string) (Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ix, ok := s.indexes[docID]
	return ix, ok
}

// Put replaces the document's index.
func (s *Store) Put(docID string, ix Index) {
	s.mu.Lock()
	s.indexes[docID] = ix
	s.mu.Unlock()
}

// Drop removes the document's index from the cache.
func (s *Store) Drop(docID string) {
	s.mu.Lock()
	delete(s.indexes, docID)
	s.mu.Unlock()
}

// LoadFromSource returns the cached index or fetches and parses the
// persisted blob. The second return is false when the document has no
// persisted index.
func (s *Store) LoadFromSource(ctx context.Context, docID string) (Index, bool, error) {
	if ix, ok := s.Get(docID); ok {
		return ix, true, nil
	}
	if s.loader == nil {
		return nil, false, nil
	}

	rc, err := s.loader.LoadIndexBlob(ctx, docID)
	if err != nil {
		return nil, false, err
	}
	if rc == nil {
		return nil, false, nil
	}
	defer rc.Close()

	ix, err := Parse(rc)
	if err != nil {
		return nil, false, err
	}

	s.Put(docID, ix)
	indexLog.Debug("index_loaded",
		slog.String("doc_id", docID),
		slog.Int("tokens", ix.TokenCount()))
	return ix, true, nil
}
