// Package docs manages the document working set: importing files into
// the store, lazy line extraction, selection state, and index builds.
package docs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/choislab/hanisearch/internal/extract"
	"github.com/choislab/hanisearch/internal/index"
	"github.com/choislab/hanisearch/internal/logging"
	"github.com/choislab/hanisearch/internal/store"
)

var docsLog = logging.ForComponent(logging.CompDocs)

// PreloadConcurrency bounds the extraction fan-out during Preload.
const PreloadConcurrency = 4

// DefaultMaxIndexBytes caps the serialized index written back to the
// store. Builds past the cap fail with a capacity BuildError.
const DefaultMaxIndexBytes = 8 << 20

// Origin says where a document's bytes come from.
const (
	OriginStore = "store"
	OriginLocal = "local"
)

// Document is one entry of the working set.
type Document struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Origin   string `json:"origin"`
	Path     string `json:"path,omitempty"`
	Indexed  bool   `json:"indexed"`
	Selected bool   `json:"selected"`

	mu     sync.Mutex
	lines  []string
	loaded bool
}

// Adapter owns the working set. Safe for concurrent use.
type Adapter struct {
	store    *store.Store
	registry *extract.Registry
	builder  *index.Builder
	indexes  *index.Store
	maxBytes int64

	mu    sync.Mutex
	docs  map[string]*Document
	order []string
}

func NewAdapter(st *store.Store, registry *extract.Registry, builder *index.Builder) *Adapter {
	return &Adapter{
		store:    st,
		registry: registry,
		builder:  builder,
		maxBytes: DefaultMaxIndexBytes,
		docs:     make(map[string]*Document),
	}
}

// SetIndexCache hands the adapter the engine's index cache so builds
// and drops keep it in step with the persisted blobs. The adapter is
// usually that cache's BlobLoader, so wiring happens after both exist.
func (a *Adapter) SetIndexCache(ix *index.Store) {
	a.indexes = ix
}

// SetMaxIndexBytes overrides the serialized index cap.
func (a *Adapter) SetMaxIndexBytes(n int64) {
	if n > 0 {
		a.maxBytes = n
	}
}

// Refresh reloads the working set from the store. Already-known
// documents keep their extracted lines and selection; indexed documents
// seen for the first time start selected.
func (a *Adapter) Refresh() error {
	records, err := a.store.List(store.CollDocuments)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.ID] = struct{}{}
		if d, ok := a.docs[r.ID]; ok {
			d.Name = r.Name
			d.Indexed = r.IsIndexed
			continue
		}
		a.docs[r.ID] = &Document{
			ID:       r.ID,
			Name:     r.Name,
			Origin:   OriginStore,
			Indexed:  r.IsIndexed,
			Selected: r.IsIndexed,
		}
		a.order = append(a.order, r.ID)
	}

	for id, d := range a.docs {
		if d.Origin != OriginStore {
			continue
		}
		if _, ok := seen[id]; !ok {
			delete(a.docs, id)
		}
	}
	a.compactOrderLocked()
	return nil
}

func (a *Adapter) compactOrderLocked() {
	kept := a.order[:0]
	for _, id := range a.order {
		if _, ok := a.docs[id]; ok {
			kept = append(kept, id)
		}
	}
	a.order = kept
}

// List returns the working set in stable order.
func (a *Adapter) List() []*Document {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Document, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.docs[id])
	}
	return out
}

// Get returns one document by id.
func (a *Adapter) Get(id string) (*Document, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.docs[id]
	return d, ok
}

// Import stores a new document from a reader and adds it to the set.
func (a *Adapter) Import(name string, r io.Reader) (*Document, error) {
	if !a.registry.Supported(name) {
		return nil, &extract.Error{Name: name, Err: errors.New("unsupported file type")}
	}

	rec, err := a.store.Create(store.CollDocuments, "", name, nil)
	if err != nil {
		return nil, err
	}
	if _, err := a.store.SaveFile(store.CollDocuments, rec.ID, name, r); err != nil {
		_ = a.store.Delete(store.CollDocuments, rec.ID)
		return nil, err
	}

	d := &Document{ID: rec.ID, Name: name, Origin: OriginStore}
	a.mu.Lock()
	a.docs[d.ID] = d
	a.order = append(a.order, d.ID)
	a.mu.Unlock()

	docsLog.Info("document imported", "id", d.ID, "name", name)
	return d, nil
}

// AddLocal registers a file on disk without copying it into the store.
func (a *Adapter) AddLocal(path string) (*Document, error) {
	name := filepath.Base(path)
	if !a.registry.Supported(name) {
		return nil, &extract.Error{Name: name, Err: errors.New("unsupported file type")}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &extract.Error{Name: name, Err: err}
	}

	d := &Document{ID: store.NewID(), Name: name, Origin: OriginLocal, Path: path}
	a.mu.Lock()
	a.docs[d.ID] = d
	a.order = append(a.order, d.ID)
	a.mu.Unlock()
	return d, nil
}

// Remove drops a document from the set, and from the store when it
// lives there.
func (a *Adapter) Remove(id string) error {
	a.mu.Lock()
	d, ok := a.docs[id]
	if ok {
		delete(a.docs, id)
		a.compactOrderLocked()
	}
	a.mu.Unlock()
	if !ok {
		return store.ErrNotFound
	}
	if a.indexes != nil {
		a.indexes.Drop(id)
	}
	if d.Origin == OriginStore {
		return a.store.Delete(store.CollDocuments, id)
	}
	return nil
}

// Select flips a document's selection.
func (a *Adapter) Select(id string, selected bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Selected = selected
	return nil
}

// Selected returns the selected subset in stable order.
func (a *Adapter) Selected() []*Document {
	var out []*Document
	for _, d := range a.List() {
		if d.Selected {
			out = append(out, d)
		}
	}
	return out
}

// Lines returns a document's extracted lines, extracting on first use.
// Concurrent calls for the same document extract once.
func (a *Adapter) Lines(ctx context.Context, id string) ([]string, error) {
	a.mu.Lock()
	d, ok := a.docs[id]
	a.mu.Unlock()
	if !ok {
		return nil, store.ErrNotFound
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return d.lines, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := a.readBytes(d)
	if err != nil {
		return nil, err
	}
	lines, err := a.registry.Lines(d.Name, data)
	if err != nil {
		return nil, err
	}
	d.lines = lines
	d.loaded = true
	return lines, nil
}

func (a *Adapter) readBytes(d *Document) ([]byte, error) {
	if d.Origin == OriginLocal {
		data, err := os.ReadFile(d.Path)
		if err != nil {
			return nil, &extract.Error{Name: d.Name, Err: err}
		}
		return data, nil
	}
	rc, err := a.store.OpenFile(store.CollDocuments, d.ID)
	if err != nil {
		return nil, &extract.Error{Name: d.Name, Err: err}
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Preload warms several documents concurrently: extracted lines for
// every id, plus the persisted index blob for documents flagged
// indexed. One failing document does not stop the others; per-document
// errors come back in the map.
func (a *Adapter) Preload(ctx context.Context, ids []string) map[string]error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(PreloadConcurrency)

	var mu sync.Mutex
	failures := make(map[string]error)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := a.Lines(ctx, id); err != nil {
				mu.Lock()
				failures[id] = err
				mu.Unlock()
				return nil
			}
			d, ok := a.Get(id)
			if !ok || !d.Indexed || a.indexes == nil {
				return nil
			}
			if _, _, err := a.indexes.LoadFromSource(ctx, id); err != nil {
				// A bad blob is not fatal, searches raw-scan instead.
				mu.Lock()
				failures[id] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		keys := make([]string, 0, len(failures))
		for id := range failures {
			keys = append(keys, id)
		}
		sort.Strings(keys)
		docsLog.Warn("preload finished with failures", "failed", keys)
	}
	return failures
}

// BuildIndex extracts, indexes, and persists one document's inverted
// index. A serialized index over the size cap fails with a capacity
// BuildError and leaves the document unindexed.
func (a *Adapter) BuildIndex(ctx context.Context, id string, opts index.BuildOptions) error {
	a.mu.Lock()
	d, ok := a.docs[id]
	a.mu.Unlock()
	if !ok {
		return store.ErrNotFound
	}
	if d.Origin != OriginStore {
		return fmt.Errorf("docs: local document %s cannot persist an index", id)
	}

	lines, err := a.Lines(ctx, id)
	if err != nil {
		return &index.BuildError{DocID: id, Reason: index.ReasonExtraction, Err: err}
	}

	ix, err := a.builder.Build(ctx, lines, opts)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := ix.EncodeLimited(&buf, a.maxBytes); err != nil {
		if errors.Is(err, index.ErrSizeLimit) {
			return &index.BuildError{DocID: id, Reason: index.ReasonCapacity, Err: err}
		}
		return err
	}
	if err := a.store.SaveIndexBlob(id, &buf); err != nil {
		return err
	}

	a.mu.Lock()
	d.Indexed = true
	a.mu.Unlock()
	if a.indexes != nil {
		// Cache the freshly built index so searches skip re-parsing the
		// blob just written.
		a.indexes.Put(id, ix)
	}
	docsLog.Info("index built", "id", id, "tokens", ix.TokenCount(), "bytes", buf.Len())
	return nil
}

// DropIndex removes a document's persisted index blob and evicts the
// cached copy, so the next search falls back to the raw scan.
func (a *Adapter) DropIndex(id string) error {
	a.mu.Lock()
	d, ok := a.docs[id]
	a.mu.Unlock()
	if !ok {
		return store.ErrNotFound
	}
	if d.Origin == OriginStore {
		if err := a.store.DropIndexBlob(id); err != nil {
			return err
		}
	}
	a.mu.Lock()
	d.Indexed = false
	a.mu.Unlock()
	if a.indexes != nil {
		a.indexes.Drop(id)
	}
	docsLog.Info("index dropped", "id", id)
	return nil
}

// LoadIndexBlob implements index.BlobLoader. Local documents and
// unknown ids report no blob rather than an error, so searches fall
// back to the raw scan.
func (a *Adapter) LoadIndexBlob(_ context.Context, docID string) (io.ReadCloser, error) {
	a.mu.Lock()
	d, ok := a.docs[docID]
	a.mu.Unlock()
	if !ok || d.Origin != OriginStore {
		return nil, nil
	}
	rc, err := a.store.OpenIndexBlob(docID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return rc, err
}
