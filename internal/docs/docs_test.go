package docs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choislab/hanisearch/internal/extract"
	"github.com/choislab/hanisearch/internal/index"
	"github.com/choislab/hanisearch/internal/store"
	"github.com/choislab/hanisearch/internal/token"
)

func newTestAdapter(t *testing.T) (*Adapter, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewAdapter(st, extract.NewRegistry(), index.NewBuilder(token.New(3))), st
}

func TestImportAndLines(t *testing.T) {
	a, _ := newTestAdapter(t)
	d, err := a.Import("han.txt", strings.NewReader("시호 처방\n백호 처방 기록\n무관"))
	require.NoError(t, err)

	lines, err := a.Lines(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"시호 처방", "백호 처방 기록", "무관"}, lines)

	// Second call serves the cached extraction.
	again, err := a.Lines(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, lines, again)
}

func TestImportRejectsUnsupported(t *testing.T) {
	a, _ := newTestAdapter(t)
	_, err := a.Import("sheet.xlsx", strings.NewReader("x"))
	var xerr *extract.Error
	require.ErrorAs(t, err, &xerr)
	assert.Empty(t, a.List())
}

func TestAddLocal(t *testing.T) {
	a, _ := newTestAdapter(t)
	path := filepath.Join(t.TempDir(), "local.txt")
	require.NoError(t, os.WriteFile(path, []byte("시호"), 0600))

	d, err := a.AddLocal(path)
	require.NoError(t, err)
	assert.Equal(t, OriginLocal, d.Origin)

	lines, err := a.Lines(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"시호"}, lines)

	_, err = a.AddLocal(filepath.Join(t.TempDir(), "absent.txt"))
	assert.Error(t, err)
}

func TestRefreshAutoSelectsIndexed(t *testing.T) {
	a, st := newTestAdapter(t)
	d, err := a.Import("han.txt", strings.NewReader("시호 처방"))
	require.NoError(t, err)
	_, err = a.Import("other.txt", strings.NewReader("백호"))
	require.NoError(t, err)

	require.NoError(t, a.BuildIndex(context.Background(), d.ID, index.BuildOptions{}))

	// A fresh adapter over the same store selects only indexed docs.
	b := NewAdapter(st, extract.NewRegistry(), index.NewBuilder(token.New(3)))
	require.NoError(t, b.Refresh())

	selected := b.Selected()
	require.Len(t, selected, 1)
	assert.Equal(t, d.ID, selected[0].ID)
	assert.True(t, selected[0].Indexed)
}

func TestSelectAndRemove(t *testing.T) {
	a, st := newTestAdapter(t)
	d, err := a.Import("han.txt", strings.NewReader("시호"))
	require.NoError(t, err)

	require.NoError(t, a.Select(d.ID, true))
	assert.Len(t, a.Selected(), 1)
	require.NoError(t, a.Select(d.ID, false))
	assert.Empty(t, a.Selected())

	require.NoError(t, a.Remove(d.ID))
	assert.Empty(t, a.List())
	_, err = st.Get(store.CollDocuments, d.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, a.Remove(d.ID), store.ErrNotFound)
}

func TestPreloadIsolatesFailures(t *testing.T) {
	a, st := newTestAdapter(t)
	good, err := a.Import("good.txt", strings.NewReader("시호 처방"))
	require.NoError(t, err)
	bad, err := a.Import("bad.docx", strings.NewReader("not a zip"))
	require.NoError(t, err)
	_ = st

	failures := a.Preload(context.Background(), []string{good.ID, bad.ID})
	assert.NotContains(t, failures, good.ID)
	assert.Contains(t, failures, bad.ID)

	lines, err := a.Lines(context.Background(), good.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, lines)
}

func TestBuildIndexPersistsBlob(t *testing.T) {
	a, _ := newTestAdapter(t)
	d, err := a.Import("han.txt", strings.NewReader("시호 처방\n백호 처방 기록"))
	require.NoError(t, err)

	var last int
	err = a.BuildIndex(context.Background(), d.ID, index.BuildOptions{
		Progress: func(pct int) { last = pct },
	})
	require.NoError(t, err)
	assert.Equal(t, 100, last)

	rc, err := a.LoadIndexBlob(context.Background(), d.ID)
	require.NoError(t, err)
	require.NotNil(t, rc)
	defer rc.Close()
	ix, err := index.Parse(rc)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, ix.Lines("처방"))
}

func newCachedAdapter(t *testing.T) (*Adapter, *index.Store, *store.Store) {
	t.Helper()
	a, st := newTestAdapter(t)
	cache := index.NewStore(a)
	a.SetIndexCache(cache)
	return a, cache, st
}

func TestBuildIndexPrimesCache(t *testing.T) {
	a, cache, _ := newCachedAdapter(t)
	d, err := a.Import("han.txt", strings.NewReader("시호 처방"))
	require.NoError(t, err)

	require.NoError(t, a.BuildIndex(context.Background(), d.ID, index.BuildOptions{}))

	ix, ok := cache.Get(d.ID)
	require.True(t, ok)
	assert.Equal(t, []int{0}, ix.Lines("시호"))
}

func TestDropIndexEvictsCache(t *testing.T) {
	a, cache, _ := newCachedAdapter(t)
	d, err := a.Import("han.txt", strings.NewReader("시호 처방"))
	require.NoError(t, err)
	require.NoError(t, a.BuildIndex(context.Background(), d.ID, index.BuildOptions{}))

	require.NoError(t, a.DropIndex(d.ID))

	_, ok := cache.Get(d.ID)
	assert.False(t, ok)
	got, ok := a.Get(d.ID)
	require.True(t, ok)
	assert.False(t, got.Indexed)

	// The persisted blob is gone too, so a source load reports absent.
	rc, err := a.LoadIndexBlob(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Nil(t, rc)

	assert.ErrorIs(t, a.DropIndex("unknown"), store.ErrNotFound)
}

func TestPreloadWarmsIndexBlobs(t *testing.T) {
	a, _, st := newCachedAdapter(t)
	d, err := a.Import("han.txt", strings.NewReader("시호 처방"))
	require.NoError(t, err)
	require.NoError(t, a.BuildIndex(context.Background(), d.ID, index.BuildOptions{}))

	// Fresh adapter over the same store, as after a restart.
	b := NewAdapter(st, extract.NewRegistry(), index.NewBuilder(token.New(3)))
	cache := index.NewStore(b)
	b.SetIndexCache(cache)
	require.NoError(t, b.Refresh())

	failures := b.Preload(context.Background(), []string{d.ID})
	assert.Empty(t, failures)

	ix, ok := cache.Get(d.ID)
	require.True(t, ok)
	assert.Equal(t, []int{0}, ix.Lines("처방"))
}

func TestBuildIndexCapacityError(t *testing.T) {
	a, _ := newTestAdapter(t)
	a.SetMaxIndexBytes(16)
	d, err := a.Import("han.txt", strings.NewReader("시호 처방\n백호 처방 기록"))
	require.NoError(t, err)

	err = a.BuildIndex(context.Background(), d.ID, index.BuildOptions{})
	var berr *index.BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, index.ReasonCapacity, berr.Reason)

	got, ok := a.Get(d.ID)
	require.True(t, ok)
	assert.False(t, got.Indexed)
}

func TestBuildIndexExtractionError(t *testing.T) {
	a, _ := newTestAdapter(t)
	d, err := a.Import("bad.docx", strings.NewReader("not a zip"))
	require.NoError(t, err)

	err = a.BuildIndex(context.Background(), d.ID, index.BuildOptions{})
	var berr *index.BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, index.ReasonExtraction, berr.Reason)
}

func TestLoadIndexBlobAbsent(t *testing.T) {
	a, _ := newTestAdapter(t)
	rc, err := a.LoadIndexBlob(context.Background(), "unknown")
	assert.NoError(t, err)
	assert.Nil(t, rc)
}
