package inbox

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choislab/hanisearch/internal/docs"
	"github.com/choislab/hanisearch/internal/extract"
	"github.com/choislab/hanisearch/internal/index"
	"github.com/choislab/hanisearch/internal/store"
	"github.com/choislab/hanisearch/internal/token"
)

func newTestWatcher(t *testing.T) (*Watcher, *docs.Adapter, string) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	registry := extract.NewRegistry()
	adapter := docs.NewAdapter(st, registry, index.NewBuilder(token.New(3)))
	dir := t.TempDir()
	w, err := New(dir, 20*time.Millisecond, adapter, registry)
	require.NoError(t, err)
	t.Cleanup(w.Stop)
	return w, adapter, dir
}

func docNames(a *docs.Adapter) []string {
	var names []string
	for _, d := range a.List() {
		names = append(names, d.Name)
	}
	return names
}

func TestSweepImportsExistingFiles(t *testing.T) {
	w, adapter, dir := newTestWatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.txt"), []byte("시호"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.xlsx"), []byte("x"), 0600))

	w.Start()

	assert.Eventually(t, func() bool {
		names := docNames(adapter)
		return len(names) == 1 && names[0] == "old.txt"
	}, 2*time.Second, 10*time.Millisecond)

	// Imported file moved aside, unsupported one left in place.
	_, err := os.Stat(filepath.Join(dir, "processed", "old.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "skip.xlsx"))
	assert.NoError(t, err)
}

func TestDroppedFileIsImported(t *testing.T) {
	w, adapter, dir := newTestWatcher(t)
	w.Start()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("백호 처방"), 0600))

	assert.Eventually(t, func() bool {
		names := docNames(adapter)
		return len(names) == 1 && names[0] == "new.txt"
	}, 2*time.Second, 10*time.Millisecond)

	_, err := os.Stat(filepath.Join(dir, "new.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestRapidWritesImportOnce(t *testing.T) {
	w, adapter, dir := newTestWatcher(t)
	w.Start()

	path := filepath.Join(dir, "slow.txt")
	f, err := os.Create(path)
	require.NoError(t, err)
	for range 5 {
		_, err = f.WriteString("시호 ")
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	assert.Eventually(t, func() bool {
		return len(adapter.List()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, adapter.List(), 1)
}
