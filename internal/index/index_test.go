package index

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/choislab/hanisearch/internal/token"
)

func buildTest(t *testing.T, lines []string) Index {
	t.Helper()
	ix, err := NewBuilder(token.New(3)).Build(context.Background(), lines, BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return ix
}

func TestBuildMapsTokensToLines(t *testing.T) {
	ix := buildTest(t, []string{"시호 처방", "백호 처방 기록", "무관"})

	if got := ix.Lines("시호"); len(got) != 1 || got[0] != 0 {
		t.Errorf("시호: got %v, want [0]", got)
	}
	if got := ix.Lines("처방"); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("처방: got %v, want [0 1]", got)
	}
	if got := ix.Lines("없음"); got != nil {
		t.Errorf("absent token: got %v, want nil", got)
	}
}

// Every posting must point at a valid line.
func TestBuildLineNumbersValid(t *testing.T) {
	lines := []string{"시호탕 처방", "백호탕", "시호 재론", "기록 없음"}
	ix := buildTest(t, lines)
	for tok, posting := range ix {
		for _, n := range posting {
			if n < 0 || n >= len(lines) {
				t.Fatalf("token %q: line %d out of range", tok, n)
			}
			if !strings.Contains(lines[n], tok) {
				t.Errorf("token %q: line %d (%q) does not contain it", tok, n, lines[n])
			}
		}
	}
}

// Tokens longer than the cap are never indexed: a 4-char compound is only
// findable through the raw-scan path. Preserved behavior, not a bug.
func TestBuildCapExcludesLongCompounds(t *testing.T) {
	ix := buildTest(t, []string{"시호백호탕 처방"})
	if got := ix.Lines("시호백호"); got != nil {
		t.Errorf("4-char token should not be indexed, got %v", got)
	}
	if got := ix.Lines("시호백"); len(got) != 1 {
		t.Errorf("3-char token should be indexed, got %v", got)
	}
}

func TestBuildProgressAndCancel(t *testing.T) {
	lines := make([]string, 5000)
	for i := range lines {
		lines[i] = "시호 처방 기록"
	}

	var reports []int
	_, err := NewBuilder(token.New(3)).Build(context.Background(), lines, BuildOptions{
		Progress: func(pct int) { reports = append(reports, pct) },
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(reports) == 0 {
		t.Fatal("no progress reports")
	}
	for i := 1; i < len(reports); i++ {
		if reports[i] < reports[i-1] {
			t.Errorf("progress went backwards: %v", reports)
		}
	}
	if reports[len(reports)-1] != 100 {
		t.Errorf("final progress %d, want 100", reports[len(reports)-1])
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewBuilder(token.New(3)).Build(ctx, lines, BuildOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled build: got %v, want context.Canceled", err)
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	ix := buildTest(t, []string{"시호 처방", "백호 처방 기록", "시호 재론"})

	var buf bytes.Buffer
	if err := ix.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	back, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if back.TokenCount() != ix.TokenCount() {
		t.Fatalf("token count: got %d, want %d", back.TokenCount(), ix.TokenCount())
	}
	for tok, want := range ix {
		got := back.Lines(tok)
		if len(got) != len(want) {
			t.Fatalf("token %q: got %v, want %v", tok, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("token %q: got %v, want %v", tok, got, want)
			}
		}
	}
}

func TestEncodeLimited(t *testing.T) {
	ix := buildTest(t, []string{"시호 처방 기록 백호 재론"})

	var buf bytes.Buffer
	if err := ix.EncodeLimited(&buf, 10); !errors.Is(err, ErrSizeLimit) {
		t.Errorf("tiny limit: got %v, want ErrSizeLimit", err)
	}

	buf.Reset()
	if err := ix.EncodeLimited(&buf, 1<<20); err != nil {
		t.Errorf("generous limit: %v", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse(strings.NewReader("not json")); err == nil {
		t.Error("expected parse error")
	}
}

type stubLoader struct {
	blobs map[string]string
	calls int
	fail  error
}

func (l *stubLoader) LoadIndexBlob(_ context.Context, docID string) (io.ReadCloser, error) {
	l.calls++
	if l.fail != nil {
		return nil, l.fail
	}
	blob, ok := l.blobs[docID]
	if !ok {
		return nil, nil
	}
	return io.NopCloser(strings.NewReader(blob)), nil
}

func TestStoreLoadFromSourceCaches(t *testing.T) {
	loader := &stubLoader{blobs: map[string]string{
		"doc1": `{"시호":[0,2],"백호":[1]}`,
	}}
	store := NewStore(loader)

	ix, ok, err := store.LoadFromSource(context.Background(), "doc1")
	if err != nil || !ok {
		t.Fatalf("LoadFromSource: ok=%v err=%v", ok, err)
	}
	if got := ix.Lines("시호"); len(got) != 2 {
		t.Errorf("시호: got %v", got)
	}

	// Second load must hit the cache, not the loader.
	if _, ok, _ = store.LoadFromSource(context.Background(), "doc1"); !ok {
		t.Fatal("cached load failed")
	}
	if loader.calls != 1 {
		t.Errorf("loader called %d times, want 1", loader.calls)
	}

	// Absent document: no error, just absent.
	if _, ok, err := store.LoadFromSource(context.Background(), "missing"); ok || err != nil {
		t.Errorf("missing doc: ok=%v err=%v", ok, err)
	}
}

func TestStorePutReplaces(t *testing.T) {
	store := NewStore(nil)
	store.Put("d", Index{"시": []int{0}})
	store.Put("d", Index{"호": []int{1}})

	ix, ok := store.Get("d")
	if !ok {
		t.Fatal("Get after Put failed")
	}
	if ix.Lines("시") != nil {
		t.Error("old index survived replacement")
	}
	if got := ix.Lines("호"); len(got) != 1 || got[0] != 1 {
		t.Errorf("호: got %v", got)
	}

	store.Drop("d")
	if _, ok := store.Get("d"); ok {
		t.Error("Get after Drop should miss")
	}
}
