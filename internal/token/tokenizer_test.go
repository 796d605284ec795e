package token

import (
	"sort"
	"testing"
)

func sortedTokens(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for tok := range set {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

func TestRunsSplitOnSeparators(t *testing.T) {
	runs := Runs("시호 처방, 백호 기록 123 abc")
	want := []string{"시호", "처방", "백호", "기록"}
	if len(runs) != len(want) {
		t.Fatalf("Runs: got %v, want %v", runs, want)
	}
	for i := range want {
		if runs[i] != want[i] {
			t.Errorf("run %d: got %q, want %q", i, runs[i], want[i])
		}
	}
}

func TestRunsSplitOnScriptBoundary(t *testing.T) {
	// Hangul immediately followed by Hanja: two runs, no cross-script grams.
	runs := Runs("시호白虎")
	if len(runs) != 2 || runs[0] != "시호" || runs[1] != "白虎" {
		t.Fatalf("Runs: got %v, want [시호 白虎]", runs)
	}
}

func TestRunsEmptyForLatinOnly(t *testing.T) {
	if runs := Runs("hello world 42!"); len(runs) != 0 {
		t.Errorf("expected no runs, got %v", runs)
	}
}

func TestTokenizeGeneratesBoundedNGrams(t *testing.T) {
	tk := New(3)
	got := sortedTokens(tk.Tokenize("시호탕"))
	want := []string{"시", "시호", "시호탕", "호", "호탕", "탕"}
	if len(got) != len(want) {
		t.Fatalf("tokens: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

// For any run of length L the token count must be
// sum over n=1..min(L,3) of (L-n+1), and no token may exceed the cap.
func TestTokenizeCountBound(t *testing.T) {
	tk := New(3)
	runs := []string{"시", "시호", "시호탕", "시호백호", "柴胡白虎湯加減"}
	for _, run := range runs {
		set := tk.Tokenize(run)
		L := len([]rune(run))
		want := 0
		maxN := L
		if maxN > 3 {
			maxN = 3
		}
		for n := 1; n <= maxN; n++ {
			want += L - n + 1
		}
		if len(set) != want {
			t.Errorf("run %q: got %d tokens, want %d", run, len(set), want)
		}
		for tok := range set {
			if l := len([]rune(tok)); l > 3 {
				t.Errorf("run %q: token %q exceeds cap (len %d)", run, tok, l)
			}
		}
	}
}

func TestTokenizeDuplicatesCollapse(t *testing.T) {
	tk := New(3)
	// "시시시" generates "시" three times and "시시" twice; the set keeps one each.
	got := sortedTokens(tk.Tokenize("시시시"))
	want := []string{"시", "시시", "시시시"}
	if len(got) != len(want) {
		t.Fatalf("tokens: got %v, want %v", got, want)
	}
}

func TestTokenizeConfigurableCap(t *testing.T) {
	tk := New(2)
	for tok := range tk.Tokenize("시호백호탕") {
		if l := len([]rune(tok)); l > 2 {
			t.Errorf("token %q exceeds cap 2", tok)
		}
	}
	if New(0).MaxLen() != DefaultMaxTokenLen {
		t.Errorf("zero cap should fall back to default")
	}
}
