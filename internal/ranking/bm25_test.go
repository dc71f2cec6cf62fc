package ranking

import (
	"context"
	"math"
	"testing"

	"github.com/kitchenframe/recipesearch/internal/corpus"
	"github.com/kitchenframe/recipesearch/internal/index"
)

func buildIndex(t *testing.T, docs []corpus.Document) *index.Index {
	t.Helper()
	idx, err := index.Build(context.Background(), docs, "fp", 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return idx
}

func TestIDFNonNegative(t *testing.T) {
	for n := 0; n <= 20; n++ {
		for df := 0; df <= n; df++ {
			if got := IDF(n, df); got < 0 {
				t.Errorf("IDF(%d, %d) = %g, want >= 0", n, df, got)
			}
		}
	}
}

func TestIDFRareTermsScoreHigher(t *testing.T) {
	rare := IDF(1000, 1)
	common := IDF(1000, 900)
	if rare <= common {
		t.Errorf("IDF(rare) = %g not greater than IDF(common) = %g", rare, common)
	}
}

// BM25 saturates but never decreases as term frequency grows.
func TestScoreMonotonicInTermFrequency(t *testing.T) {
	p := DefaultParams()
	idf := IDF(100, 10)
	prev := 0.0
	for tf := 1; tf <= 50; tf++ {
		got := termScore(idf, tf, 20, 20, p)
		if got < prev {
			t.Fatalf("score decreased at tf=%d: %g < %g", tf, got, prev)
		}
		prev = got
	}
}

func TestScoreKnownValue(t *testing.T) {
	// Single doc, single term, doc length equals average: the length
	// normalisation factor collapses to 1.
	docs := []corpus.Document{{ID: 1, Text: "chicken chicken rice"}}
	idx := buildIndex(t, docs)
	p := DefaultParams()

	tf := 2.0
	idf := math.Log((1-1+0.5)/(1+0.5) + 1)
	want := idf * (tf * (p.K1 + 1)) / (tf + p.K1)

	got := Score([]string{"chicken"}, 1, idx, p)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Score = %g, want %g", got, want)
	}
}

func TestScoreAbsentTokensContributeNothing(t *testing.T) {
	docs := []corpus.Document{
		{ID: 1, Text: "chicken soup with rice"},
		{ID: 2, Text: "vegetable soup"},
	}
	idx := buildIndex(t, docs)
	p := DefaultParams()

	base := Score([]string{"chicken"}, 1, idx, p)
	withUnknown := Score([]string{"chicken", "pineapple"}, 1, idx, p)
	if base != withUnknown {
		t.Errorf("unknown token changed score: %g vs %g", base, withUnknown)
	}
	if got := Score([]string{"chicken"}, 2, idx, p); got != 0 {
		t.Errorf("document without the term scored %g, want 0", got)
	}
}

func TestScoreDuplicateQueryTokensCountOnce(t *testing.T) {
	docs := []corpus.Document{{ID: 1, Text: "chicken soup"}}
	idx := buildIndex(t, docs)
	p := DefaultParams()
	single := Score([]string{"chicken"}, 1, idx, p)
	repeated := Score([]string{"chicken", "chicken", "chicken"}, 1, idx, p)
	if single != repeated {
		t.Errorf("repeated query token changed score: %g vs %g", single, repeated)
	}
}

func TestScoreIsPure(t *testing.T) {
	docs := []corpus.Document{
		{ID: 1, Text: "chicken soup with rice"},
		{ID: 2, Text: "chicken curry with rice"},
	}
	idx := buildIndex(t, docs)
	p := DefaultParams()
	query := []string{"chicken", "soup"}
	first := Score(query, 1, idx, p)
	for i := 0; i < 100; i++ {
		if got := Score(query, 1, idx, p); got != first {
			t.Fatalf("score not deterministic: %g vs %g", got, first)
		}
	}
}

func TestRankOrdersByScoreThenDocID(t *testing.T) {
	docs := []corpus.Document{
		{ID: 1, Text: "chicken soup with rice"},
		{ID: 2, Text: "chicken curry with rice"},
		{ID: 3, Text: "vegetable soup"},
	}
	idx := buildIndex(t, docs)
	p := DefaultParams()

	postingsPerTerm := map[string]index.PostingList{
		"chicken": idx.TermPostings("chicken"),
		"soup":    idx.TermPostings("soup"),
	}
	ranked := Rank(postingsPerTerm, idx, p, 0)
	if len(ranked) != 3 {
		t.Fatalf("got %d ranked docs, want 3", len(ranked))
	}
	// Doc 1 matches both terms and must come first.
	if ranked[0].DocID != 1 {
		t.Errorf("top document = %d, want 1", ranked[0].DocID)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Errorf("ranking not descending at position %d", i)
		}
		if ranked[i].Score == ranked[i-1].Score && ranked[i].DocID < ranked[i-1].DocID {
			t.Errorf("tie at position %d not broken by ascending doc id", i)
		}
	}
}

func TestRankTieBreak(t *testing.T) {
	// Identical documents score identically; order must be ascending id.
	docs := []corpus.Document{
		{ID: 7, Text: "chicken rice"},
		{ID: 3, Text: "chicken rice"},
		{ID: 5, Text: "chicken rice"},
	}
	idx := buildIndex(t, docs)
	postingsPerTerm := map[string]index.PostingList{"chicken": idx.TermPostings("chicken")}
	ranked := Rank(postingsPerTerm, idx, DefaultParams(), 0)
	want := []int64{3, 5, 7}
	for i, sd := range ranked {
		if sd.DocID != want[i] {
			t.Fatalf("tie-break order = %v, want %v", ranked, want)
		}
	}
}

func TestRankLimit(t *testing.T) {
	docs := []corpus.Document{
		{ID: 1, Text: "chicken"},
		{ID: 2, Text: "chicken"},
		{ID: 3, Text: "chicken"},
	}
	idx := buildIndex(t, docs)
	postingsPerTerm := map[string]index.PostingList{"chicken": idx.TermPostings("chicken")}
	if got := Rank(postingsPerTerm, idx, DefaultParams(), 2); len(got) != 2 {
		t.Errorf("limit 2 returned %d results", len(got))
	}
	if got := Rank(postingsPerTerm, idx, DefaultParams(), 10); len(got) != 3 {
		t.Errorf("limit beyond candidates returned %d results, want 3", len(got))
	}
}
