package index

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/kitchenframe/recipesearch/internal/corpus"
)

func testDocs() []corpus.Document {
	return []corpus.Document{
		{ID: 1, Text: "chicken soup with rice"},
		{ID: 2, Text: "chicken curry with rice"},
		{ID: 3, Text: "vegetable soup"},
	}
}

func TestBuild(t *testing.T) {
	idx, err := Build(context.Background(), testDocs(), "fp", 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if idx.Stats.DocCount != 3 {
		t.Errorf("DocCount = %d, want 3", idx.Stats.DocCount)
	}
	// 4 + 4 + 2 tokens.
	wantAvg := 10.0 / 3.0
	if math.Abs(idx.Stats.AvgDocLen-wantAvg) > 1e-12 {
		t.Errorf("AvgDocLen = %g, want %g", idx.Stats.AvgDocLen, wantAvg)
	}
	if idx.Fingerprint != "fp" {
		t.Errorf("Fingerprint = %q, want %q", idx.Fingerprint, "fp")
	}

	chicken := idx.TermPostings("chicken")
	if len(chicken) != 2 || chicken[0].DocID != 1 || chicken[1].DocID != 2 {
		t.Errorf("postings for chicken = %v, want docs 1 and 2", chicken)
	}
	if idx.DocFreq("soup") != 2 {
		t.Errorf("DocFreq(soup) = %d, want 2", idx.DocFreq("soup"))
	}
	if idx.DocFreq("pineapple") != 0 {
		t.Errorf("DocFreq(pineapple) = %d, want 0", idx.DocFreq("pineapple"))
	}
	if got := idx.DocLength(1); got != 4 {
		t.Errorf("DocLength(1) = %d, want 4", got)
	}
	if err := idx.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestBuildTermFrequency(t *testing.T) {
	docs := []corpus.Document{
		{ID: 10, Text: "rice rice rice beans"},
	}
	idx, err := Build(context.Background(), docs, "fp", 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	postings := idx.TermPostings("rice")
	if len(postings) != 1 || postings[0].TermFreq != 3 {
		t.Errorf("postings for rice = %v, want one posting with tf 3", postings)
	}
}

func TestBuildEmptyCorpus(t *testing.T) {
	idx, err := Build(context.Background(), nil, "fp", 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if idx.Stats.DocCount != 0 {
		t.Errorf("DocCount = %d, want 0", idx.Stats.DocCount)
	}
	if idx.Stats.AvgDocLen != 0 {
		t.Errorf("AvgDocLen = %g, want 0", idx.Stats.AvgDocLen)
	}
	if err := idx.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

// Rebuilding from an unchanged corpus must yield identical postings and
// statistics regardless of worker count.
func TestBuildIdempotentAcrossWorkerCounts(t *testing.T) {
	docs := make([]corpus.Document, 0, 50)
	texts := []string{
		"chicken soup with rice and herbs",
		"beef stew with potatoes",
		"vegetable curry with coconut milk",
		"pasta with tomato sauce and basil",
	}
	for i := 0; i < 50; i++ {
		docs = append(docs, corpus.Document{
			ID:   int64(i + 1),
			Text: texts[i%len(texts)],
		})
	}
	base, err := Build(context.Background(), docs, "fp", 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, workers := range []int{0, 2, 3, 8, 64} {
		idx, err := Build(context.Background(), docs, "fp", workers)
		if err != nil {
			t.Fatalf("Build with %d workers: %v", workers, err)
		}
		if !reflect.DeepEqual(base.Postings, idx.Postings) {
			t.Errorf("postings differ with %d workers", workers)
		}
		if !reflect.DeepEqual(base.DocLengths, idx.DocLengths) {
			t.Errorf("doc lengths differ with %d workers", workers)
		}
		if base.Stats != idx.Stats {
			t.Errorf("stats differ with %d workers: %+v vs %+v", workers, base.Stats, idx.Stats)
		}
	}
}

func TestValidateRejectsInconsistentIndex(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Index)
	}{
		{
			name: "unknown document in postings",
			mutate: func(idx *Index) {
				idx.Postings["soup"] = PostingList{{DocID: 999, TermFreq: 1}}
			},
		},
		{
			name: "empty postings list",
			mutate: func(idx *Index) {
				idx.Postings["ghost"] = PostingList{}
			},
		},
		{
			name: "zero term frequency",
			mutate: func(idx *Index) {
				idx.Postings["soup"] = PostingList{{DocID: 1, TermFreq: 0}}
			},
		},
		{
			name: "doc count mismatch",
			mutate: func(idx *Index) {
				idx.Stats.DocCount = 42
			},
		},
		{
			name: "wrong cached average length",
			mutate: func(idx *Index) {
				idx.Stats.AvgDocLen += 1
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := Build(context.Background(), testDocs(), "fp", 1)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			tt.mutate(idx)
			if err := idx.Validate(); err == nil {
				t.Error("Validate accepted an inconsistent index")
			}
		})
	}
}
