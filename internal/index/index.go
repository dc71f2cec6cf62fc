// Package index builds and holds the inverted index over the recipe corpus.
// An Index is immutable once built and safe for unsynchronised concurrent
// reads.
package index

import (
	"fmt"
	"math"

	pkgerrors "github.com/kitchenframe/recipesearch/pkg/errors"
)

// Posting records one document containing a term and the term's frequency in
// that document.
type Posting struct {
	DocID    int64 `json:"d"`
	TermFreq int   `json:"f"`
}

// PostingList is the set of postings for one term, sorted ascending by DocID
// and deduplicated.
type PostingList []Posting

// CorpusStats carries the corpus-wide statistics BM25 scoring needs.
type CorpusStats struct {
	DocCount  int     `json:"docCount"`
	AvgDocLen float64 `json:"avgDocLen"`
}

// Index is the persisted unit: inverted index, per-document lengths, corpus
// statistics, and the fingerprint of the corpus it was built from.
type Index struct {
	Postings    map[string]PostingList `json:"postings"`
	DocLengths  map[int64]int          `json:"docLengths"`
	Stats       CorpusStats            `json:"stats"`
	Fingerprint string                 `json:"fingerprint"`
}

// TermPostings returns the postings for a term, or nil when the term is not
// indexed.
func (idx *Index) TermPostings(term string) PostingList {
	return idx.Postings[term]
}

// DocFreq returns the number of documents containing the term.
func (idx *Index) DocFreq(term string) int {
	return len(idx.Postings[term])
}

// DocLength returns the token count of the given document, 0 if unknown.
func (idx *Index) DocLength(docID int64) int {
	return idx.DocLengths[docID]
}

// Validate checks the index invariants: every indexed term has at least one
// posting, postings are sorted, deduplicated, reference known documents, and
// the cached corpus statistics agree with the document lengths.
func (idx *Index) Validate() error {
	if idx.Postings == nil || idx.DocLengths == nil {
		return fmt.Errorf("%w: nil postings or document lengths", pkgerrors.ErrIndexCorrupt)
	}
	for term, postings := range idx.Postings {
		if len(postings) == 0 {
			return fmt.Errorf("%w: term %q has an empty postings list", pkgerrors.ErrIndexCorrupt, term)
		}
		var prev int64 = math.MinInt64
		for _, p := range postings {
			if p.TermFreq < 1 {
				return fmt.Errorf("%w: term %q doc %d has term frequency %d", pkgerrors.ErrIndexCorrupt, term, p.DocID, p.TermFreq)
			}
			if _, ok := idx.DocLengths[p.DocID]; !ok {
				return fmt.Errorf("%w: term %q references unknown document %d", pkgerrors.ErrIndexCorrupt, term, p.DocID)
			}
			if p.DocID <= prev {
				return fmt.Errorf("%w: term %q postings not strictly ascending by doc id", pkgerrors.ErrIndexCorrupt, term)
			}
			prev = p.DocID
		}
	}
	if idx.Stats.DocCount != len(idx.DocLengths) {
		return fmt.Errorf("%w: doc count %d does not match %d document lengths", pkgerrors.ErrIndexCorrupt, idx.Stats.DocCount, len(idx.DocLengths))
	}
	var total int
	for _, l := range idx.DocLengths {
		total += l
	}
	want := 0.0
	if len(idx.DocLengths) > 0 {
		want = float64(total) / float64(len(idx.DocLengths))
	}
	if math.Abs(idx.Stats.AvgDocLen-want) > 1e-9 {
		return fmt.Errorf("%w: cached average document length %g, recomputed %g", pkgerrors.ErrIndexCorrupt, idx.Stats.AvgDocLen, want)
	}
	return nil
}
