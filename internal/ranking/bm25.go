// Package ranking implements BM25 scoring over the inverted index.
package ranking

import (
	"math"
	"sort"

	"github.com/kitchenframe/recipesearch/internal/index"
)

// Default tunables. K1 controls term-frequency saturation rate; B controls
// document-length normalisation strength.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// Params holds the BM25 tunables.
type Params struct {
	K1 float64
	B  float64
}

// DefaultParams returns the standard BM25 parameters.
func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

// ScoredDoc is one ranked retrieval result.
type ScoredDoc struct {
	DocID int64   `json:"doc_id"`
	Score float64 `json:"score"`
}

// IDF computes the inverse document frequency for a term appearing in
// docFreq of totalDocs documents:
//
//	ln((N - df + 0.5) / (df + 0.5) + 1)
//
// Non-negative whenever df <= N.
func IDF(totalDocs, docFreq int) float64 {
	n := float64(totalDocs)
	df := float64(docFreq)
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}

// termScore computes one term's contribution to a document's score.
func termScore(idf float64, tf, docLen int, avgDocLen float64, p Params) float64 {
	if tf == 0 {
		return 0
	}
	norm := 1 - p.B
	if avgDocLen > 0 {
		norm = 1 - p.B + p.B*(float64(docLen)/avgDocLen)
	}
	f := float64(tf)
	return idf * (f * (p.K1 + 1)) / (f + p.K1*norm)
}

// Score computes the BM25 score of one document for the given query tokens.
// It is a pure function over the index statistics: query tokens absent from
// the index, and documents not containing a token, contribute nothing.
func Score(queryTokens []string, docID int64, idx *index.Index, p Params) float64 {
	seen := make(map[string]struct{}, len(queryTokens))
	var score float64
	for _, term := range queryTokens {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		postings := idx.TermPostings(term)
		if len(postings) == 0 {
			continue
		}
		tf := 0
		for _, posting := range postings {
			if posting.DocID == docID {
				tf = posting.TermFreq
				break
			}
		}
		if tf == 0 {
			continue
		}
		idf := IDF(idx.Stats.DocCount, len(postings))
		score += termScore(idf, tf, idx.DocLength(docID), idx.Stats.AvgDocLen, p)
	}
	return score
}

// Rank scores every candidate document appearing in any term's postings list
// and returns them sorted descending by score, tie-broken by ascending DocID
// for determinism, truncated to limit (limit <= 0 means no truncation).
func Rank(postingsPerTerm map[string]index.PostingList, idx *index.Index, p Params, limit int) []ScoredDoc {
	scores := make(map[int64]float64)
	for _, postings := range postingsPerTerm {
		idf := IDF(idx.Stats.DocCount, len(postings))
		for _, posting := range postings {
			scores[posting.DocID] += termScore(idf, posting.TermFreq, idx.DocLength(posting.DocID), idx.Stats.AvgDocLen, p)
		}
	}
	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		result = append(result, ScoredDoc{DocID: docID, Score: score})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocID < result[j].DocID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
