package index

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kitchenframe/recipesearch/internal/corpus"
	"github.com/kitchenframe/recipesearch/internal/tokenizer"
)

// partial is the output of one build worker over its document chunk.
type partial struct {
	termFreqs  map[string]map[int64]int
	docLengths map[int64]int
	tokenTotal int64
}

// Build constructs an Index over the documents using a partition-map-merge
// fold: the documents are split into contiguous chunks, each worker tokenises
// and counts its chunk into private maps, and the partials are merged in a
// single accumulation step after all workers finish. Term-frequency
// accumulation is commutative, so worker scheduling cannot affect the result.
//
// workers <= 0 means one worker per CPU. An empty document slice produces a
// valid empty index with AvgDocLen 0.
func Build(ctx context.Context, docs []corpus.Document, fingerprint string, workers int) (*Index, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(docs) {
		workers = len(docs)
	}

	partials := make([]partial, workers)
	if workers > 0 {
		g, ctx := errgroup.WithContext(ctx)
		chunk := (len(docs) + workers - 1) / workers
		for w := 0; w < workers; w++ {
			lo := w * chunk
			hi := lo + chunk
			if hi > len(docs) {
				hi = len(docs)
			}
			w, lo, hi := w, lo, hi
			g.Go(func() error {
				p := partial{
					termFreqs:  make(map[string]map[int64]int),
					docLengths: make(map[int64]int, hi-lo),
				}
				for _, doc := range docs[lo:hi] {
					if err := ctx.Err(); err != nil {
						return err
					}
					tokens := tokenizer.Tokenize(doc.Text)
					p.docLengths[doc.ID] = len(tokens)
					p.tokenTotal += int64(len(tokens))
					for _, term := range tokens {
						byDoc, ok := p.termFreqs[term]
						if !ok {
							byDoc = make(map[int64]int)
							p.termFreqs[term] = byDoc
						}
						byDoc[doc.ID]++
					}
				}
				partials[w] = p
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("building index: %w", err)
		}
	}

	merged := make(map[string]map[int64]int)
	docLengths := make(map[int64]int, len(docs))
	var tokenTotal int64
	for _, p := range partials {
		for term, byDoc := range p.termFreqs {
			dst, ok := merged[term]
			if !ok {
				merged[term] = byDoc
				continue
			}
			for docID, tf := range byDoc {
				dst[docID] += tf
			}
		}
		for docID, l := range p.docLengths {
			docLengths[docID] = l
		}
		tokenTotal += p.tokenTotal
	}

	postings := make(map[string]PostingList, len(merged))
	for term, byDoc := range merged {
		list := make(PostingList, 0, len(byDoc))
		for docID, tf := range byDoc {
			list = append(list, Posting{DocID: docID, TermFreq: tf})
		}
		sort.Slice(list, func(i, j int) bool {
			return list[i].DocID < list[j].DocID
		})
		postings[term] = list
	}

	stats := CorpusStats{DocCount: len(docs)}
	if stats.DocCount > 0 {
		stats.AvgDocLen = float64(tokenTotal) / float64(stats.DocCount)
	}
	return &Index{
		Postings:    postings,
		DocLengths:  docLengths,
		Stats:       stats,
		Fingerprint: fingerprint,
	}, nil
}
