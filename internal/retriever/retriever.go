// Package retriever is the public entry point for BM25 recipe retrieval. A
// Retriever loads (or builds) the index exactly once at construction and then
// serves ranked queries against the immutable index for its lifetime, safe
// for unsynchronised concurrent use.
package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kitchenframe/recipesearch/internal/corpus"
	"github.com/kitchenframe/recipesearch/internal/index"
	"github.com/kitchenframe/recipesearch/internal/index/store"
	"github.com/kitchenframe/recipesearch/internal/ranking"
	"github.com/kitchenframe/recipesearch/internal/tokenizer"
	"github.com/kitchenframe/recipesearch/pkg/logger"
)

// Result is one ranked retrieval record returned to callers.
type Result struct {
	ID       int64           `json:"id"`
	Score    float64         `json:"bm25_score"`
	Metadata json.RawMessage `json:"metadata"`
}

// Retriever holds one immutable index and its corpus documents.
type Retriever struct {
	idx         *index.Index
	docs        map[int64]corpus.Document
	params      ranking.Params
	defaultTopK int
	outcome     store.Outcome
	logger      *slog.Logger
}

// Option configures a Retriever at construction time.
type Option func(*options)

type options struct {
	params       ranking.Params
	defaultTopK  int
	buildWorkers int
	source       corpus.Source
}

// WithParams overrides the BM25 tunables.
func WithParams(p ranking.Params) Option {
	return func(o *options) { o.params = p }
}

// WithDefaultTopK sets the result count used when a query passes topK <= 0.
func WithDefaultTopK(k int) Option {
	return func(o *options) { o.defaultTopK = k }
}

// WithBuildWorkers caps index build parallelism.
func WithBuildWorkers(n int) Option {
	return func(o *options) { o.buildWorkers = n }
}

// WithSource replaces the default file corpus source, e.g. with the
// PostgreSQL-backed one. The corpusPath argument to New is ignored when set.
func WithSource(src corpus.Source) Option {
	return func(o *options) { o.source = src }
}

// New loads the corpus, fingerprints it, and loads or builds the persisted
// index at indexPath. It is the sole constructor; callers create one
// Retriever per corpus and reuse it for every query.
func New(ctx context.Context, corpusPath, indexPath string, opts ...Option) (*Retriever, error) {
	o := options{
		params:      ranking.DefaultParams(),
		defaultTopK: 10,
	}
	for _, opt := range opts {
		opt(&o)
	}
	src := o.source
	if src == nil {
		src = corpus.NewFileSource(corpusPath)
	}

	log := logger.WithComponent("retriever")

	docs, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}
	fingerprint := corpus.Fingerprint(docs)

	start := time.Now()
	idx, outcome, err := store.New(indexPath).LoadOrBuild(ctx, docs, fingerprint, o.buildWorkers)
	if err != nil {
		return nil, err
	}
	log.Info("index ready",
		"outcome", string(outcome),
		"documents", idx.Stats.DocCount,
		"terms", len(idx.Postings),
		"avg_doc_len", idx.Stats.AvgDocLen,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)

	byID := make(map[int64]corpus.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	return &Retriever{
		idx:         idx,
		docs:        byID,
		params:      o.params,
		defaultTopK: o.defaultTopK,
		outcome:     outcome,
		logger:      log,
	}, nil
}

// Retrieve runs a BM25-ranked query and returns the top-k results with their
// metadata. The candidate set is the union of documents appearing in any
// query token's postings list; documents matching no token are never scored.
// An empty query (no tokens survive tokenisation) yields empty results, not
// an error. topK <= 0 uses the configured default; topK beyond the candidate
// count returns all candidates.
func (r *Retriever) Retrieve(query string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}
	tokens := tokenizer.Tokenize(query)
	if len(tokens) == 0 {
		return []Result{}, nil
	}

	postingsPerTerm := make(map[string]index.PostingList, len(tokens))
	for _, term := range tokens {
		if _, seen := postingsPerTerm[term]; seen {
			continue
		}
		if postings := r.idx.TermPostings(term); len(postings) > 0 {
			postingsPerTerm[term] = postings
		}
	}
	ranked := ranking.Rank(postingsPerTerm, r.idx, r.params, topK)

	results := make([]Result, 0, len(ranked))
	for _, sd := range ranked {
		doc, ok := r.docs[sd.DocID]
		if !ok {
			// The index references only loaded documents; a miss here
			// means the index and corpus diverged.
			return nil, fmt.Errorf("index references unknown document %d", sd.DocID)
		}
		results = append(results, Result{
			ID:       sd.DocID,
			Score:    sd.Score,
			Metadata: doc.Metadata,
		})
	}
	r.logger.Debug("query retrieved",
		"query", query,
		"terms", len(postingsPerTerm),
		"results", len(results),
	)
	return results, nil
}

// DocumentCount returns the number of indexed documents.
func (r *Retriever) DocumentCount() int {
	return r.idx.Stats.DocCount
}

// Params returns the BM25 tunables in effect.
func (r *Retriever) Params() ranking.Params {
	return r.params
}

// IndexOutcome reports whether construction loaded the persisted index or
// rebuilt it, and why.
func (r *Retriever) IndexOutcome() store.Outcome {
	return r.outcome
}
