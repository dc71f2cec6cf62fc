// Package eval measures retrieval quality against a set of labelled queries,
// reporting the standard IR metrics: Recall@k and mean reciprocal rank.
package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/kitchenframe/recipesearch/internal/retriever"
)

// Searcher is the retrieval surface the evaluator drives.
type Searcher interface {
	Retrieve(query string, topK int) ([]retriever.Result, error)
}

// Query is one labelled evaluation query.
type Query struct {
	Query       string  `json:"query"`
	QueryType   string  `json:"query_type,omitempty"`
	Complexity  string  `json:"complexity_level,omitempty"`
	ExpectedIDs []int64 `json:"expected_recipe_ids"`
}

// QueryResult holds the per-query evaluation outcome.
type QueryResult struct {
	Query          string        `json:"query"`
	QueryType      string        `json:"query_type,omitempty"`
	ExpectedIDs    []int64       `json:"expected_recipe_ids"`
	RetrievedIDs   []int64       `json:"retrieved_recipe_ids"`
	FoundRanks     map[int64]int `json:"found_recipe_ranks"`
	BestRank       int           `json:"target_rank"` // 0 when nothing was found
	RecallAt1      float64       `json:"recall_at_1"`
	RecallAt3      float64       `json:"recall_at_3"`
	RecallAt5      float64       `json:"recall_at_5"`
	RecallAt10     float64       `json:"recall_at_10"`
	ReciprocalRank float64       `json:"reciprocal_rank"`
	Scores         []float64     `json:"bm25_scores"`
}

// Metrics aggregates the per-query outcomes.
type Metrics struct {
	TotalQueries       int     `json:"total_queries"`
	RecallAt1          float64 `json:"recall_at_1"`
	RecallAt3          float64 `json:"recall_at_3"`
	RecallAt5          float64 `json:"recall_at_5"`
	RecallAt10         float64 `json:"recall_at_10"`
	MeanReciprocalRank float64 `json:"mean_reciprocal_rank"`
	QueriesFound       int     `json:"queries_found"`
	QueriesNotFound    int     `json:"queries_not_found"`
	SuccessRate        float64 `json:"success_rate"`
	AverageRankWhenHit float64 `json:"average_rank_when_found"`
	MedianRankWhenHit  float64 `json:"median_rank_when_found"`
}

// Report is the full evaluation output.
type Report struct {
	Metrics Metrics       `json:"metrics"`
	Results []QueryResult `json:"results"`
	TopK    int           `json:"top_k_retrieved"`
}

// LoadQueries reads a labelled-queries JSON file (an array of Query objects).
func LoadQueries(path string) ([]Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading queries file %s: %w", path, err)
	}
	var queries []Query
	if err := json.Unmarshal(data, &queries); err != nil {
		return nil, fmt.Errorf("parsing queries file %s: %w", path, err)
	}
	return queries, nil
}

// EvaluateQuery runs one query through the searcher and scores the ranking
// against its expected recipe ids.
func EvaluateQuery(s Searcher, q Query, topK int) (QueryResult, error) {
	retrieved, err := s.Retrieve(q.Query, topK)
	if err != nil {
		return QueryResult{}, fmt.Errorf("retrieving %q: %w", q.Query, err)
	}

	ids := make([]int64, 0, len(retrieved))
	scores := make([]float64, 0, len(retrieved))
	for _, r := range retrieved {
		ids = append(ids, r.ID)
		scores = append(scores, r.Score)
	}

	ranks := make(map[int64]int)
	for _, expected := range q.ExpectedIDs {
		for i, id := range ids {
			if id == expected {
				ranks[expected] = i + 1 // 1-indexed
				break
			}
		}
	}
	bestRank := 0
	for _, rank := range ranks {
		if bestRank == 0 || rank < bestRank {
			bestRank = rank
		}
	}
	rr := 0.0
	if bestRank > 0 {
		rr = 1.0 / float64(bestRank)
	}

	return QueryResult{
		Query:          q.Query,
		QueryType:      q.QueryType,
		ExpectedIDs:    q.ExpectedIDs,
		RetrievedIDs:   ids,
		FoundRanks:     ranks,
		BestRank:       bestRank,
		RecallAt1:      recallAt(bestRank, 1),
		RecallAt3:      recallAt(bestRank, 3),
		RecallAt5:      recallAt(bestRank, 5),
		RecallAt10:     recallAt(bestRank, 10),
		ReciprocalRank: rr,
		Scores:         scores,
	}, nil
}

// Evaluate runs every query and aggregates the metrics.
func Evaluate(s Searcher, queries []Query, topK int) (*Report, error) {
	results := make([]QueryResult, 0, len(queries))
	for _, q := range queries {
		result, err := EvaluateQuery(s, q, topK)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return &Report{
		Metrics: aggregate(results),
		Results: results,
		TopK:    topK,
	}, nil
}

func recallAt(bestRank, k int) float64 {
	if bestRank > 0 && bestRank <= k {
		return 1.0
	}
	return 0.0
}

func aggregate(results []QueryResult) Metrics {
	m := Metrics{TotalQueries: len(results)}
	if len(results) == 0 {
		return m
	}
	var foundRanks []int
	for _, r := range results {
		m.RecallAt1 += r.RecallAt1
		m.RecallAt3 += r.RecallAt3
		m.RecallAt5 += r.RecallAt5
		m.RecallAt10 += r.RecallAt10
		m.MeanReciprocalRank += r.ReciprocalRank
		if r.BestRank > 0 {
			m.QueriesFound++
			foundRanks = append(foundRanks, r.BestRank)
		} else {
			m.QueriesNotFound++
		}
	}
	n := float64(len(results))
	m.RecallAt1 /= n
	m.RecallAt3 /= n
	m.RecallAt5 /= n
	m.RecallAt10 /= n
	m.MeanReciprocalRank /= n
	m.SuccessRate = float64(m.QueriesFound) / n

	if len(foundRanks) > 0 {
		sort.Ints(foundRanks)
		var sum int
		for _, r := range foundRanks {
			sum += r
		}
		m.AverageRankWhenHit = float64(sum) / float64(len(foundRanks))
		mid := len(foundRanks) / 2
		if len(foundRanks)%2 == 1 {
			m.MedianRankWhenHit = float64(foundRanks[mid])
		} else {
			m.MedianRankWhenHit = float64(foundRanks[mid-1]+foundRanks[mid]) / 2
		}
	}
	return m
}
