// Package server exposes the retriever over HTTP for the recipe agent, with
// an optional Redis-backed query cache.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kitchenframe/recipesearch/internal/retriever"
	pkgerrors "github.com/kitchenframe/recipesearch/pkg/errors"
	"github.com/kitchenframe/recipesearch/pkg/logger"
	"github.com/kitchenframe/recipesearch/pkg/metrics"
)

// Searcher is the retrieval surface the handler serves.
type Searcher interface {
	Retrieve(query string, topK int) ([]retriever.Result, error)
}

// RetrieveResponse is the JSON body returned by the retrieve endpoint.
type RetrieveResponse struct {
	Query   string             `json:"query"`
	Total   int                `json:"total"`
	Results []retriever.Result `json:"results"`
}

// Handler serves retrieval queries and cache administration endpoints.
type Handler struct {
	searcher    Searcher
	cache       *QueryCache
	metrics     *metrics.Metrics
	defaultTopK int
	maxTopK     int
	logger      *slog.Logger
}

// New creates a Handler. cache and m may be nil, disabling caching and
// metric recording respectively.
func New(searcher Searcher, cache *QueryCache, m *metrics.Metrics, defaultTopK, maxTopK int) *Handler {
	return &Handler{
		searcher:    searcher,
		cache:       cache,
		metrics:     m,
		defaultTopK: defaultTopK,
		maxTopK:     maxTopK,
		logger:      logger.WithComponent("retrieve-handler"),
	}
}

// Retrieve handles GET /api/v1/retrieve?q=...&k=...
func (h *Handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, fmt.Errorf("%w: query parameter 'q' is required", pkgerrors.ErrInvalidInput))
		return
	}
	topK := h.defaultTopK
	if kStr := r.URL.Query().Get("k"); kStr != "" {
		parsed, err := strconv.Atoi(kStr)
		if err != nil || parsed < 1 {
			h.writeError(w, fmt.Errorf("%w: k must be a positive integer", pkgerrors.ErrInvalidInput))
			return
		}
		if parsed > h.maxTopK {
			parsed = h.maxTopK
		}
		topK = parsed
	}

	compute := func() (*RetrieveResponse, error) {
		results, err := h.searcher.Retrieve(query, topK)
		if err != nil {
			return nil, err
		}
		return &RetrieveResponse{
			Query:   query,
			Total:   len(results),
			Results: results,
		}, nil
	}

	var resp *RetrieveResponse
	var err error
	cacheHit := false
	if h.cache != nil {
		resp, cacheHit, err = h.cache.GetOrCompute(ctx, query, topK, compute)
	} else {
		resp, err = compute()
	}
	if err != nil {
		log.Error("retrieval failed", "query", query, "error", err)
		h.recordQuery("error", cacheHit, start, 0)
		h.writeError(w, pkgerrors.New(pkgerrors.ErrInternal, http.StatusInternalServerError, "retrieval failed"))
		return
	}

	resultType := "hit"
	if len(resp.Results) == 0 {
		resultType = "zero_result"
	}
	h.recordQuery(resultType, cacheHit, start, len(resp.Results))
	log.Info("retrieve completed",
		"query", query,
		"top_k", topK,
		"returned", len(resp.Results),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate handles POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, pkgerrors.New(pkgerrors.ErrInternal, http.StatusServiceUnavailable, "caching is disabled"))
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, pkgerrors.New(pkgerrors.ErrInternal, http.StatusInternalServerError, "cache invalidation failed"))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) recordQuery(resultType string, cacheHit bool, start time.Time, results int) {
	if h.metrics == nil {
		return
	}
	h.metrics.QueriesTotal.WithLabelValues(resultType).Inc()
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
		h.metrics.CacheHitsTotal.Inc()
	} else if h.cache != nil {
		h.metrics.CacheMissesTotal.Inc()
	}
	h.metrics.QueryLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	h.metrics.ResultsCount.Observe(float64(results))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps the error to its HTTP status via the shared taxonomy and
// writes a JSON error body.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, pkgerrors.HTTPStatusCode(err), map[string]string{"error": err.Error()})
}
