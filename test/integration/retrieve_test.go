// Package integration contains tests that exercise the full HTTP stack:
// real retriever, handler, and middleware chain wired the way the service
// wires them, with no external dependencies (the corpus is a temp file and
// caching is disabled).
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kitchenframe/recipesearch/internal/retriever"
	"github.com/kitchenframe/recipesearch/internal/server"
	"github.com/kitchenframe/recipesearch/pkg/health"
	"github.com/kitchenframe/recipesearch/pkg/middleware"
)

const testCorpus = `[
	{"id": 1, "name": "Chicken Rice Soup", "text": "chicken soup with rice"},
	{"id": 2, "name": "Chicken Curry", "text": "chicken curry with rice"},
	{"id": 3, "name": "Vegetable Soup", "text": "vegetable soup"}
]`

// newRetrieveServer builds the same handler chain as the service binary,
// minus metrics and caching.
func newRetrieveServer(t *testing.T, rateLimitPerMinute int) *httptest.Server {
	t.Helper()

	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "recipes.json")
	if err := os.WriteFile(corpusPath, []byte(testCorpus), 0644); err != nil {
		t.Fatalf("writing corpus: %v", err)
	}
	ret, err := retriever.New(context.Background(), corpusPath, filepath.Join(dir, "index.bin"))
	if err != nil {
		t.Fatalf("creating retriever: %v", err)
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := server.New(ret, nil, nil, 10, 100)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/retrieve", h.Retrieve)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(5 * time.Second)(chain)
	if rateLimitPerMinute > 0 {
		limiter := middleware.NewRateLimiter(rateLimitPerMinute, time.Minute)
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	return httptest.NewServer(chain)
}

func TestRetrieveEndToEnd(t *testing.T) {
	srv := newRetrieveServer(t, 0)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/retrieve?q=chicken+soup&k=2")
	if err != nil {
		t.Fatalf("retrieve request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("response missing X-Request-ID header")
	}

	var body server.RetrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Total != 2 {
		t.Fatalf("expected 2 results, got %d", body.Total)
	}
	// Doc 1 matches both terms and must rank first.
	if body.Results[0].ID != 1 {
		t.Errorf("top result = %d, want 1", body.Results[0].ID)
	}
	if body.Results[0].Score <= body.Results[1].Score {
		t.Errorf("scores not descending: %g <= %g", body.Results[0].Score, body.Results[1].Score)
	}
}

func TestRetrieveMissingQuery(t *testing.T) {
	srv := newRetrieveServer(t, 0)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/retrieve")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newRetrieveServer(t, 0)
	defer srv.Close()

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("%s: request failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestRateLimiting(t *testing.T) {
	srv := newRetrieveServer(t, 2)
	defer srv.Close()

	// First 2 requests succeed.
	for i := 0; i < 2; i++ {
		resp, err := http.Get(srv.URL + "/api/v1/retrieve?q=soup")
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}

	// 3rd request is rate limited.
	resp, err := http.Get(srv.URL + "/api/v1/retrieve?q=soup")
	if err != nil {
		t.Fatalf("rate limit request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", resp.StatusCode)
	}

	// Health endpoints are exempt.
	healthResp, err := http.Get(srv.URL + "/health/live")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	healthResp.Body.Close()
	if healthResp.StatusCode != http.StatusOK {
		t.Errorf("health endpoint rate limited: got %d", healthResp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newRetrieveServer(t, 0)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/retrieve", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestCacheStatsWithoutRedis(t *testing.T) {
	srv := newRetrieveServer(t, 0)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/cache/stats")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "disabled" {
		t.Errorf("expected status=disabled, got %q", body["status"])
	}
}
