package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kitchenframe/recipesearch/internal/corpus"
	"github.com/kitchenframe/recipesearch/internal/index/store"
	"github.com/kitchenframe/recipesearch/internal/ranking"
	"github.com/kitchenframe/recipesearch/internal/retriever"
	"github.com/kitchenframe/recipesearch/internal/server"
	"github.com/kitchenframe/recipesearch/pkg/config"
	"github.com/kitchenframe/recipesearch/pkg/health"
	"github.com/kitchenframe/recipesearch/pkg/logger"
	"github.com/kitchenframe/recipesearch/pkg/metrics"
	"github.com/kitchenframe/recipesearch/pkg/middleware"
	"github.com/kitchenframe/recipesearch/pkg/postgres"
	pkgredis "github.com/kitchenframe/recipesearch/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting retrieval service",
		"port", cfg.Server.Port,
		"corpus_source", cfg.Corpus.Source,
		"corpus_path", cfg.Corpus.Path,
		"index_path", cfg.Index.Path,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	opts := []retriever.Option{
		retriever.WithParams(ranking.Params{K1: cfg.BM25.K1, B: cfg.BM25.B}),
		retriever.WithDefaultTopK(cfg.BM25.DefaultTopK),
		retriever.WithBuildWorkers(cfg.Index.BuildWorkers),
	}
	var pgClient *postgres.Client
	if cfg.Corpus.Source == "postgres" {
		pgClient, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres corpus source", "error", err)
			os.Exit(1)
		}
		defer pgClient.Close()
		opts = append(opts, retriever.WithSource(corpus.NewPostgresSource(pgClient, cfg.Corpus.Table)))
	}

	indexStart := time.Now()
	ret, err := retriever.New(ctx, cfg.Corpus.Path, cfg.Index.Path, opts...)
	if err != nil {
		slog.Error("failed to initialize retriever", "error", err)
		os.Exit(1)
	}
	if m != nil {
		m.IndexedDocuments.Set(float64(ret.DocumentCount()))
		if outcome := ret.IndexOutcome(); outcome == store.OutcomeLoaded {
			m.IndexBuildsTotal.WithLabelValues("none", "skipped").Inc()
		} else {
			m.IndexBuildsTotal.WithLabelValues(string(outcome), "success").Inc()
			m.IndexBuildDuration.Observe(time.Since(indexStart).Seconds())
		}
	}

	var queryCache *server.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = server.NewQueryCache(redisClient, cfg.Redis)
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if ret.DocumentCount() > 0 {
			return health.ComponentHealth{
				Status:  health.StatusUp,
				Message: fmt.Sprintf("%d documents indexed", ret.DocumentCount()),
			}
		}
		return health.ComponentHealth{Status: health.StatusDegraded, Message: "empty index"}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := server.New(ret, queryCache, m, cfg.BM25.DefaultTopK, cfg.BM25.MaxTopK)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/retrieve", h.Retrieve)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	if cfg.Server.RateLimitPerMinute > 0 {
		limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerMinute, time.Minute)
		chain = middleware.RateLimit(limiter)(chain)
	}
	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.Server.CORSAllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.Server.CORSAllowOrigins
	}
	chain = middleware.CORS(corsCfg)(chain)
	chain = middleware.RequestID(chain)

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("retrieval service listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("retrieval service stopped")
}
