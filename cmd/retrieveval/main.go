// Command retrieveval evaluates BM25 retrieval quality against a labelled
// queries file and reports Recall@k, MRR, and rank statistics.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/kitchenframe/recipesearch/internal/eval"
	"github.com/kitchenframe/recipesearch/internal/ranking"
	"github.com/kitchenframe/recipesearch/internal/retriever"
	"github.com/kitchenframe/recipesearch/pkg/config"
	"github.com/kitchenframe/recipesearch/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	queriesPath := flag.String("queries", "data/synthetic_queries.json", "path to labelled queries JSON")
	outPath := flag.String("out", "", "write the full JSON report to this path (default stdout summary only)")
	topK := flag.Int("k", 10, "retrieval depth per query")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()
	ret, err := retriever.New(ctx, cfg.Corpus.Path, cfg.Index.Path,
		retriever.WithParams(ranking.Params{K1: cfg.BM25.K1, B: cfg.BM25.B}),
		retriever.WithBuildWorkers(cfg.Index.BuildWorkers),
	)
	if err != nil {
		slog.Error("failed to initialize retriever", "error", err)
		os.Exit(1)
	}

	queries, err := eval.LoadQueries(*queriesPath)
	if err != nil {
		slog.Error("failed to load queries", "error", err)
		os.Exit(1)
	}
	slog.Info("evaluating retrieval", "queries", len(queries), "top_k", *topK)

	report, err := eval.Evaluate(ret, queries, *topK)
	if err != nil {
		slog.Error("evaluation failed", "error", err)
		os.Exit(1)
	}

	m := report.Metrics
	slog.Info("evaluation complete",
		"total_queries", m.TotalQueries,
		"recall_at_1", fmt.Sprintf("%.3f", m.RecallAt1),
		"recall_at_3", fmt.Sprintf("%.3f", m.RecallAt3),
		"recall_at_5", fmt.Sprintf("%.3f", m.RecallAt5),
		"recall_at_10", fmt.Sprintf("%.3f", m.RecallAt10),
		"mrr", fmt.Sprintf("%.3f", m.MeanReciprocalRank),
		"success_rate", fmt.Sprintf("%.3f", m.SuccessRate),
	)

	if *outPath != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			slog.Error("failed to marshal report", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*outPath, data, 0644); err != nil {
			slog.Error("failed to write report", "error", err)
			os.Exit(1)
		}
		slog.Info("report written", "path", *outPath)
	}
}
