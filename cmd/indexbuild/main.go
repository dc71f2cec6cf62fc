// Command indexbuild builds the BM25 index from the recipe corpus and
// persists it, for deployments that want the index prepared ahead of serving.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kitchenframe/recipesearch/internal/corpus"
	"github.com/kitchenframe/recipesearch/internal/index"
	"github.com/kitchenframe/recipesearch/internal/index/store"
	"github.com/kitchenframe/recipesearch/pkg/config"
	"github.com/kitchenframe/recipesearch/pkg/logger"
	"github.com/kitchenframe/recipesearch/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	force := flag.Bool("force", false, "rebuild even when the persisted index is fresh")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx := context.Background()

	var src corpus.Source
	switch cfg.Corpus.Source {
	case "postgres":
		pgClient, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres corpus source", "error", err)
			os.Exit(1)
		}
		defer pgClient.Close()
		src = corpus.NewPostgresSource(pgClient, cfg.Corpus.Table)
	default:
		src = corpus.NewFileSource(cfg.Corpus.Path)
	}

	docs, err := src.Load(ctx)
	if err != nil {
		slog.Error("failed to load corpus", "error", err)
		os.Exit(1)
	}
	fingerprint := corpus.Fingerprint(docs)
	slog.Info("corpus loaded", "documents", len(docs), "fingerprint", fingerprint[:12])

	st := store.New(cfg.Index.Path)
	start := time.Now()

	var idx *index.Index
	outcome := store.OutcomeBuiltForced
	if *force {
		idx, err = index.Build(ctx, docs, fingerprint, cfg.Index.BuildWorkers)
		if err == nil {
			err = st.Save(idx)
		}
	} else {
		idx, outcome, err = st.LoadOrBuild(ctx, docs, fingerprint, cfg.Index.BuildWorkers)
	}
	if err != nil {
		slog.Error("index build failed", "error", err)
		os.Exit(1)
	}

	slog.Info("index ready",
		"path", cfg.Index.Path,
		"outcome", string(outcome),
		"forced", *force,
		"documents", idx.Stats.DocCount,
		"terms", len(idx.Postings),
		"avg_doc_len", idx.Stats.AvgDocLen,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
}
