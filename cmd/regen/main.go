package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"monteur/internal/adapter/repo"
	"monteur/internal/bootstrap"
	"monteur/internal/infra"
	"monteur/internal/staticimage"
)

func main() {
	var (
		concurrency int
		itemID      string
		dryRun      bool
		pageSize    int
	)
	flag.IntVar(&concurrency, "concurrency", 2, "items processed in parallel")
	flag.StringVar(&itemID, "item", "", "only regenerate this gallery item")
	flag.BoolVar(&dryRun, "dry-run", false, "print crop rectangles without publishing")
	flag.IntVar(&pageSize, "page-size", 100, "gallery rows fetched per query")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "regen").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("regen: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	r := &regenerator{
		gallery:     repo.NewGalleryRepository(runner),
		concurrency: concurrency,
		pageSize:    pageSize,
		itemTimeout: cfg.GenerateTimeout,
		dryRun:      dryRun,
		out:         os.Stdout,
		logger:      logger,
		maxPixels:   cfg.MaxSourcePixels,
	}
	if dryRun {
		r.fetcher = staticimage.NewFetcher(staticimage.FetcherOptions{
			HTTPClient:   &http.Client{},
			Timeout:      cfg.FetchTimeout,
			MaxBytes:     cfg.MaxSourceBytes,
			AllowedHosts: cfg.ImageSourceAllowlist,
		})
	} else {
		pipeline, err := bootstrap.NewPipeline(ctx, cfg, runner, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("regen: pipeline setup failed")
		}
		r.generator = pipeline.Generator
	}

	sum, err := r.run(ctx, itemID)
	if err != nil {
		logger.Error().Err(err).Msg("regen: aborted")
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "%d items, %d ok, %d failed\n", sum.total, sum.ok, sum.failed)
	if sum.failed > 0 {
		os.Exit(1)
	}
}
