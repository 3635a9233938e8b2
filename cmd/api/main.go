package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"monteur/internal/adapter/repo"
	"monteur/internal/bootstrap"
	"monteur/internal/domain"
	"monteur/internal/http/handlers"
	httpapi "monteur/internal/http/httpapi"
	"monteur/internal/infra"
	"monteur/internal/infra/geoip"
	"monteur/internal/middleware"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	var (
		sqlExec infra.SQLExecutor
		gallery domain.GalleryRepository
	)
	if cfg.DatabaseURL != "" {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()
		runner := infra.NewSQLRunner(dbpool, logger)
		sqlExec = runner
		gallery = repo.NewGalleryRepository(runner)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, gallery routes disabled")
	}

	pipeline, err := bootstrap.NewPipeline(ctx, cfg, sqlExec, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure static image pipeline")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()
	var lookup middleware.CountryLookup
	if resolver != nil {
		lookup = resolver.Country
	}

	app := handlers.NewApp(pipeline.Generator, gallery, logger)
	app.GenerateTimeout = cfg.GenerateTimeout
	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		Logger:             logger,
		DefaultLocale:      cfg.DefaultLocale,
		CountryLookup:      lookup,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMin,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
