package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/biolink"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/bootstrap"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/config"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/evidence"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/logging"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/metadata"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/namespace"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/server/api"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(Version)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := bootstrap.OpenGraph(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening graph store: %w", err)
	}
	defer repo.Close(context.Background())

	registry, err := bootstrap.Registry(cfg)
	if err != nil {
		return err
	}
	normalizer := namespace.NewNormalizer(registry, logger)

	store, closer, err := bootstrap.MappingStore(ctx, cfg, cfg.Identifiers.MappingFile)
	if err != nil {
		return err
	}
	err = bootstrap.PublishMappings(ctx, store, normalizer, logger)
	closer.Close()
	if err != nil {
		return fmt.Errorf("loading prefix mappings: %w", err)
	}

	model, err := biolink.Default()
	if err != nil {
		return err
	}
	meta := metadata.NewService(filepath.Join(cfg.Metadata.DataDir, cfg.Server.BeaconName), model, cfg.Metadata.CacheTTL, logger)
	caseMap := namespace.NewCaseMap(repo, cfg.Identifiers.CaseMapTimeout, logger)
	citer := evidence.NewClient(evidence.Config{
		Enabled:   cfg.Evidence.Enabled,
		BaseURL:   cfg.Evidence.BaseURL,
		APIKey:    cfg.Evidence.APIKey,
		RateLimit: cfg.Evidence.RateLimit,
		Timeout:   cfg.Evidence.Timeout,
	}, nil, logger)

	apiServer := api.New(api.Deps{
		Repo:       repo,
		Normalizer: normalizer,
		CaseMap:    caseMap,
		Model:      model,
		Metadata:   meta,
		Citer:      citer,
		Logger:     logger,
	}, api.Options{
		BeaconName:       cfg.Server.BeaconName,
		IdentifierMode:   cfg.Identifiers.Mode,
		FilterBiolink:    cfg.Metadata.FilterBiolink,
		RedirectNotFound: cfg.Server.RedirectNotFound,
		RateLimit:        cfg.Server.RateLimit,
		RateBurst:        cfg.Server.RateBurst,
		Version:          cfg.Version,
	})

	// HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      apiServer.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting beacon server",
			zap.String("addr", srv.Addr),
			zap.String("base_path", apiServer.BasePath()),
			zap.String("backend", cfg.Graph.Backend),
			zap.String("identifier_mode", cfg.Identifiers.Mode),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	// Warm-up failures leave /ready reporting not ready; the caches retry on
	// the first request that needs them.
	g.Go(func() error {
		if err := meta.Warm(gctx); err != nil {
			logger.Warn("Metadata warm-up failed", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		if err := caseMap.Warm(gctx); err != nil {
			logger.Warn("Case map warm-up failed", zap.String("error", logging.SanitizeError(err)))
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server exited")
	return nil
}
