// File: cmd/providers.go
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Aadvait-Hirde/LLMVulnBench/api/schemas"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/artifacts"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/config"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/observability"
	"github.com/Aadvait-Hirde/LLMVulnBench/internal/store"
)

// studyStore is everything the commands need from the database.
type studyStore interface {
	schemas.RunSource
	schemas.RunSink
	schemas.ScoreSink
	EnsureSchema(ctx context.Context) error
}

// storeProvider creates the study store. Tests inject a mock in place of a
// live database connection.
type storeProvider interface {
	// Create returns the store and a cleanup function releasing its resources.
	Create(ctx context.Context, cfg config.Interface) (studyStore, func(), error)
}

// defaultStoreProvider connects to PostgreSQL.
type defaultStoreProvider struct{}

// NewStoreProvider returns the production store provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to the database named by cfg and returns a store over the
// pool, along with a cleanup function closing the pool.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (studyStore, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database().URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (LLMVB_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.Database().URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storeService, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize store service: %w", err)
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Database connection pool closed.")
	}
	return storeService, cleanup, nil
}

// reportPublisher uploads a finished output directory.
type reportPublisher interface {
	Publish(ctx context.Context, dir, analysisID string) ([]string, error)
}

// publisherProvider creates the report publisher.
type publisherProvider interface {
	Create(cfg config.Interface) (reportPublisher, error)
}

type defaultPublisherProvider struct{}

// NewPublisherProvider returns the production publisher provider, backed by
// an S3-compatible object store.
func NewPublisherProvider() publisherProvider {
	return &defaultPublisherProvider{}
}

func (p *defaultPublisherProvider) Create(cfg config.Interface) (reportPublisher, error) {
	if !cfg.Storage().Enabled() {
		return nil, fmt.Errorf("storage bucket is not configured (LLMVB_STORAGE_BUCKET)")
	}
	return artifacts.New(cfg.Storage(), observability.GetLogger())
}
