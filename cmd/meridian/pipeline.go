package main

import (
	"context"
	"fmt"
	"io"

	"github.com/meridiandb/meridian/pkg/collections"
	"github.com/meridiandb/meridian/pkg/config"
	"github.com/meridiandb/meridian/pkg/embedders"
	"github.com/meridiandb/meridian/pkg/jobs"
	"github.com/meridiandb/meridian/pkg/observability"
	"github.com/meridiandb/meridian/pkg/search"
	"github.com/meridiandb/meridian/pkg/vectorstore"
)

// pipeline bundles the wired components behind one Close.
type pipeline struct {
	catalog    collections.Provider
	vectors    vectorstore.Store
	jobs       jobs.Store
	source     *embedders.Source
	controller *jobs.Controller
	engine     *search.Engine

	closers []io.Closer
}

// buildPipeline wires the full stack from configuration.
func buildPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	p := &pipeline{}

	if cfg.Metrics.Enabled {
		metrics, err := observability.InitMetrics(ctx, cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		observability.SetGlobalMetrics(metrics)
	}

	catalog, err := buildCatalog(cfg)
	if err != nil {
		return nil, err
	}
	p.catalog = catalog
	if closer, ok := catalog.(io.Closer); ok {
		p.closers = append(p.closers, closer)
	}

	vectors, err := vectorstore.New(cfg.VectorStore)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	p.vectors = vectors
	p.closers = append(p.closers, vectors)

	jobStore, err := buildJobStore(cfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.jobs = jobStore
	if closer, ok := jobStore.(io.Closer); ok {
		p.closers = append(p.closers, closer)
	}

	p.source = embedders.NewSource(cfg.Embedder)
	p.closers = append(p.closers, p.source)

	p.controller = jobs.NewController(cfg.Controller, jobStore, catalog, vectors, p.source)
	p.engine = search.NewEngine(catalog, vectors, p.source)

	return p, nil
}

// buildCatalog picks the collection catalog: the external Postgres
// catalog when available, statically configured collections
// otherwise. With neither, a default collection derived from the
// embedder keeps zero-config usable.
func buildCatalog(cfg *config.Config) (collections.Provider, error) {
	if cfg.Database.Driver == "postgres" && len(cfg.Collections) == 0 {
		return collections.NewSQLProvider(cfg.Database.DSN)
	}

	provider := collections.NewMemoryProvider()
	if len(cfg.Collections) == 0 {
		err := provider.Register(collections.Collection{
			ID:             "default",
			Name:           "default",
			Dimension:      cfg.Embedder.Dimension,
			EmbeddingModel: cfg.Embedder.Model,
			DistanceMetric: vectorstore.MetricCosine,
		})
		if err != nil {
			return nil, err
		}
		return provider, nil
	}
	for _, entry := range cfg.Collections {
		if err := provider.Register(entry.Collection()); err != nil {
			return nil, fmt.Errorf("failed to register collection %s: %w", entry.Name, err)
		}
	}
	return provider, nil
}

func buildJobStore(cfg *config.Config) (jobs.Store, error) {
	maxConns, maxIdle := 10, 5
	if cfg.Database.Driver == "sqlite" {
		// go-sqlite3 serializes writers; a single connection avoids
		// SQLITE_BUSY under concurrent workers.
		maxConns, maxIdle = 1, 1
	}
	store, err := jobs.NewSQLStoreFromDSN(cfg.Database.Driver, cfg.Database.DSN, maxConns, maxIdle)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}
	return store, nil
}

func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i].Close()
	}
}
