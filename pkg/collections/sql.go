package collections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/meridiandb/meridian/pkg/vectorstore"
)

// SQLProvider reads collection references from the external catalog's
// collections table.
type SQLProvider struct {
	db *sql.DB
}

// NewSQLProvider opens a catalog-backed provider.
func NewSQLProvider(dsn string) (*SQLProvider, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open collections catalog: %w", err)
	}
	return &SQLProvider{db: db}, nil
}

// NewSQLProviderFromDB wraps an existing connection pool.
func NewSQLProviderFromDB(db *sql.DB) *SQLProvider {
	return &SQLProvider{db: db}
}

func (p *SQLProvider) GetCollection(ctx context.Context, name string) (Collection, error) {
	var collection Collection
	var metric string
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, dimension, embedding_model, distance_metric
		FROM collections
		WHERE name = $1`, name).
		Scan(&collection.ID, &collection.Name, &collection.Dimension, &collection.EmbeddingModel, &metric)
	if errors.Is(err, sql.ErrNoRows) {
		return Collection{}, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err != nil {
		return Collection{}, fmt.Errorf("failed to load collection %s: %w", name, err)
	}
	collection.DistanceMetric = vectorstore.DistanceMetric(metric)
	if err := collection.Validate(); err != nil {
		return Collection{}, err
	}
	return collection, nil
}

// Close releases the catalog connection.
func (p *SQLProvider) Close() error {
	return p.db.Close()
}

var _ Provider = (*SQLProvider)(nil)
