// Package collections resolves collection references. Collections are
// created and managed externally; the pipeline only reads their
// embedding settings.
package collections

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/meridiandb/meridian/pkg/vectorstore"
)

// ErrCollectionNotFound is returned when no collection matches the
// requested name.
var ErrCollectionNotFound = errors.New("collection not found")

// Collection describes where and how a document's vectors are stored.
type Collection struct {
	ID             string                     `json:"id"`
	Name           string                     `json:"name"`
	Dimension      int                        `json:"dimension"`
	EmbeddingModel string                     `json:"embedding_model"`
	DistanceMetric vectorstore.DistanceMetric `json:"distance_metric"`
}

// Validate checks that the reference is usable by the pipeline.
func (c Collection) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("collection name cannot be empty")
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("collection %s has invalid dimension %d", c.Name, c.Dimension)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("collection %s has no embedding model", c.Name)
	}
	if !c.DistanceMetric.Valid() {
		return fmt.Errorf("collection %s has unknown distance metric %q", c.Name, c.DistanceMetric)
	}
	return nil
}

// Provider looks up collection references by name.
type Provider interface {
	GetCollection(ctx context.Context, name string) (Collection, error)
}

// MemoryProvider serves collections registered at startup. It backs
// development setups and tests where no external catalog exists.
type MemoryProvider struct {
	mu          sync.RWMutex
	collections map[string]Collection
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{collections: make(map[string]Collection)}
}

// Register adds or replaces a collection reference.
func (p *MemoryProvider) Register(collection Collection) error {
	if err := collection.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collections[collection.Name] = collection
	return nil
}

func (p *MemoryProvider) GetCollection(ctx context.Context, name string) (Collection, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	collection, ok := p.collections[name]
	if !ok {
		return Collection{}, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return collection, nil
}

var _ Provider = (*MemoryProvider)(nil)
