package vectorstore

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemStore is the embedded zero-config backend. Vectors live in
// memory with optional file persistence. Only cosine distance is
// supported and text rank queries are not.
type ChromemStore struct {
	db          *chromem.DB
	persistPath string
	compress    bool

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewChromemStore opens an embedded chromem-backed vector store.
func NewChromemStore(cfg Config) (*ChromemStore, error) {
	var db *chromem.DB

	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}
		dbPath := chromemDBPath(cfg.PersistPath, cfg.Compress)
		if _, statErr := os.Stat(dbPath); statErr == nil {
			loaded, err := chromem.NewPersistentDB(dbPath, cfg.Compress)
			if err != nil {
				return nil, fmt.Errorf("failed to load vector database from %s: %w", dbPath, err)
			}
			db = loaded
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	return &ChromemStore{
		db:          db,
		persistPath: cfg.PersistPath,
		compress:    cfg.Compress,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func chromemDBPath(dir string, compress bool) string {
	path := dir + "/vectors.gob"
	if compress {
		path += ".gz"
	}
	return path
}

// Vectors arrive pre-computed; chromem must never embed on its own.
func rejectEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding function called but vectors are pre-computed")
}

func (s *ChromemStore) getCollection(name string) (*chromem.Collection, error) {
	s.mu.RLock()
	if col, ok := s.collections[name]; ok {
		s.mu.RUnlock()
		return col, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection(name, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create collection %q: %w", name, err)
	}
	s.collections[name] = col
	return col, nil
}

func (s *ChromemStore) EnsureCollection(ctx context.Context, collection string, dimension int, metric DistanceMetric) error {
	if metric != MetricCosine {
		return fmt.Errorf("chromem vector store supports only the %s metric, got %s", MetricCosine, metric)
	}
	_, err := s.getCollection(collection)
	return err
}

func (s *ChromemStore) Insert(ctx context.Context, collection string, records []Record) error {
	col, err := s.getCollection(collection)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(records))
	for _, record := range records {
		metadata := make(map[string]string, len(record.Metadata))
		for k, v := range record.Metadata {
			metadata[k] = fmt.Sprint(v)
		}
		docs = append(docs, chromem.Document{
			ID:        record.ID,
			Content:   record.Content,
			Metadata:  metadata,
			Embedding: record.Vector,
		})
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to insert documents: %w", err)
	}
	return s.persist()
}

func (s *ChromemStore) QueryNearest(ctx context.Context, collection string, vector []float32, metric DistanceMetric, limit int, filter map[string]any) ([]Row, error) {
	if metric != MetricCosine {
		return nil, fmt.Errorf("chromem vector store supports only the %s metric, got %s", MetricCosine, metric)
	}
	col, err := s.getCollection(collection)
	if err != nil {
		return nil, err
	}

	var where map[string]string
	if len(filter) > 0 {
		where = make(map[string]string, len(filter))
		for k, v := range filter {
			where[k] = fmt.Sprint(v)
		}
	}

	// chromem rejects a topK above the document count.
	if count := col.Count(); limit > count {
		limit = count
	}
	if limit == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, limit, where, nil)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbor query failed: %w", err)
	}

	rows := make([]Row, 0, len(results))
	for _, r := range results {
		metadata := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		rows = append(rows, Row{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: metadata,
			Distance: 1 - float64(r.Similarity),
		})
	}
	return rows, nil
}

func (s *ChromemStore) QueryTextRank(ctx context.Context, collection string, query string, limit int, filter map[string]any) ([]TextRow, error) {
	return nil, ErrTextRankUnsupported
}

func (s *ChromemStore) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	col, err := s.getCollection(collection)
	if err != nil {
		return err
	}

	where := make(map[string]string, len(filter))
	for k, v := range filter {
		where[k] = fmt.Sprint(v)
	}
	if err := col.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("failed to delete by filter: %w", err)
	}
	return s.persist()
}

func (s *ChromemStore) Close() error {
	return s.persist()
}

func (s *ChromemStore) persist() error {
	if s.persistPath == "" {
		return nil
	}
	dbPath := chromemDBPath(s.persistPath, s.compress)
	//nolint:staticcheck // Export is deprecated but matches the load path.
	if err := s.db.Export(dbPath, s.compress, ""); err != nil {
		return fmt.Errorf("failed to persist database: %w", err)
	}
	return nil
}

var _ Store = (*ChromemStore)(nil)
