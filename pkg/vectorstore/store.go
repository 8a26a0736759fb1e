// Package vectorstore persists embedding vectors and serves nearest
// neighbor and text rank queries over them.
package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrTextRankUnsupported is returned by backends without native text
// ranking.
var ErrTextRankUnsupported = errors.New("text rank queries are not supported by this vector store")

// DistanceMetric selects how vector distance is measured.
type DistanceMetric string

const (
	MetricCosine     DistanceMetric = "cosine"
	MetricEuclidean  DistanceMetric = "euclidean"
	MetricDotProduct DistanceMetric = "dot_product"
)

// Operator returns the pgvector distance operator for the metric.
func (m DistanceMetric) Operator() (string, error) {
	switch m {
	case MetricCosine:
		return "<=>", nil
	case MetricEuclidean:
		return "<->", nil
	case MetricDotProduct:
		return "<#>", nil
	default:
		return "", fmt.Errorf("unknown distance metric: %s", m)
	}
}

// Valid reports whether the metric is a known one.
func (m DistanceMetric) Valid() bool {
	_, err := m.Operator()
	return err == nil
}

// Record is one vector to be stored.
type Record struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]any
}

// Row is one nearest neighbor result. Distance is in the metric's raw
// units; score transforms happen in the search engine.
type Row struct {
	ID       string
	Content  string
	Metadata map[string]any
	Distance float64
}

// TextRow is one text rank result.
type TextRow struct {
	ID        string
	Content   string
	Metadata  map[string]any
	Relevance float64
}

// QueryRecord is one analytics entry written after a search.
type QueryRecord struct {
	Collection  string
	QueryText   string
	HasVector   bool
	ResultCount int
	Latency     time.Duration
	Filter      map[string]any
}

// Store is the narrow interface the pipeline needs from a vector
// backend.
type Store interface {
	// EnsureCollection makes the collection usable for the given
	// dimension and metric, creating backing structures if missing.
	EnsureCollection(ctx context.Context, collection string, dimension int, metric DistanceMetric) error

	// Insert stores records in a collection.
	Insert(ctx context.Context, collection string, records []Record) error

	// QueryNearest returns the limit nearest rows to vector under the
	// metric, optionally restricted by a metadata filter.
	QueryNearest(ctx context.Context, collection string, vector []float32, metric DistanceMetric, limit int, filter map[string]any) ([]Row, error)

	// QueryTextRank ranks rows by full-text relevance to query.
	// Backends without text search return ErrTextRankUnsupported.
	QueryTextRank(ctx context.Context, collection string, query string, limit int, filter map[string]any) ([]TextRow, error)

	// DeleteByFilter removes all rows matching the metadata filter.
	DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error

	// Close releases backend resources.
	Close() error
}

// Analytics is implemented by backends that can record query
// analytics. The search engine treats recording as best-effort.
type Analytics interface {
	RecordQuery(ctx context.Context, record QueryRecord) error
}

// Fingerprint returns a stable content hash of a vector. Components
// are serialized at fixed precision so the same vector always hashes
// identically regardless of float formatting noise.
func Fingerprint(vector []float32) string {
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(float64(v), 'f', 8, 64)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}

// Config selects and configures a vector store backend.
type Config struct {
	// Type selects the backend: "postgres", "qdrant" or "chromem".
	Type string `yaml:"type,omitempty" mapstructure:"type"`

	// DSN is the Postgres connection string.
	DSN string `yaml:"dsn,omitempty" mapstructure:"dsn"`

	// Host and Port locate a qdrant server.
	Host string `yaml:"host,omitempty" mapstructure:"host"`
	Port int    `yaml:"port,omitempty" mapstructure:"port"`

	// APIKey authenticates against qdrant.
	APIKey string `yaml:"api_key,omitempty" mapstructure:"api_key"`

	// EnableTLS turns on TLS for qdrant connections.
	EnableTLS bool `yaml:"enable_tls,omitempty" mapstructure:"enable_tls"`

	// PersistPath enables file persistence for the chromem backend.
	PersistPath string `yaml:"persist_path,omitempty" mapstructure:"persist_path"`

	// Compress enables gzip compression for chromem persistence.
	Compress bool `yaml:"compress,omitempty" mapstructure:"compress"`
}

// SetDefaults applies default values to unset fields.
func (c *Config) SetDefaults() {
	if c.Type == "" {
		c.Type = "chromem"
	}
	if c.Type == "qdrant" {
		if c.Host == "" {
			c.Host = "localhost"
		}
		if c.Port == 0 {
			c.Port = 6334
		}
	}
}

// Validate checks backend settings.
func (c *Config) Validate() error {
	switch c.Type {
	case "postgres":
		if c.DSN == "" {
			return fmt.Errorf("postgres vector store requires a DSN")
		}
	case "qdrant", "chromem":
	default:
		return fmt.Errorf("unsupported vector store type: %s", c.Type)
	}
	return nil
}

// New creates the configured vector store backend.
func New(cfg Config) (Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case "postgres":
		return NewPostgresStore(cfg)
	case "qdrant":
		return NewQdrantStore(cfg)
	case "chromem":
		return NewChromemStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported vector store type: %s", cfg.Type)
	}
}
