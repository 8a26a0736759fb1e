// Package search serves similarity and hybrid retrieval over stored
// vectors.
package search

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/meridiandb/meridian/pkg/collections"
	"github.com/meridiandb/meridian/pkg/embedders"
	"github.com/meridiandb/meridian/pkg/logger"
	"github.com/meridiandb/meridian/pkg/observability"
	"github.com/meridiandb/meridian/pkg/vectorstore"
)

const (
	defaultLimit        = 10
	defaultVectorWeight = 0.7
	defaultTextWeight   = 0.3
)

// Request describes one search. Exactly one of QueryVector and
// QueryText drives similarity search; hybrid search requires
// QueryText and uses QueryVector when present instead of embedding.
type Request struct {
	Collection  string         `json:"collection"`
	QueryText   string         `json:"query_text,omitempty"`
	QueryVector []float32      `json:"query_vector,omitempty"`
	Limit       int            `json:"limit,omitempty"`
	Filter      map[string]any `json:"filter,omitempty"`

	// VectorWeight and TextWeight blend hybrid scores. Zero values
	// take the 0.7/0.3 defaults.
	VectorWeight float64 `json:"vector_weight,omitempty"`
	TextWeight   float64 `json:"text_weight,omitempty"`
}

func (r *Request) limit() int {
	if r.Limit <= 0 {
		return defaultLimit
	}
	return r.Limit
}

func (r *Request) weights() (vector, text float64) {
	vector, text = r.VectorWeight, r.TextWeight
	if vector == 0 && text == 0 {
		return defaultVectorWeight, defaultTextWeight
	}
	return vector, text
}

// Result is one scored search hit. Score is higher-is-better under
// every metric.
type Result struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Engine executes searches against a collection's vector store.
type Engine struct {
	catalog   collections.Provider
	vectors   vectorstore.Store
	embedders *embedders.Source
	metrics   observability.Metrics
	logger    *slog.Logger
}

// NewEngine creates a search engine.
func NewEngine(catalog collections.Provider, vectors vectorstore.Store, source *embedders.Source) *Engine {
	return &Engine{
		catalog:   catalog,
		vectors:   vectors,
		embedders: source,
		metrics:   observability.GetGlobalMetrics(),
		logger:    logger.GetLogger(),
	}
}

// Similarity runs nearest neighbor search. A query vector is checked
// against the collection dimension; query text is embedded with the
// collection's model.
func (e *Engine) Similarity(ctx context.Context, req Request) ([]Result, error) {
	started := time.Now()
	collection, err := e.catalog.GetCollection(ctx, req.Collection)
	if err != nil {
		return nil, err
	}

	vector, err := e.queryVector(req, collection)
	if err != nil {
		return nil, err
	}

	rows, err := e.vectors.QueryNearest(ctx, collection.Name, vector, collection.DistanceMetric, req.limit(), req.Filter)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, Result{
			ID:       row.ID,
			Content:  row.Content,
			Score:    distanceToScore(collection.DistanceMetric, row.Distance),
			Metadata: row.Metadata,
		})
	}

	e.metrics.RecordSearch(ctx, "similarity", time.Since(started), len(results))
	e.recordAnalytics(ctx, req, len(results), time.Since(started))
	return results, nil
}

// Hybrid blends vector similarity with full-text relevance when the
// request carries both a vector and query text. With text alone it
// degrades to text-relevance ranking, with a vector alone to pure
// similarity. Results present on only one side keep that side's
// weighted score. Stores without text ranking degrade to similarity,
// embedding the query text.
func (e *Engine) Hybrid(ctx context.Context, req Request) ([]Result, error) {
	hasVector := len(req.QueryVector) > 0
	hasText := strings.TrimSpace(req.QueryText) != ""

	if !hasText {
		return e.Similarity(ctx, req)
	}
	if !hasVector {
		results, err := e.TextRank(ctx, req)
		if errors.Is(err, vectorstore.ErrTextRankUnsupported) {
			e.logger.Debug("text rank unavailable, degrading hybrid search to similarity",
				"collection", req.Collection)
			return e.Similarity(ctx, req)
		}
		return results, err
	}

	started := time.Now()
	collection, err := e.catalog.GetCollection(ctx, req.Collection)
	if err != nil {
		return nil, err
	}

	vector, err := e.queryVector(req, collection)
	if err != nil {
		return nil, err
	}

	textRows, textErr := e.vectors.QueryTextRank(ctx, collection.Name, req.QueryText, req.limit(), req.Filter)
	if textErr != nil && !errors.Is(textErr, vectorstore.ErrTextRankUnsupported) {
		return nil, textErr
	}
	if errors.Is(textErr, vectorstore.ErrTextRankUnsupported) {
		e.logger.Debug("text rank unavailable, degrading hybrid search to similarity",
			"collection", collection.Name)
		return e.Similarity(ctx, req)
	}

	rows, err := e.vectors.QueryNearest(ctx, collection.Name, vector, collection.DistanceMetric, req.limit(), req.Filter)
	if err != nil {
		return nil, err
	}

	vectorWeight, textWeight := req.weights()
	merged := make(map[string]*Result)
	order := make([]string, 0, len(rows)+len(textRows))

	for _, row := range rows {
		score := distanceToScore(collection.DistanceMetric, row.Distance)
		merged[row.ID] = &Result{
			ID:       row.ID,
			Content:  row.Content,
			Score:    vectorWeight * score,
			Metadata: row.Metadata,
		}
		order = append(order, row.ID)
	}
	for _, row := range textRows {
		if existing, ok := merged[row.ID]; ok {
			existing.Score += textWeight * row.Relevance
			continue
		}
		merged[row.ID] = &Result{
			ID:       row.ID,
			Content:  row.Content,
			Score:    textWeight * row.Relevance,
			Metadata: row.Metadata,
		}
		order = append(order, row.ID)
	}

	results := make([]Result, 0, len(order))
	for _, id := range order {
		result := *merged[id]
		result.Score = roundScore(result.Score)
		results = append(results, result)
	}
	sort.SliceStable(results, func(i, k int) bool {
		return results[i].Score > results[k].Score
	})
	if len(results) > req.limit() {
		results = results[:req.limit()]
	}

	e.metrics.RecordSearch(ctx, "hybrid", time.Since(started), len(results))
	e.recordAnalytics(ctx, req, len(results), time.Since(started))
	return results, nil
}

// TextRank runs pure full-text relevance search.
func (e *Engine) TextRank(ctx context.Context, req Request) ([]Result, error) {
	if req.QueryText == "" {
		return nil, NewInvalidQueryError("query text is required for text search")
	}

	started := time.Now()
	collection, err := e.catalog.GetCollection(ctx, req.Collection)
	if err != nil {
		return nil, err
	}

	rows, err := e.vectors.QueryTextRank(ctx, collection.Name, req.QueryText, req.limit(), req.Filter)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, Result{
			ID:       row.ID,
			Content:  row.Content,
			Score:    roundScore(row.Relevance),
			Metadata: row.Metadata,
		})
	}

	e.metrics.RecordSearch(ctx, "text", time.Since(started), len(results))
	e.recordAnalytics(ctx, req, len(results), time.Since(started))
	return results, nil
}

// queryVector resolves the query vector from the request: an explicit
// vector is dimension-checked, query text is embedded.
func (e *Engine) queryVector(req Request, collection collections.Collection) ([]float32, error) {
	if len(req.QueryVector) > 0 {
		if len(req.QueryVector) != collection.Dimension {
			return nil, &DimensionMismatchError{
				Collection: collection.Name,
				Expected:   collection.Dimension,
				Actual:     len(req.QueryVector),
			}
		}
		return req.QueryVector, nil
	}
	if req.QueryText == "" {
		return nil, NewInvalidQueryError("either query text or a query vector is required")
	}

	provider, err := e.embedders.ProviderFor(collection.EmbeddingModel, collection.Dimension)
	if err != nil {
		return nil, err
	}
	return provider.Embed(req.QueryText)
}

// distanceToScore converts a raw store distance into a
// higher-is-better score rounded to six decimals.
func distanceToScore(metric vectorstore.DistanceMetric, distance float64) float64 {
	var score float64
	switch metric {
	case vectorstore.MetricCosine:
		score = 1 - distance
	case vectorstore.MetricDotProduct:
		score = -distance
	default:
		score = 1 / (1 + distance)
	}
	return roundScore(score)
}

func roundScore(score float64) float64 {
	return math.Round(score*1e6) / 1e6
}

// recordAnalytics writes one query record when the store supports it.
// Failures are logged and swallowed; analytics never fail a search.
func (e *Engine) recordAnalytics(ctx context.Context, req Request, results int, latency time.Duration) {
	sink, ok := e.vectors.(vectorstore.Analytics)
	if !ok {
		return
	}
	record := vectorstore.QueryRecord{
		Collection:  req.Collection,
		QueryText:   req.QueryText,
		HasVector:   len(req.QueryVector) > 0,
		ResultCount: results,
		Latency:     latency,
		Filter:      req.Filter,
	}
	if err := sink.RecordQuery(ctx, record); err != nil {
		e.logger.Debug("failed to record query analytics", "error", err)
	}
}
