package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore keeps vectors in a qdrant server. Text rank queries are
// unsupported; hybrid search degrades to vector similarity.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore opens a qdrant-backed vector store.
func NewQdrantStore(cfg Config) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.EnableTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &QdrantStore{client: client}, nil
}

func qdrantDistance(metric DistanceMetric) (qdrant.Distance, error) {
	switch metric {
	case MetricCosine:
		return qdrant.Distance_Cosine, nil
	case MetricEuclidean:
		return qdrant.Distance_Euclid, nil
	case MetricDotProduct:
		return qdrant.Distance_Dot, nil
	default:
		return qdrant.Distance_UnknownDistance, fmt.Errorf("unknown distance metric: %s", metric)
	}
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, collection string, dimension int, metric DistanceMetric) error {
	distance, err := qdrantDistance(metric)
	if err != nil {
		return err
	}

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check if collection exists: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: distance,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func (s *QdrantStore) Insert(ctx context.Context, collection string, records []Record) error {
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, record := range records {
		payload := make(map[string]*qdrant.Value, len(record.Metadata)+1)
		for key, value := range record.Metadata {
			val, err := qdrant.NewValue(value)
			if err != nil {
				return fmt.Errorf("failed to convert metadata value for key %s: %w", key, err)
			}
			payload[key] = val
		}
		contentVal, err := qdrant.NewValue(record.Content)
		if err != nil {
			return fmt.Errorf("failed to convert content for %s: %w", record.ID, err)
		}
		payload["content"] = contentVal

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(record.ID),
			Vectors: qdrant.NewVectors(record.Vector...),
			Payload: payload,
		})
	}

	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

func (s *QdrantStore) QueryNearest(ctx context.Context, collection string, vector []float32, metric DistanceMetric, limit int, filter map[string]any) ([]Row, error) {
	if _, err := qdrantDistance(metric); err != nil {
		return nil, err
	}

	searchRequest := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filter) > 0 {
		searchRequest.Filter = buildQdrantFilter(filter)
	}

	searchResult, err := s.client.GetPointsClient().Search(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	rows := make([]Row, 0, len(searchResult.Result))
	for _, point := range searchResult.Result {
		metadata := decodePayload(point.Payload)
		content, _ := metadata["content"].(string)
		delete(metadata, "content")

		rows = append(rows, Row{
			ID:       pointID(point.Id),
			Content:  content,
			Metadata: metadata,
			Distance: scoreToDistance(metric, float64(point.Score)),
		})
	}
	return rows, nil
}

// scoreToDistance converts qdrant's similarity score back into the
// metric's raw distance. Qdrant reports cosine similarity and inner
// product as higher-is-better scores, and euclidean as a negated
// distance.
func scoreToDistance(metric DistanceMetric, score float64) float64 {
	switch metric {
	case MetricCosine:
		return 1 - score
	case MetricDotProduct:
		return -score
	case MetricEuclidean:
		return -score
	default:
		return score
	}
}

func (s *QdrantStore) QueryTextRank(ctx context.Context, collection string, query string, limit int, filter map[string]any) ([]TextRow, error) {
	return nil, ErrTextRankUnsupported
}

func (s *QdrantStore) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	if _, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: buildQdrantFilter(filter),
			},
		},
	}); err != nil {
		return fmt.Errorf("failed to delete points by filter from collection %s: %w", collection, err)
	}
	return nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func buildQdrantFilter(filter map[string]any) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		val, err := qdrant.NewValue(value)
		if err != nil {
			continue
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{
							Keyword: val.GetStringValue(),
						},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func pointID(id *qdrant.PointId) string {
	if id == nil || id.PointIdOptions == nil {
		return ""
	}
	switch idType := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return idType.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", idType.Num)
	}
	return ""
}

func decodePayload(payload map[string]*qdrant.Value) map[string]any {
	metadata := make(map[string]any, len(payload))
	for key, value := range payload {
		switch v := value.Kind.(type) {
		case *qdrant.Value_StringValue:
			metadata[key] = v.StringValue
		case *qdrant.Value_IntegerValue:
			metadata[key] = v.IntegerValue
		case *qdrant.Value_DoubleValue:
			metadata[key] = v.DoubleValue
		case *qdrant.Value_BoolValue:
			metadata[key] = v.BoolValue
		case *qdrant.Value_ListValue:
			if v.ListValue != nil {
				list := make([]any, len(v.ListValue.Values))
				for i, item := range v.ListValue.Values {
					switch itemVal := item.Kind.(type) {
					case *qdrant.Value_StringValue:
						list[i] = itemVal.StringValue
					case *qdrant.Value_IntegerValue:
						list[i] = itemVal.IntegerValue
					case *qdrant.Value_DoubleValue:
						list[i] = itemVal.DoubleValue
					case *qdrant.Value_BoolValue:
						list[i] = itemVal.BoolValue
					default:
						list[i] = item
					}
				}
				metadata[key] = list
			}
		default:
			metadata[key] = value
		}
	}
	return metadata
}

var _ Store = (*QdrantStore)(nil)
