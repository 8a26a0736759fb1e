package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]byte("{}"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Logging.Level != "info" || cfg.Logging.Format != "simple" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "meridian.db" {
		t.Errorf("database defaults = %+v", cfg.Database)
	}
	if cfg.VectorStore.Type != "chromem" {
		t.Errorf("vector store default type = %s", cfg.VectorStore.Type)
	}
	if cfg.Embedder.Type != "local" {
		t.Errorf("embedder default type = %s", cfg.Embedder.Type)
	}
	if cfg.Controller.BatchSize != 50 {
		t.Errorf("controller batch size = %d", cfg.Controller.BatchSize)
	}
	if cfg.Queue.Workers != 4 || cfg.Queue.Capacity != 256 {
		t.Errorf("queue defaults = %+v", cfg.Queue)
	}
	if cfg.Server.Port != 8080 || cfg.Server.MaxUploadBytes != 32<<20 {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
}

func TestLoadYAML(t *testing.T) {
	raw := `
logging:
  level: debug
  format: verbose
database:
  driver: postgres
  dsn: postgres://localhost/meridian
vector_store:
  type: qdrant
embedder:
  type: openai
  model: text-embedding-3-large
  dimension: 3072
  api_key: sk-test
controller:
  batch_size: 10
server:
  port: 9090
`
	cfg, err := Load([]byte(raw))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %s", cfg.Logging.Level)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %s", cfg.Database.Driver)
	}
	if cfg.VectorStore.Type != "qdrant" || cfg.VectorStore.Port != 6334 {
		t.Errorf("vector store = %+v", cfg.VectorStore)
	}
	if cfg.Embedder.Model != "text-embedding-3-large" || cfg.Embedder.Dimension != 3072 {
		t.Errorf("embedder = %+v", cfg.Embedder)
	}
	if cfg.Controller.BatchSize != 10 {
		t.Errorf("batch size = %d", cfg.Controller.BatchSize)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("MERIDIAN_TEST_DSN", "postgres://env/db")
	t.Setenv("MERIDIAN_TEST_KEY", "sk-from-env")

	raw := `
database:
  driver: postgres
  dsn: ${MERIDIAN_TEST_DSN}
embedder:
  type: openai
  api_key: $MERIDIAN_TEST_KEY
server:
  upload_dir: ${MERIDIAN_TEST_UPLOADS:-/tmp/uploads}
`
	cfg, err := Load([]byte(raw))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.DSN != "postgres://env/db" {
		t.Errorf("dsn = %s", cfg.Database.DSN)
	}
	if cfg.Embedder.APIKey != "sk-from-env" {
		t.Errorf("api key = %s", cfg.Embedder.APIKey)
	}
	if cfg.Server.UploadDir != "/tmp/uploads" {
		t.Errorf("upload dir fallback = %s", cfg.Server.UploadDir)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bad log level", "logging:\n  level: loud\n", "logging:"},
		{"bad driver", "database:\n  driver: oracle\n", "database:"},
		{"postgres vectors need dsn", "vector_store:\n  type: postgres\n", "vector_store:"},
		{"bad port", "server:\n  port: 99999\n", "server:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.raw))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want section %q", err, tt.want)
			}
		})
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	_, err := Load([]byte(":: not a config ::"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCollectionsInheritEmbedderDefaults(t *testing.T) {
	raw := `
embedder:
  model: text-embedding-3-large
  dimension: 3072
collections:
  - name: docs
  - name: faqs
    dimension: 768
    embedding_model: custom-model
    distance_metric: euclidean
`
	cfg, err := Load([]byte(raw))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	docs := cfg.Collections[0].Collection()
	if docs.EmbeddingModel != "text-embedding-3-large" || docs.Dimension != 3072 {
		t.Errorf("inherited = %+v", docs)
	}
	if string(docs.DistanceMetric) != "cosine" {
		t.Errorf("default metric = %s", docs.DistanceMetric)
	}

	faqs := cfg.Collections[1].Collection()
	if faqs.Dimension != 768 || faqs.EmbeddingModel != "custom-model" || string(faqs.DistanceMetric) != "euclidean" {
		t.Errorf("explicit = %+v", faqs)
	}
}

func TestCollectionsValidated(t *testing.T) {
	_, err := Load([]byte("collections:\n  - name: docs\n    distance_metric: manhattan\n"))
	if err == nil {
		t.Fatal("expected error for unknown metric")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
