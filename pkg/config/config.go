// Package config defines the root configuration for a meridian
// deployment and loads it from YAML with environment expansion.
package config

import (
	"fmt"

	"github.com/meridiandb/meridian/pkg/chunking"
	"github.com/meridiandb/meridian/pkg/collections"
	"github.com/meridiandb/meridian/pkg/embedders"
	"github.com/meridiandb/meridian/pkg/jobs"
	"github.com/meridiandb/meridian/pkg/observability"
	"github.com/meridiandb/meridian/pkg/vectorstore"
)

// Config is the root configuration. Every section applies its own
// defaults, so an empty file yields a working local deployment.
type Config struct {
	Logging     LoggingConfig               `yaml:"logging,omitempty" mapstructure:"logging"`
	Database    DatabaseConfig              `yaml:"database,omitempty" mapstructure:"database"`
	VectorStore vectorstore.Config          `yaml:"vector_store,omitempty" mapstructure:"vector_store"`
	Embedder    embedders.Config            `yaml:"embedder,omitempty" mapstructure:"embedder"`
	Chunking    chunking.Config             `yaml:"chunking,omitempty" mapstructure:"chunking"`
	Controller  jobs.ControllerConfig       `yaml:"controller,omitempty" mapstructure:"controller"`
	Queue       jobs.QueueConfig            `yaml:"queue,omitempty" mapstructure:"queue"`
	Server      ServerConfig                `yaml:"server,omitempty" mapstructure:"server"`
	Metrics     observability.MetricsConfig `yaml:"metrics,omitempty" mapstructure:"metrics"`

	// Collections statically defines the collection catalog. Used when
	// no external catalog database serves collection lookups.
	Collections []CollectionConfig `yaml:"collections,omitempty" mapstructure:"collections"`
}

// CollectionConfig is one statically configured collection. Unset
// model and dimension inherit the embedder section.
type CollectionConfig struct {
	Name           string `yaml:"name" mapstructure:"name"`
	Dimension      int    `yaml:"dimension,omitempty" mapstructure:"dimension"`
	EmbeddingModel string `yaml:"embedding_model,omitempty" mapstructure:"embedding_model"`
	DistanceMetric string `yaml:"distance_metric,omitempty" mapstructure:"distance_metric"`
}

// Collection converts the entry to a catalog reference.
func (c CollectionConfig) Collection() collections.Collection {
	return collections.Collection{
		ID:             c.Name,
		Name:           c.Name,
		Dimension:      c.Dimension,
		EmbeddingModel: c.EmbeddingModel,
		DistanceMetric: vectorstore.DistanceMetric(c.DistanceMetric),
	}
}

// LoggingConfig controls the process-wide slog logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level,omitempty" mapstructure:"level"`

	// Format is "simple" (level + message) or "verbose" (timestamps).
	Format string `yaml:"format,omitempty" mapstructure:"format"`

	// File redirects logs to a file instead of stderr when set.
	File string `yaml:"file,omitempty" mapstructure:"file"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	switch c.Format {
	case "simple", "verbose":
	default:
		return fmt.Errorf("invalid log format: %s", c.Format)
	}
	return nil
}

// DatabaseConfig locates the relational database backing job state
// and the collection catalog.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver,omitempty" mapstructure:"driver"`

	// DSN is the driver connection string.
	DSN string `yaml:"dsn,omitempty" mapstructure:"dsn"`
}

func (c *DatabaseConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.DSN == "" && c.Driver == "sqlite" {
		c.DSN = "meridian.db"
	}
}

func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("database dsn is required for driver %s", c.Driver)
	}
	return nil
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host string `yaml:"host,omitempty" mapstructure:"host"`
	Port int    `yaml:"port,omitempty" mapstructure:"port"`

	// UploadDir receives uploaded documents before ingestion.
	UploadDir string `yaml:"upload_dir,omitempty" mapstructure:"upload_dir"`

	// MaxUploadBytes caps a single upload. Zero takes the default.
	MaxUploadBytes int64 `yaml:"max_upload_bytes,omitempty" mapstructure:"max_upload_bytes"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = 32 << 20
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Port)
	}
	if c.MaxUploadBytes < 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	return nil
}

// SetDefaults applies defaults across every section.
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()
	c.Database.SetDefaults()
	c.VectorStore.SetDefaults()
	c.Embedder.SetDefaults()
	c.Chunking.SetDefaults()
	c.Controller.SetDefaults()
	c.Queue.SetDefaults()
	c.Server.SetDefaults()

	for i := range c.Collections {
		if c.Collections[i].EmbeddingModel == "" {
			c.Collections[i].EmbeddingModel = c.Embedder.Model
		}
		if c.Collections[i].Dimension == 0 {
			c.Collections[i].Dimension = c.Embedder.Dimension
		}
		if c.Collections[i].DistanceMetric == "" {
			c.Collections[i].DistanceMetric = string(vectorstore.MetricCosine)
		}
	}
}

// Validate checks every section. Call after SetDefaults.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.VectorStore.Validate(); err != nil {
		return fmt.Errorf("vector_store: %w", err)
	}
	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	for _, col := range c.Collections {
		if err := col.Collection().Validate(); err != nil {
			return fmt.Errorf("collections: %w", err)
		}
	}
	return nil
}

// Default returns a fully defaulted configuration for zero-config
// local use: sqlite job store, embedded chromem vectors, local
// embeddings.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}
