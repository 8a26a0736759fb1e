// Package chunking splits document text into ordered, bounded spans.
package chunking

import "fmt"

// Strategy identifies a chunking strategy.
type Strategy string

const (
	// StrategyFixedSize slides a fixed-width character window.
	StrategyFixedSize Strategy = "fixed_size"

	// StrategySentence accumulates whole sentences up to the size limit.
	StrategySentence Strategy = "sentence"

	// StrategyParagraph accumulates whole paragraphs up to the size limit.
	StrategyParagraph Strategy = "paragraph"

	// StrategyMarkdown follows heading structure and tags chunks with
	// their heading breadcrumb.
	StrategyMarkdown Strategy = "markdown"
)

// Chunk is one ordered text span of a document.
type Chunk struct {
	// Index is the chunk's position within the document, strictly
	// increasing from zero.
	Index int `json:"index"`

	// Text is the chunk content.
	Text string `json:"text"`

	// Breadcrumb records the active heading hierarchy for chunks
	// produced by the markdown strategy. Empty otherwise.
	Breadcrumb string `json:"breadcrumb,omitempty"`
}

// Chunker splits text into chunks under one strategy.
type Chunker interface {
	// Chunk splits text into ordered chunks. Empty or blank input
	// yields an empty slice, never a single empty chunk.
	Chunk(text string) []Chunk

	// Strategy returns the chunker's strategy name.
	Strategy() Strategy
}

// Config holds chunking parameters carried by an ingestion job.
type Config struct {
	Strategy Strategy `yaml:"strategy,omitempty" json:"chunking_strategy,omitempty" mapstructure:"chunking_strategy"`
	Size     int      `yaml:"size,omitempty" json:"chunk_size,omitempty" mapstructure:"chunk_size"`
	Overlap  int      `yaml:"overlap,omitempty" json:"chunk_overlap,omitempty" mapstructure:"chunk_overlap"`
}

// DefaultConfig returns the pipeline chunking defaults.
func DefaultConfig() Config {
	return Config{
		Strategy: StrategyFixedSize,
		Size:     500,
		Overlap:  50,
	}
}

// SetDefaults applies default values to unset fields.
func (c *Config) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = StrategyFixedSize
	}
	if c.Size <= 0 {
		c.Size = 500
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
}

// Validate checks size parameters. Strategy names are intentionally not
// validated here: unknown names fall back to fixed-size at selection.
func (c *Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("chunk overlap cannot be negative, got %d", c.Overlap)
	}
	return nil
}

// New creates a chunker for the configured strategy. Unrecognized
// strategy names fall back to fixed-size; selection never fails.
func New(cfg Config) Chunker {
	cfg.SetDefaults()

	switch cfg.Strategy {
	case StrategySentence:
		return &sentenceChunker{config: cfg}
	case StrategyParagraph:
		return &paragraphChunker{config: cfg}
	case StrategyMarkdown:
		return &markdownChunker{config: cfg}
	case StrategyFixedSize:
		return &fixedSizeChunker{config: cfg}
	default:
		cfg.Strategy = StrategyFixedSize
		return &fixedSizeChunker{config: cfg}
	}
}

// assignIndexes turns raw span texts into indexed chunks.
func assignIndexes(texts []string) []Chunk {
	chunks := make([]Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, Chunk{Index: i, Text: text})
	}
	return chunks
}
