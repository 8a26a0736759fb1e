package embedders

import (
	"crypto/md5"
	"encoding/hex"
	"math"
	"math/rand"
	"strconv"
)

// LocalEmbedder produces deterministic pseudo-embeddings without any
// external service. The same text always maps to the same unit vector,
// so similarity search behaves consistently across runs.
type LocalEmbedder struct {
	model     string
	dimension int
}

// NewLocalEmbedder creates a local deterministic embedder.
func NewLocalEmbedder(cfg Config) (*LocalEmbedder, error) {
	cfg.SetDefaults()
	return &LocalEmbedder{
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

func (e *LocalEmbedder) Embed(text string) ([]float32, error) {
	return e.generate(text), nil
}

func (e *LocalEmbedder) EmbedBatch(texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.generate(text)
	}
	return vectors, nil
}

// generate seeds a Gaussian sample from the text's MD5 digest and
// normalizes it to unit length.
func (e *LocalEmbedder) generate(text string) []float32 {
	digest := md5.Sum([]byte(text))
	seed, err := strconv.ParseInt(hex.EncodeToString(digest[:])[:8], 16, 64)
	if err != nil {
		// Eight hex digits always parse; keep a stable fallback anyway.
		seed = int64(digest[0])
	}

	rng := rand.New(rand.NewSource(seed))
	vector := make([]float32, e.dimension)
	var norm float64
	for i := range vector {
		v := rng.NormFloat64()
		vector[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vector
	}
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / norm)
	}
	return vector
}

func (e *LocalEmbedder) GetDimension() int {
	return e.dimension
}

func (e *LocalEmbedder) GetModelName() string {
	return e.model
}

func (e *LocalEmbedder) Close() error {
	return nil
}
