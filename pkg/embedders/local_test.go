package embedders

import (
	"math"
	"testing"
)

func TestLocalEmbedder_Deterministic(t *testing.T) {
	embedder, err := NewLocalEmbedder(Config{Model: "test-model", Dimension: 64})
	if err != nil {
		t.Fatalf("NewLocalEmbedder: %v", err)
	}

	first, err := embedder.Embed("the same input text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	second, err := embedder.Embed("the same input text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if len(first) != 64 {
		t.Fatalf("dimension = %d, want 64", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("component %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestLocalEmbedder_DifferentTextsDiffer(t *testing.T) {
	embedder, _ := NewLocalEmbedder(Config{Model: "test-model", Dimension: 32})

	a, _ := embedder.Embed("first text")
	b, _ := embedder.Embed("second text")

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("distinct texts produced identical vectors")
	}
}

func TestLocalEmbedder_UnitNorm(t *testing.T) {
	embedder, _ := NewLocalEmbedder(Config{Model: "test-model", Dimension: 128})

	vector, err := embedder.Embed("normalize me")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if math.Abs(norm-1.0) > 1e-5 {
		t.Fatalf("norm = %v, want 1.0", norm)
	}
}

func TestLocalEmbedder_BatchMatchesSingle(t *testing.T) {
	embedder, _ := NewLocalEmbedder(Config{Model: "test-model", Dimension: 16})

	texts := []string{"alpha", "beta", "gamma"}
	batch, err := embedder.EmbedBatch(texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(batch) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(batch), len(texts))
	}

	for i, text := range texts {
		single, _ := embedder.Embed(text)
		for j := range single {
			if batch[i][j] != single[j] {
				t.Fatalf("batch vector %d differs from single embed at %d", i, j)
			}
		}
	}
}

func TestSource_FallsBackToLocalWithoutKey(t *testing.T) {
	source := NewSource(Config{})
	defer source.Close()

	provider, err := source.ProviderFor("any-model", 48)
	if err != nil {
		t.Fatalf("ProviderFor: %v", err)
	}
	if _, ok := provider.(*LocalEmbedder); !ok {
		t.Fatalf("expected *LocalEmbedder, got %T", provider)
	}
	if provider.GetDimension() != 48 {
		t.Errorf("dimension = %d, want 48", provider.GetDimension())
	}
	if provider.GetModelName() != "any-model" {
		t.Errorf("model = %q, want any-model", provider.GetModelName())
	}
}

func TestSource_CachesProviders(t *testing.T) {
	source := NewSource(Config{})
	defer source.Close()

	first, err := source.ProviderFor("model-a", 32)
	if err != nil {
		t.Fatalf("ProviderFor: %v", err)
	}
	second, err := source.ProviderFor("model-a", 32)
	if err != nil {
		t.Fatalf("ProviderFor: %v", err)
	}
	if first != second {
		t.Error("expected cached provider instance")
	}

	other, err := source.ProviderFor("model-a", 64)
	if err != nil {
		t.Fatalf("ProviderFor: %v", err)
	}
	if other == first {
		t.Error("different dimension must get its own provider")
	}
}
