// Package embed provides pluggable text-embedding providers for feeding the
// vector store. Providers are selected from the environment at startup; when
// nothing is configured a deterministic dummy keeps everything runnable
// offline.
package embed

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
)

// Embedder is a pluggable text-embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrNotSupported is returned by providers that answered without embeddings.
var ErrNotSupported = errors.New("embed: no embedding in provider response")

// DummyDimension is the width of the dummy provider's vectors.
const DummyDimension = 768

// DummyEmbedder hashes bytes into a fixed-width vector. Deterministic, zero
// dependencies, no semantics; for tests and offline runs.
type DummyEmbedder struct{}

func (DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return DummyEmbedding(text), nil
}

// DummyEmbedding is the raw form of DummyEmbedder for callers that cannot
// fail.
func DummyEmbedding(text string) []float32 {
	vec := make([]float32, DummyDimension)
	for i, ch := range []byte(text) {
		vec[i%DummyDimension] += float32(ch) / 255.0
	}
	return vec
}

// Auto chooses a provider from the environment:
//
//	VECDB_EMBED_PROVIDER=openai|google|gemini|ollama|voyage
//	VECDB_EMBED_MODEL=<model string>
//
// An unset or unusable provider falls back to DummyEmbedder.
func Auto() Embedder {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("VECDB_EMBED_PROVIDER")))
	model := strings.TrimSpace(os.Getenv("VECDB_EMBED_MODEL"))

	switch provider {
	case "openai":
		if e, err := NewOpenAIEmbedder(model); err == nil {
			return e
		}
	case "google", "gemini":
		if e, err := NewGeminiEmbedder(model); err == nil {
			return e
		}
	case "ollama":
		if e, err := NewOllamaEmbedder(model); err == nil {
			return e
		}
	case "voyage":
		if e, err := NewVoyageEmbedder(model); err == nil {
			return e
		}
	}

	log.Printf("embed: falling back to DummyEmbedder")
	return DummyEmbedder{}
}
