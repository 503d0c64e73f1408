package loaf

import "context"

// This file defines the public extension interfaces. They deliberately
// import nothing from internal/ so that external implementations never
// depend on substrate internals.

// LLMClient generates text for the autogen shaping stage. Implementations
// must be safe for concurrent use.
type LLMClient interface {
	// Complete returns the model's completion for a prompt.
	Complete(ctx context.Context, prompt string) (string, error)
}

// EmbeddingProvider converts text into embedding vectors.
//
// Uses []float32 rather than a vector-library type so external
// implementations don't need any extra dependency.
type EmbeddingProvider interface {
	// Embed generates a single embedding vector from text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimensionality.
	Dimensions() int
}

// PersistenceStore stores opaque snapshot blobs. Supplying one replaces the
// built-in SQLite/in-memory snapshot store.
type PersistenceStore interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
