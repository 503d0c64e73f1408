package loaf

import (
	"log/slog"
	"time"
)

// Option configures New(). Unexported fields — callers use the With*
// functions.
type Option func(*resolvedOptions)

type resolvedOptions struct {
	logger       *slog.Logger
	version      string
	seed         string
	busCapacity  int
	budgetWindow time.Duration
	budgetLimit  int
	snapshotPath string
	llm          LLMClient
	embedder     EmbeddingProvider
	store        PersistenceStore
	mcpActor     *Actor
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the reported version string. Defaults to "dev".
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithSeed overrides the replay seed (LOAF_SEED).
func WithSeed(seed string) Option {
	return func(o *resolvedOptions) { o.seed = seed }
}

// WithBusCapacity overrides the event ring capacity (LOAF_BUS_CAPACITY).
func WithBusCapacity(capacity int) Option {
	return func(o *resolvedOptions) { o.busCapacity = capacity }
}

// WithBudget overrides the admission budget window and limit
// (LOAF_BUDGET_WINDOW / LOAF_BUDGET_LIMIT).
func WithBudget(window time.Duration, limit int) Option {
	return func(o *resolvedOptions) {
		o.budgetWindow = window
		o.budgetLimit = limit
	}
}

// WithSnapshotPath overrides the SQLite snapshot file (LOAF_SNAPSHOT_PATH).
func WithSnapshotPath(path string) Option {
	return func(o *resolvedOptions) { o.snapshotPath = path }
}

// WithLLMClient plugs in an external LLM for autogen shaping, replacing the
// Ollama auto-detect.
func WithLLMClient(c LLMClient) Option {
	return func(o *resolvedOptions) { o.llm = c }
}

// WithEmbeddingProvider plugs in an external embedding backend, replacing
// the Ollama auto-detect.
func WithEmbeddingProvider(p EmbeddingProvider) Option {
	return func(o *resolvedOptions) { o.embedder = p }
}

// WithPersistenceStore plugs in an external snapshot store, replacing the
// built-in SQLite/in-memory one.
func WithPersistenceStore(s PersistenceStore) Option {
	return func(o *resolvedOptions) { o.store = s }
}

// WithMCPActor sets the identity MCP tool calls write as. Defaults to a
// verified owner, since the MCP surface is the local host's own hands.
func WithMCPActor(a Actor) Option {
	return func(o *resolvedOptions) { o.mcpActor = &a }
}
