// Package memorybank layers a text-level memory API over the vector item
// store: callers hand over prose, the bank embeds it, stores it with its
// metadata, and recalls the closest memories for a query. It is the typical
// consumer of the vecdb facade and exercises it end to end.
package memorybank

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/memlattice/go-vecdb/src/embed"
	"github.com/memlattice/go-vecdb/src/vecdb"
)

// DefaultRecallLimit bounds Recall when the caller does not supply a limit.
const DefaultRecallLimit = 8

// Memory is one remembered text with its stored context.
type Memory struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score,omitempty"`
}

// Bank binds an embedder to a vector item store.
type Bank struct {
	db       vecdb.VecDB
	embedder embed.Embedder
	metrics  Metrics
}

// New wires a bank over db. A nil embedder falls back to the deterministic
// dummy so the bank always works offline.
func New(db vecdb.VecDB, embedder embed.Embedder) (*Bank, error) {
	if db == nil {
		return nil, fmt.Errorf("memorybank: nil store")
	}
	if embedder == nil {
		embedder = embed.DummyEmbedder{}
	}
	return &Bank{db: db, embedder: embedder}, nil
}

// Remember embeds text and stores it, returning the new memory's id. The
// creation timestamp is recorded under "created_at" unless the caller set one.
func (b *Bank) Remember(ctx context.Context, text string, metadata map[string]any) (string, error) {
	if text == "" {
		return "", fmt.Errorf("memorybank: empty text")
	}
	vector, err := b.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("memorybank: embed: %w", err)
	}
	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	if _, ok := meta["created_at"]; !ok {
		meta["created_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	id := uuid.NewString()
	item := vecdb.Item{
		ID:     id,
		Vector: vector,
		Payload: map[string]any{
			vecdb.MetadataKey: meta,
			vecdb.MemoryKey:   text,
		},
	}
	if err := b.db.Add(ctx, []vecdb.Item{item}); err != nil {
		return "", fmt.Errorf("memorybank: store: %w", err)
	}
	b.metrics.IncRemembered()
	return id, nil
}

// Recall embeds query and returns the closest memories, best first. filter
// narrows by metadata equality; limit <= 0 uses DefaultRecallLimit.
func (b *Bank) Recall(ctx context.Context, query string, limit int, filter map[string]any) ([]Memory, error) {
	if limit <= 0 {
		limit = DefaultRecallLimit
	}
	vector, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memorybank: embed query: %w", err)
	}
	items, err := b.db.Search(ctx, vector, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("memorybank: search: %w", err)
	}
	memories := make([]Memory, len(items))
	for i, item := range items {
		memories[i] = memoryFromItem(item)
	}
	b.metrics.IncRecalled(len(memories))
	return memories, nil
}

// Get returns one memory by id, or (nil, nil) when absent.
func (b *Bank) Get(ctx context.Context, id string) (*Memory, error) {
	item, err := b.db.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	mem := memoryFromItem(*item)
	return &mem, nil
}

// Retag rewrites a memory's metadata without touching its text or vector.
func (b *Bank) Retag(ctx context.Context, id string, metadata map[string]any) error {
	err := b.db.Update(ctx, id, vecdb.Item{
		ID:      id,
		Payload: map[string]any{vecdb.MetadataKey: metadata},
	})
	if err != nil {
		return fmt.Errorf("memorybank: retag: %w", err)
	}
	b.metrics.IncUpdated()
	return nil
}

// Forget removes memories by id. Unknown ids are ignored.
func (b *Bank) Forget(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := b.db.Delete(ctx, ids); err != nil {
		return fmt.Errorf("memorybank: forget: %w", err)
	}
	b.metrics.IncForgotten(len(ids))
	return nil
}

// Metrics returns a snapshot of the bank's counters.
func (b *Bank) Metrics() MetricsSnapshot { return b.metrics.Snapshot() }

func memoryFromItem(item vecdb.Item) Memory {
	return Memory{
		ID:       item.ID,
		Text:     item.Memory(),
		Metadata: item.Metadata(),
		Score:    item.Score,
	}
}
