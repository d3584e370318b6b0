// Package vecdb exposes a vector-database backend through a uniform,
// item-oriented interface for long-term memory layers. A Store owns a handle
// to one backend collection and translates between the generic Item model and
// the backend's collection API, serializing nested payload values to scalar
// strings at the boundary because backend metadata fields are flat-scalar-only.
//
// Backend clients live in the subpackages (memstore, chroma, local, mongodb,
// pgvec); all of them satisfy the Client contract defined here.
package vecdb

import "context"

// VecDB is the operation contract of a vector item store. Store implements it;
// callers that only need the contract (e.g. the memorybank layer) should
// accept this interface.
type VecDB interface {
	// EnsureCollection creates the configured collection if absent.
	// Idempotent: an existing collection is a logged no-op.
	EnsureCollection(ctx context.Context) error

	// ListCollections returns the names of all collections on the backend.
	ListCollections(ctx context.Context) ([]string, error)

	// DeleteCollection removes a collection by name. Idempotence is
	// backend-dependent and not guaranteed by this facade.
	DeleteCollection(ctx context.Context, name string) error

	// CollectionExists probes for a collection. Any lookup failure is
	// reported as absence.
	CollectionExists(ctx context.Context, name string) bool

	// Search returns up to topK items most similar to vector, best match
	// first, with Score populated. An empty result is an empty slice, not
	// an error. Dimensionality is validated by the backend, not here.
	Search(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]Item, error)

	// GetByID returns the item at id, or (nil, nil) when absent.
	GetByID(ctx context.Context, id string) (*Item, error)

	// GetByIDs returns the items found among ids. Missing ids are silently
	// omitted and result order is not guaranteed to match input order.
	GetByIDs(ctx context.Context, ids []string) ([]Item, error)

	// GetByFilter returns up to limit items whose metadata matches filter.
	// A nil or empty filter matches everything.
	GetByFilter(ctx context.Context, filter map[string]any, limit int) ([]Item, error)

	// GetAll is GetByFilter with no filter.
	GetAll(ctx context.Context, limit int) ([]Item, error)

	// Count reports the number of items matching filter. It is defined as
	// len(GetByFilter(filter, DefaultScrollLimit)) and therefore O(n) over
	// the matched items; large collections should treat this as a
	// performance caveat, not reach for a backend-native count with
	// different matching semantics.
	Count(ctx context.Context, filter map[string]any) (int, error)

	// Add upserts items (vector required). Items sharing an id with an
	// existing record overwrite it entirely: vector, metadata and document
	// body.
	Add(ctx context.Context, items []Item) error

	// Update rewrites the record at id. With a vector present the whole
	// record is replaced; without one only the metadata is rewritten,
	// leaving vector and document body untouched.
	Update(ctx context.Context, id string, item Item) error

	// Upsert is an alias for Add, kept separate because callers rely on
	// its insert-or-replace reading as distinct from a future
	// non-destructive merge.
	Upsert(ctx context.Context, items []Item) error

	// Delete removes items by id. Deleting a non-existent id is not an
	// error.
	Delete(ctx context.Context, ids []string) error

	// EnsurePayloadIndexes creates secondary indexes on the given metadata
	// fields where the backend supports them. Best-effort and idempotent;
	// a no-op on backends with no secondary-index concept.
	EnsurePayloadIndexes(ctx context.Context, fields []string) error
}
