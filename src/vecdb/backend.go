package vecdb

import (
	"context"
	"errors"
)

// Sentinel errors shared by all backend clients.
var (
	// ErrCollectionNotFound is returned by Client.GetCollection for an
	// unknown collection name.
	ErrCollectionNotFound = errors.New("vecdb: collection not found")

	// ErrDimensionMismatch is returned by backends that validate vector
	// dimensionality against the collection's configured dimension.
	ErrDimensionMismatch = errors.New("vecdb: vector dimension mismatch")
)

// Client is the backend collection API the Store consumes. Implementations
// must be safe for concurrent use; the facade adds no locking of its own.
type Client interface {
	// CreateCollection creates a named collection. Creating a collection
	// that already exists is an error; the facade probes first.
	CreateCollection(ctx context.Context, name string) error

	// GetCollection returns a handle for a named collection, or an error
	// wrapping ErrCollectionNotFound.
	GetCollection(ctx context.Context, name string) (Collection, error)

	// ListCollections returns all collection names.
	ListCollections(ctx context.Context) ([]string, error)

	// DeleteCollection removes a collection and its items.
	DeleteCollection(ctx context.Context, name string) error
}

// Collection is a live handle on one backend collection. Metadata maps
// crossing this boundary are flat (already run through the codec).
type Collection interface {
	// Upsert writes the batch, replacing records that share an id. A batch
	// with nil Vectors is a metadata-only upsert: existing vectors and
	// documents are left untouched.
	Upsert(ctx context.Context, batch Batch) error

	// Get retrieves records by id and/or metadata filter. Missing ids are
	// omitted, never reported.
	Get(ctx context.Context, req GetRequest) (*GetResult, error)

	// Query runs a similarity search and returns the topK nearest records
	// with Distances populated, best match first.
	Query(ctx context.Context, vector []float32, topK int, where map[string]any) (*QueryResult, error)

	// Delete removes records by id; non-existent ids are ignored.
	Delete(ctx context.Context, ids []string) error
}

// PayloadIndexer is implemented by collection handles whose backend supports
// secondary indexes over metadata fields.
type PayloadIndexer interface {
	EnsurePayloadIndex(ctx context.Context, field string) error
}

// Batch carries parallel record columns for Upsert.
type Batch struct {
	IDs       []string
	Vectors   [][]float32 // nil for metadata-only upserts
	Metadatas []map[string]any
	Documents []string
}

// GetRequest selects records by ids, metadata equality, or both. A zero Limit
// means no limit; an empty Where matches everything.
type GetRequest struct {
	IDs   []string
	Where map[string]any
	Limit int
}

// GetResult carries parallel record columns from Get.
type GetResult struct {
	IDs       []string
	Vectors   [][]float32
	Metadatas []map[string]any
	Documents []string
}

// QueryResult extends GetResult with per-record distances. Backends that
// nest single-query batches one level deeper on the wire flatten them here.
type QueryResult struct {
	GetResult
	Distances []float64
}
