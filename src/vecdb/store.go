package vecdb

import (
	"context"
	"fmt"
	"log"
)

// DefaultScrollLimit caps filter retrievals when the caller does not supply a
// limit; Count inherits it, which makes Count O(n) over at most this many
// matched items.
const DefaultScrollLimit = 100

// Store is the vector item store facade. It owns a handle to one backend
// collection and performs payload (de)serialization at the boundary; every
// operation is a synchronous pass-through to the backend client. The Store
// itself is stateless beyond the injected client and holds no locks; it
// assumes the client is safe for concurrent use.
type Store struct {
	client Client
	cfg    Config
}

var _ VecDB = (*Store)(nil)

// NewStore wraps a backend client and guarantees the configured collection
// exists by the time it returns.
func NewStore(ctx context.Context, client Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("vecdb: nil backend client")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Store{client: client, cfg: cfg}
	if err := s.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Config returns the store's configuration.
func (s *Store) Config() Config { return s.cfg }

// EnsureCollection creates the configured collection if absent. Idempotent:
// an existing collection is logged and skipped.
func (s *Store) EnsureCollection(ctx context.Context) error {
	if s.CollectionExists(ctx, s.cfg.Collection) {
		log.Printf("vecdb: collection %q already exists, skipping creation", s.cfg.Collection)
		return nil
	}
	if err := s.client.CreateCollection(ctx, s.cfg.Collection); err != nil {
		return fmt.Errorf("vecdb: create collection %q: %w", s.cfg.Collection, err)
	}
	log.Printf("vecdb: collection %q created", s.cfg.Collection)
	return nil
}

// Collection fetches the live handle for the configured collection. When the
// fetch fails the collection is re-ensured and the fetch retried exactly
// once; a second failure propagates.
func (s *Store) Collection(ctx context.Context) (Collection, error) {
	col, err := s.client.GetCollection(ctx, s.cfg.Collection)
	if err == nil {
		return col, nil
	}
	if err := s.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	return s.client.GetCollection(ctx, s.cfg.Collection)
}

// ListCollections returns the names of all collections on the backend.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	return s.client.ListCollections(ctx)
}

// DeleteCollection removes a collection by name.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	return s.client.DeleteCollection(ctx, name)
}

// CollectionExists probes for a collection; any lookup failure counts as
// absence.
func (s *Store) CollectionExists(ctx context.Context, name string) bool {
	_, err := s.client.GetCollection(ctx, name)
	return err == nil
}

// Search returns the topK items most similar to vector, best match first,
// each with Score populated from the backend's distance.
func (s *Store) Search(ctx context.Context, vector []float32, topK int, filter map[string]any) ([]Item, error) {
	col, err := s.Collection(ctx)
	if err != nil {
		return nil, err
	}
	res, err := col.Query(ctx, vector, topK, EncodeMetadata(filter))
	if err != nil {
		return nil, err
	}
	items := itemsFromResult(&res.GetResult)
	for i := range items {
		if i < len(res.Distances) {
			items[i].Score = res.Distances[i]
		}
	}
	return items, nil
}

// GetByID returns the item stored at id, or (nil, nil) when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Item, error) {
	col, err := s.Collection(ctx)
	if err != nil {
		return nil, err
	}
	res, err := col.Get(ctx, GetRequest{IDs: []string{id}})
	if err != nil {
		return nil, err
	}
	if len(res.IDs) == 0 {
		return nil, nil
	}
	item := itemFromColumns(res, 0)
	return &item, nil
}

// GetByIDs returns the items found among ids; missing ids are omitted.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]Item, error) {
	col, err := s.Collection(ctx)
	if err != nil {
		return nil, err
	}
	res, err := col.Get(ctx, GetRequest{IDs: ids})
	if err != nil {
		return nil, err
	}
	return itemsFromResult(res), nil
}

// GetByFilter returns up to limit items whose metadata matches filter. A nil
// or empty filter matches all items; limit <= 0 falls back to
// DefaultScrollLimit.
func (s *Store) GetByFilter(ctx context.Context, filter map[string]any, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = DefaultScrollLimit
	}
	col, err := s.Collection(ctx)
	if err != nil {
		return nil, err
	}
	res, err := col.Get(ctx, GetRequest{Where: EncodeMetadata(filter), Limit: limit})
	if err != nil {
		return nil, err
	}
	return itemsFromResult(res), nil
}

// GetAll returns up to limit items from the collection.
func (s *Store) GetAll(ctx context.Context, limit int) ([]Item, error) {
	return s.GetByFilter(ctx, nil, limit)
}

// Count reports the number of items matching filter, computed as the length
// of a GetByFilter scroll.
func (s *Store) Count(ctx context.Context, filter map[string]any) (int, error) {
	items, err := s.GetByFilter(ctx, filter, DefaultScrollLimit)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Add upserts items into the collection. Every item needs a vector; an item
// sharing an id with an existing record overwrites it entirely.
func (s *Store) Add(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	batch := Batch{
		IDs:       make([]string, 0, len(items)),
		Vectors:   make([][]float32, 0, len(items)),
		Metadatas: make([]map[string]any, 0, len(items)),
		Documents: make([]string, 0, len(items)),
	}
	for _, item := range items {
		if item.ID == "" {
			return fmt.Errorf("vecdb: add: item without id")
		}
		if len(item.Vector) == 0 {
			return fmt.Errorf("vecdb: add: item %q has no vector", item.ID)
		}
		batch.IDs = append(batch.IDs, item.ID)
		batch.Vectors = append(batch.Vectors, item.Vector)
		batch.Metadatas = append(batch.Metadatas, EncodeMetadata(item.Metadata()))
		batch.Documents = append(batch.Documents, item.Memory())
	}
	col, err := s.Collection(ctx)
	if err != nil {
		return err
	}
	return col.Upsert(ctx, batch)
}

// Update rewrites the record at id. A present vector replaces vector,
// metadata and document body in one upsert; an absent vector rewrites the
// metadata only.
func (s *Store) Update(ctx context.Context, id string, item Item) error {
	if id == "" {
		return fmt.Errorf("vecdb: update: empty id")
	}
	col, err := s.Collection(ctx)
	if err != nil {
		return err
	}
	if len(item.Vector) > 0 {
		return col.Upsert(ctx, Batch{
			IDs:       []string{id},
			Vectors:   [][]float32{item.Vector},
			Metadatas: []map[string]any{EncodeMetadata(item.Metadata())},
			Documents: []string{item.Memory()},
		})
	}
	return col.Upsert(ctx, Batch{
		IDs:       []string{id},
		Metadatas: []map[string]any{EncodeMetadata(item.Metadata())},
	})
}

// Upsert adds or replaces items by id; the backend's upsert already carries
// the insert-or-replace semantics.
func (s *Store) Upsert(ctx context.Context, items []Item) error {
	return s.Add(ctx, items)
}

// Delete removes items by id. Non-existent ids are ignored.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := s.Collection(ctx)
	if err != nil {
		return err
	}
	return col.Delete(ctx, ids)
}

// EnsurePayloadIndexes creates metadata indexes on backends that support
// them and is a silent no-op everywhere else.
func (s *Store) EnsurePayloadIndexes(ctx context.Context, fields []string) error {
	col, err := s.Collection(ctx)
	if err != nil {
		return err
	}
	indexer, ok := col.(PayloadIndexer)
	if !ok {
		return nil
	}
	for _, field := range fields {
		if err := indexer.EnsurePayloadIndex(ctx, field); err != nil {
			return fmt.Errorf("vecdb: index %q: %w", field, err)
		}
	}
	return nil
}

func itemsFromResult(res *GetResult) []Item {
	items := make([]Item, len(res.IDs))
	for i := range res.IDs {
		items[i] = itemFromColumns(res, i)
	}
	return items
}

func itemFromColumns(res *GetResult, i int) Item {
	item := Item{ID: res.IDs[i]}
	if i < len(res.Vectors) && len(res.Vectors[i]) > 0 {
		item.Vector = res.Vectors[i]
	}
	payload := map[string]any{}
	if i < len(res.Metadatas) && res.Metadatas[i] != nil {
		payload[MetadataKey] = DecodeMetadata(res.Metadatas[i])
	}
	if i < len(res.Documents) && res.Documents[i] != "" {
		payload[MemoryKey] = res.Documents[i]
	}
	if len(payload) > 0 {
		item.Payload = payload
	}
	return item
}
