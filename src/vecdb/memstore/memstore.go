// Package memstore provides an in-memory vecdb backend client for tests and
// lightweight deployments. Records live in process memory; similarity search
// is a brute-force scan under the configured distance metric.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/memlattice/go-vecdb/src/vecdb"
)

// Client implements vecdb.Client over process memory.
type Client struct {
	mu          sync.RWMutex
	dimension   int
	metric      vecdb.Distance
	collections map[string]*collection
}

type collection struct {
	records map[string]*record
	order   []string // insertion order, for stable scans
}

type record struct {
	vector   []float32
	metadata map[string]any
	document string
}

// New returns an empty in-memory backend. Dimension 0 disables vector
// dimensionality validation.
func New(dimension int, metric vecdb.Distance) *Client {
	if metric == "" {
		metric = vecdb.DistanceCosine
	}
	return &Client{
		dimension:   dimension,
		metric:      metric,
		collections: make(map[string]*collection),
	}
}

func (c *Client) CreateCollection(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.collections[name]; ok {
		return fmt.Errorf("memstore: collection %q already exists", name)
	}
	c.collections[name] = &collection{records: make(map[string]*record)}
	return nil
}

func (c *Client) GetCollection(_ context.Context, name string) (vecdb.Collection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.collections[name]; !ok {
		return nil, fmt.Errorf("memstore: %q: %w", name, vecdb.ErrCollectionNotFound)
	}
	return &handle{client: c, name: name}, nil
}

func (c *Client) ListCollections(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.collections))
	for name := range c.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *Client) DeleteCollection(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.collections[name]; !ok {
		return fmt.Errorf("memstore: %q: %w", name, vecdb.ErrCollectionNotFound)
	}
	delete(c.collections, name)
	return nil
}

// handle is a live view on one collection; it re-resolves the collection on
// every call so a dropped collection surfaces as ErrCollectionNotFound.
type handle struct {
	client *Client
	name   string
}

func (h *handle) col() (*collection, error) {
	col, ok := h.client.collections[h.name]
	if !ok {
		return nil, fmt.Errorf("memstore: %q: %w", h.name, vecdb.ErrCollectionNotFound)
	}
	return col, nil
}

func (h *handle) Upsert(_ context.Context, batch vecdb.Batch) error {
	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	col, err := h.col()
	if err != nil {
		return err
	}
	for i, id := range batch.IDs {
		metadataOnly := batch.Vectors == nil
		if !metadataOnly {
			if h.client.dimension > 0 && len(batch.Vectors[i]) != h.client.dimension {
				return fmt.Errorf("memstore: id %q has %d dims, want %d: %w",
					id, len(batch.Vectors[i]), h.client.dimension, vecdb.ErrDimensionMismatch)
			}
		}
		rec, ok := col.records[id]
		if !ok {
			rec = &record{}
			col.records[id] = rec
			col.order = append(col.order, id)
		}
		if i < len(batch.Metadatas) {
			rec.metadata = batch.Metadatas[i]
		}
		if metadataOnly {
			continue
		}
		rec.vector = append([]float32(nil), batch.Vectors[i]...)
		if i < len(batch.Documents) {
			rec.document = batch.Documents[i]
		}
	}
	return nil
}

func (h *handle) Get(_ context.Context, req vecdb.GetRequest) (*vecdb.GetResult, error) {
	h.client.mu.RLock()
	defer h.client.mu.RUnlock()
	col, err := h.col()
	if err != nil {
		return nil, err
	}
	res := &vecdb.GetResult{}
	if len(req.IDs) > 0 {
		for _, id := range req.IDs {
			rec, ok := col.records[id]
			if !ok {
				continue
			}
			appendRecord(res, id, rec)
		}
		return res, nil
	}
	for _, id := range col.order {
		if req.Limit > 0 && len(res.IDs) >= req.Limit {
			break
		}
		rec := col.records[id]
		if !matches(req.Where, rec.metadata) {
			continue
		}
		appendRecord(res, id, rec)
	}
	return res, nil
}

func (h *handle) Query(_ context.Context, vector []float32, topK int, where map[string]any) (*vecdb.QueryResult, error) {
	h.client.mu.RLock()
	defer h.client.mu.RUnlock()
	col, err := h.col()
	if err != nil {
		return nil, err
	}
	if h.client.dimension > 0 && len(vector) != h.client.dimension {
		return nil, fmt.Errorf("memstore: query has %d dims, want %d: %w",
			len(vector), h.client.dimension, vecdb.ErrDimensionMismatch)
	}
	type scored struct {
		id       string
		rec      *record
		distance float64
	}
	ranked := make([]scored, 0, len(col.records))
	for _, id := range col.order {
		rec := col.records[id]
		if len(rec.vector) == 0 || !matches(where, rec.metadata) {
			continue
		}
		ranked = append(ranked, scored{id: id, rec: rec, distance: h.client.metric.Between(vector, rec.vector)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].distance < ranked[j].distance })
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	res := &vecdb.QueryResult{}
	for _, sc := range ranked {
		appendRecord(&res.GetResult, sc.id, sc.rec)
		res.Distances = append(res.Distances, sc.distance)
	}
	return res, nil
}

func (h *handle) Delete(_ context.Context, ids []string) error {
	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	col, err := h.col()
	if err != nil {
		return err
	}
	doomed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		doomed[id] = struct{}{}
		delete(col.records, id)
	}
	kept := col.order[:0]
	for _, id := range col.order {
		if _, gone := doomed[id]; !gone {
			kept = append(kept, id)
		}
	}
	col.order = kept
	return nil
}

func appendRecord(res *vecdb.GetResult, id string, rec *record) {
	res.IDs = append(res.IDs, id)
	res.Vectors = append(res.Vectors, append([]float32(nil), rec.vector...))
	res.Metadatas = append(res.Metadatas, cloneMeta(rec.metadata))
	res.Documents = append(res.Documents, rec.document)
}

func cloneMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	cp := make(map[string]any, len(meta))
	for k, v := range meta {
		cp[k] = v
	}
	return cp
}

func matches(where, metadata map[string]any) bool {
	for k, want := range where {
		got, ok := metadata[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
