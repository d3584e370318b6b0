package vecdb_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/memlattice/go-vecdb/src/vecdb"
	"github.com/memlattice/go-vecdb/src/vecdb/memstore"
)

func newTestStore(t *testing.T) *vecdb.Store {
	t.Helper()
	store, err := vecdb.NewStore(context.Background(), memstore.New(3, vecdb.DistanceCosine), vecdb.Config{
		Collection: "memories",
		Dimension:  3,
		Distance:   vecdb.DistanceCosine,
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func seedItems(t *testing.T, store *vecdb.Store) {
	t.Helper()
	err := store.Add(context.Background(), []vecdb.Item{
		{
			ID:     "a",
			Vector: []float32{1, 0, 0},
			Payload: map[string]any{
				vecdb.MetadataKey: map[string]any{"kind": "note", "tags": []any{"x", "y"}},
				vecdb.MemoryKey:   "alpha",
			},
		},
		{
			ID:     "b",
			Vector: []float32{0, 1, 0},
			Payload: map[string]any{
				vecdb.MetadataKey: map[string]any{"kind": "task"},
				vecdb.MemoryKey:   "beta",
			},
		},
		{
			ID:     "c",
			Vector: []float32{0.9, 0.1, 0},
			Payload: map[string]any{
				vecdb.MetadataKey: map[string]any{"kind": "note"},
				vecdb.MemoryKey:   "gamma",
			},
		},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
}

func TestNewStoreCreatesCollection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if !store.CollectionExists(ctx, "memories") {
		t.Fatal("collection not created")
	}
	// Re-ensuring is a no-op, not an error.
	if err := store.EnsureCollection(ctx); err != nil {
		t.Fatalf("EnsureCollection twice: %v", err)
	}
	names, err := store.ListCollections(ctx)
	if err != nil || len(names) != 1 {
		t.Fatalf("ListCollections = %v, %v", names, err)
	}
}

func TestNewStoreRejectsBadConfig(t *testing.T) {
	ctx := context.Background()
	client := memstore.New(3, vecdb.DistanceCosine)
	if _, err := vecdb.NewStore(ctx, client, vecdb.Config{}); err == nil {
		t.Error("missing collection name accepted")
	}
	if _, err := vecdb.NewStore(ctx, nil, vecdb.Config{Collection: "c"}); err == nil {
		t.Error("nil client accepted")
	}
	if _, err := vecdb.NewStore(ctx, client, vecdb.Config{Collection: "c", Distance: "hamming"}); err == nil {
		t.Error("unknown metric accepted")
	}
}

func TestSearchRanksAndScores(t *testing.T) {
	store := newTestStore(t)
	seedItems(t, store)

	items, err := store.Search(context.Background(), []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(items) != 2 || items[0].ID != "a" || items[1].ID != "c" {
		t.Fatalf("Search order = %v", ids(items))
	}
	if items[0].Score > items[1].Score {
		t.Errorf("scores not ascending: %v vs %v", items[0].Score, items[1].Score)
	}
	if items[0].Memory() != "alpha" {
		t.Errorf("payload lost in search: %+v", items[0])
	}
}

func TestSearchWithFilter(t *testing.T) {
	store := newTestStore(t)
	seedItems(t, store)

	items, err := store.Search(context.Background(), []float32{0, 1, 0}, 10, map[string]any{"kind": "note"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, item := range items {
		if item.Metadata()["kind"] != "note" {
			t.Errorf("filter leaked item %+v", item)
		}
	}
	if len(items) != 2 {
		t.Errorf("Search = %v, want the two notes", ids(items))
	}
}

func TestGetByID(t *testing.T) {
	store := newTestStore(t)
	seedItems(t, store)
	ctx := context.Background()

	item, err := store.GetByID(ctx, "a")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if item == nil || item.ID != "a" || item.Memory() != "alpha" {
		t.Fatalf("GetByID = %+v", item)
	}
	// Structured metadata survives the storage round trip.
	if !reflect.DeepEqual(item.Metadata()["tags"], []any{"x", "y"}) {
		t.Errorf("tags = %#v", item.Metadata()["tags"])
	}

	missing, err := store.GetByID(ctx, "nope")
	if err != nil {
		t.Fatalf("GetByID(missing): %v", err)
	}
	if missing != nil {
		t.Errorf("missing id = %+v, want nil", missing)
	}
}

func TestGetByIDsOmitsMissing(t *testing.T) {
	store := newTestStore(t)
	seedItems(t, store)

	items, err := store.GetByIDs(context.Background(), []string{"a", "nope", "b"})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("GetByIDs = %v", ids(items))
	}
}

func TestGetByFilterAndCount(t *testing.T) {
	store := newTestStore(t)
	seedItems(t, store)
	ctx := context.Background()

	items, err := store.GetByFilter(ctx, map[string]any{"kind": "note"}, 0)
	if err != nil {
		t.Fatalf("GetByFilter: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("GetByFilter = %v", ids(items))
	}

	items, err = store.GetByFilter(ctx, map[string]any{"kind": "note"}, 1)
	if err != nil || len(items) != 1 {
		t.Fatalf("limited GetByFilter = %v, %v", ids(items), err)
	}

	n, err := store.Count(ctx, map[string]any{"kind": "note"})
	if err != nil || n != 2 {
		t.Fatalf("Count = %d, %v", n, err)
	}
	n, err = store.Count(ctx, nil)
	if err != nil || n != 3 {
		t.Fatalf("Count(nil) = %d, %v", n, err)
	}

	all, err := store.GetAll(ctx, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("GetAll = %v, %v", ids(all), err)
	}
}

func TestAddValidatesItems(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, []vecdb.Item{{Vector: []float32{1, 0, 0}}}); err == nil {
		t.Error("item without id accepted")
	}
	if err := store.Add(ctx, []vecdb.Item{{ID: "x"}}); err == nil {
		t.Error("item without vector accepted")
	}
	if err := store.Add(ctx, nil); err != nil {
		t.Errorf("empty Add: %v", err)
	}
}

func TestAddOverwritesById(t *testing.T) {
	store := newTestStore(t)
	seedItems(t, store)
	ctx := context.Background()

	err := store.Add(ctx, []vecdb.Item{{
		ID:     "a",
		Vector: []float32{0, 0, 1},
		Payload: map[string]any{
			vecdb.MetadataKey: map[string]any{"kind": "replaced"},
			vecdb.MemoryKey:   "new text",
		},
	}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	item, err := store.GetByID(ctx, "a")
	if err != nil || item == nil {
		t.Fatalf("GetByID: %v, %v", item, err)
	}
	if item.Memory() != "new text" || item.Metadata()["kind"] != "replaced" {
		t.Errorf("overwrite incomplete: %+v", item)
	}
	if !reflect.DeepEqual(item.Vector, []float32{0, 0, 1}) {
		t.Errorf("vector = %v", item.Vector)
	}
}

func TestUpdateMetadataOnly(t *testing.T) {
	store := newTestStore(t)
	seedItems(t, store)
	ctx := context.Background()

	err := store.Update(ctx, "a", vecdb.Item{
		Payload: map[string]any{vecdb.MetadataKey: map[string]any{"kind": "archived"}},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	item, err := store.GetByID(ctx, "a")
	if err != nil || item == nil {
		t.Fatalf("GetByID: %v, %v", item, err)
	}
	if item.Metadata()["kind"] != "archived" {
		t.Errorf("metadata = %v", item.Metadata())
	}
	if !reflect.DeepEqual(item.Vector, []float32{1, 0, 0}) {
		t.Errorf("vector rewritten on metadata-only update: %v", item.Vector)
	}
	if item.Memory() != "alpha" {
		t.Errorf("document rewritten on metadata-only update: %q", item.Memory())
	}
}

func TestUpdateWithVectorReplacesRecord(t *testing.T) {
	store := newTestStore(t)
	seedItems(t, store)
	ctx := context.Background()

	err := store.Update(ctx, "a", vecdb.Item{
		Vector: []float32{0, 0, 1},
		Payload: map[string]any{
			vecdb.MetadataKey: map[string]any{"kind": "moved"},
			vecdb.MemoryKey:   "delta",
		},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	item, err := store.GetByID(ctx, "a")
	if err != nil || item == nil {
		t.Fatalf("GetByID: %v, %v", item, err)
	}
	if !reflect.DeepEqual(item.Vector, []float32{0, 0, 1}) || item.Memory() != "delta" {
		t.Errorf("record not replaced: %+v", item)
	}
}

func TestDeleteIgnoresMissing(t *testing.T) {
	store := newTestStore(t)
	seedItems(t, store)
	ctx := context.Background()

	if err := store.Delete(ctx, []string{"a", "ghost"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	item, err := store.GetByID(ctx, "a")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if item != nil {
		t.Errorf("item survived delete: %+v", item)
	}
	if err := store.Delete(ctx, nil); err != nil {
		t.Errorf("empty Delete: %v", err)
	}
}

func TestEnsurePayloadIndexesIsNoOpWithoutSupport(t *testing.T) {
	store := newTestStore(t)
	if err := store.EnsurePayloadIndexes(context.Background(), []string{"kind"}); err != nil {
		t.Fatalf("EnsurePayloadIndexes: %v", err)
	}
}

func TestCollectionRecreatedAfterDrop(t *testing.T) {
	store := newTestStore(t)
	seedItems(t, store)
	ctx := context.Background()

	// Dropping the collection behind the facade's back must heal on the
	// next operation instead of failing.
	if err := store.DeleteCollection(ctx, "memories"); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	items, err := store.GetAll(ctx, 0)
	if err != nil {
		t.Fatalf("GetAll after drop: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("GetAll after drop = %v", ids(items))
	}
}

func ids(items []vecdb.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}
