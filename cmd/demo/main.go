// Command demo walks the vector item store end to end against the embedded
// SQLite backend: remember a few texts, recall by similarity, retag, forget.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/memlattice/go-vecdb/src/embed"
	"github.com/memlattice/go-vecdb/src/memorybank"
	"github.com/memlattice/go-vecdb/src/vecdb"
	"github.com/memlattice/go-vecdb/src/vecdb/local"
)

func main() {
	dbPath := flag.String("db", ":memory:", "SQLite database path")
	collection := flag.String("collection", "demo_memories", "collection name")
	query := flag.String("query", "how do I deploy the api", "recall query")
	flag.Parse()
	ctx := context.Background()

	cfg := vecdb.Config{
		Collection: *collection,
		Dimension:  embed.DummyDimension,
		Distance:   vecdb.DistanceCosine,
		Target:     vecdb.LocalTarget{Path: *dbPath},
	}
	client, err := local.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("open backend: %v", err)
	}
	defer client.Close()

	store, err := vecdb.NewStore(ctx, client, cfg)
	if err != nil {
		log.Fatalf("create store: %v", err)
	}
	bank, err := memorybank.New(store, embed.Auto())
	if err != nil {
		log.Fatalf("create bank: %v", err)
	}

	seeds := []struct {
		text string
		meta map[string]any
	}{
		{"deploy the api with `make release` after the tests pass", map[string]any{"topic": "ops"}},
		{"the api reads its config from /etc/vecdb/config.yaml", map[string]any{"topic": "ops"}},
		{"team retro happens every second friday", map[string]any{"topic": "process"}},
	}
	var firstID string
	for _, seed := range seeds {
		id, err := bank.Remember(ctx, seed.text, seed.meta)
		if err != nil {
			log.Fatalf("remember: %v", err)
		}
		if firstID == "" {
			firstID = id
		}
	}

	memories, err := bank.Recall(ctx, *query, 2, nil)
	if err != nil {
		log.Fatalf("recall: %v", err)
	}
	fmt.Printf("recall %q:\n", *query)
	for _, mem := range memories {
		fmt.Printf("  %.4f  %s\n", mem.Score, mem.Text)
	}

	if err := bank.Retag(ctx, firstID, map[string]any{"topic": "ops", "reviewed": true}); err != nil {
		log.Fatalf("retag: %v", err)
	}
	if err := bank.Forget(ctx, firstID); err != nil {
		log.Fatalf("forget: %v", err)
	}

	n, err := store.Count(ctx, nil)
	if err != nil {
		log.Fatalf("count: %v", err)
	}
	fmt.Printf("remaining memories: %d\n", n)
	fmt.Printf("metrics: %+v\n", bank.Metrics())
}
