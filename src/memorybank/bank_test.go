package memorybank

import (
	"context"
	"testing"

	"github.com/memlattice/go-vecdb/src/embed"
	"github.com/memlattice/go-vecdb/src/vecdb"
	"github.com/memlattice/go-vecdb/src/vecdb/memstore"
)

func newTestBank(t *testing.T) *Bank {
	t.Helper()
	ctx := context.Background()
	store, err := vecdb.NewStore(ctx, memstore.New(embed.DummyDimension, vecdb.DistanceCosine), vecdb.Config{
		Collection: "memories",
		Dimension:  embed.DummyDimension,
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	bank, err := New(store, embed.DummyEmbedder{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return bank
}

func TestRememberRecallForget(t *testing.T) {
	bank := newTestBank(t)
	ctx := context.Background()

	id, err := bank.Remember(ctx, "the login service rate limits at 30 rps", map[string]any{"topic": "ops"})
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if _, err := bank.Remember(ctx, "grandma's lasagna needs an hour at 180C", map[string]any{"topic": "cooking"}); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	memories, err := bank.Recall(ctx, "the login service rate limits at 30 rps", 1, nil)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(memories) != 1 || memories[0].ID != id {
		t.Fatalf("Recall = %+v, want the ops memory first", memories)
	}
	if memories[0].Text == "" || memories[0].Metadata["topic"] != "ops" {
		t.Errorf("recalled memory lost payload: %+v", memories[0])
	}

	// Filtered recall only sees the matching topic.
	memories, err = bank.Recall(ctx, "anything", 10, map[string]any{"topic": "cooking"})
	if err != nil {
		t.Fatalf("filtered Recall: %v", err)
	}
	if len(memories) != 1 || memories[0].Metadata["topic"] != "cooking" {
		t.Fatalf("filtered Recall = %+v", memories)
	}

	if err := bank.Forget(ctx, id); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	got, err := bank.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get after Forget: %v", err)
	}
	if got != nil {
		t.Errorf("memory survived Forget: %+v", got)
	}

	snap := bank.Metrics()
	if snap.Remembered != 2 || snap.Forgotten != 1 {
		t.Errorf("metrics = %+v", snap)
	}
}

func TestRememberStampsCreatedAt(t *testing.T) {
	bank := newTestBank(t)
	ctx := context.Background()

	id, err := bank.Remember(ctx, "stamped", nil)
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	mem, err := bank.Get(ctx, id)
	if err != nil || mem == nil {
		t.Fatalf("Get: %v, %v", mem, err)
	}
	if _, ok := mem.Metadata["created_at"].(string); !ok {
		t.Errorf("created_at missing: %+v", mem.Metadata)
	}
}

func TestRetagKeepsTextAndVector(t *testing.T) {
	bank := newTestBank(t)
	ctx := context.Background()

	id, err := bank.Remember(ctx, "retag me", map[string]any{"state": "new"})
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if err := bank.Retag(ctx, id, map[string]any{"state": "reviewed"}); err != nil {
		t.Fatalf("Retag: %v", err)
	}
	mem, err := bank.Get(ctx, id)
	if err != nil || mem == nil {
		t.Fatalf("Get: %v, %v", mem, err)
	}
	if mem.Metadata["state"] != "reviewed" {
		t.Errorf("metadata = %+v", mem.Metadata)
	}
	if mem.Text != "retag me" {
		t.Errorf("text lost on retag: %q", mem.Text)
	}

	// The vector must survive too; recall by the original text still finds it.
	memories, err := bank.Recall(ctx, "retag me", 1, nil)
	if err != nil || len(memories) != 1 || memories[0].ID != id {
		t.Fatalf("Recall after Retag = %+v, %v", memories, err)
	}
}

func TestRememberRejectsEmptyText(t *testing.T) {
	bank := newTestBank(t)
	if _, err := bank.Remember(context.Background(), "", nil); err == nil {
		t.Fatal("expected error for empty text")
	}
}
