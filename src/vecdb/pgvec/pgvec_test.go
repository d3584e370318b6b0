package pgvec

import (
	"testing"

	"github.com/memlattice/go-vecdb/src/vecdb"
)

func TestTableName(t *testing.T) {
	tests := []struct {
		collection string
		want       string
		wantErr    bool
	}{
		{collection: "memories", want: "vecdb_items_memories"},
		{collection: "My Notes-2024", want: "vecdb_items_my_notes_2024"},
		{collection: "dotted.name", want: "vecdb_items_dotted_name"},
		{collection: "", wantErr: true},
		{collection: "drop;table", wantErr: true},
		{collection: "weird$name", wantErr: true},
	}
	for _, tt := range tests {
		got, err := tableName(tt.collection)
		if tt.wantErr {
			if err == nil {
				t.Errorf("tableName(%q) accepted, want error", tt.collection)
			}
			continue
		}
		if err != nil {
			t.Errorf("tableName(%q): %v", tt.collection, err)
			continue
		}
		if got != tt.want {
			t.Errorf("tableName(%q) = %q, want %q", tt.collection, got, tt.want)
		}
	}
}

func TestDistanceOperator(t *testing.T) {
	tests := []struct {
		metric vecdb.Distance
		want   string
	}{
		{vecdb.DistanceCosine, "<=>"},
		{vecdb.DistanceL2, "<->"},
		{vecdb.DistanceDot, "<#>"},
		{"", "<=>"},
	}
	for _, tt := range tests {
		if got := distanceOperator(tt.metric); got != tt.want {
			t.Errorf("distanceOperator(%q) = %q, want %q", tt.metric, got, tt.want)
		}
	}
}

func TestMetadataJSON(t *testing.T) {
	got, err := metadataJSON([]map[string]any{{"kind": "note"}}, 0)
	if err != nil {
		t.Fatalf("metadataJSON: %v", err)
	}
	if got != `{"kind":"note"}` {
		t.Errorf("metadataJSON = %s", got)
	}
	got, err = metadataJSON(nil, 0)
	if err != nil || got != "{}" {
		t.Errorf("missing metadata = %q, %v; want {}", got, err)
	}
}
