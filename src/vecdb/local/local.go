// Package local implements the vecdb backend client over an embedded SQLite
// database, for single-process deployments that want persistence without a
// server. Vectors and metadata are stored as JSON text; similarity search
// loads candidate rows and ranks them in process under the configured metric.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/memlattice/go-vecdb/src/vecdb"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS items (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	embedding  TEXT,
	metadata   TEXT,
	document   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (collection, id),
	FOREIGN KEY (collection) REFERENCES collections(name) ON DELETE CASCADE
);
`

// Client implements vecdb.Client over one SQLite database file.
type Client struct {
	db  *sql.DB
	cfg vecdb.Config
}

// Open opens (creating if needed) the database at the local target's path and
// applies the schema. Path ":memory:" yields a throwaway in-memory database.
func Open(ctx context.Context, cfg vecdb.Config) (*Client, error) {
	target, ok := cfg.Target.(vecdb.LocalTarget)
	if !ok {
		return nil, errors.New("local: config target must be a LocalTarget")
	}
	if target.Path == "" {
		return nil, errors.New("local: target path is required")
	}
	db, err := sql.Open("sqlite", target.Path)
	if err != nil {
		return nil, fmt.Errorf("local: open %s: %w", target.Path, err)
	}
	// A pooled :memory: database is one database per connection; pin the
	// pool to a single connection so every statement sees the same data.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("local: enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("local: apply schema: %w", err)
	}
	return &Client{db: db, cfg: cfg}, nil
}

// Close releases the underlying database handle.
func (c *Client) Close() error { return c.db.Close() }

func (c *Client) CreateCollection(ctx context.Context, name string) error {
	_, err := c.db.ExecContext(ctx, "INSERT INTO collections (name) VALUES (?)", name)
	if err != nil {
		return fmt.Errorf("local: create collection %q: %w", name, err)
	}
	return nil
}

func (c *Client) GetCollection(ctx context.Context, name string) (vecdb.Collection, error) {
	var found string
	err := c.db.QueryRowContext(ctx, "SELECT name FROM collections WHERE name = ?", name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("local: %q: %w", name, vecdb.ErrCollectionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("local: lookup collection %q: %w", name, err)
	}
	return &handle{client: c, name: name}, nil
}

func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("local: list collections: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	res, err := c.db.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("local: delete collection %q: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("local: %q: %w", name, vecdb.ErrCollectionNotFound)
	}
	return nil
}

type handle struct {
	client *Client
	name   string
}

// row is the in-process shape of one stored record.
type row struct {
	id       string
	vector   []float32
	metadata map[string]any
	document string
}

func (h *handle) Upsert(ctx context.Context, batch vecdb.Batch) error {
	tx, err := h.client.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("local: begin upsert: %w", err)
	}
	defer tx.Rollback()

	for i, id := range batch.IDs {
		var metaJSON any
		if i < len(batch.Metadatas) && batch.Metadatas[i] != nil {
			b, err := json.Marshal(batch.Metadatas[i])
			if err != nil {
				return fmt.Errorf("local: marshal metadata for %q: %w", id, err)
			}
			metaJSON = string(b)
		}
		if batch.Vectors == nil {
			// Metadata-only rewrite; create an empty row for unknown
			// ids so the metadata is not silently dropped.
			_, err = tx.ExecContext(ctx, `
				INSERT INTO items (collection, id, metadata) VALUES (?, ?, ?)
				ON CONFLICT (collection, id) DO UPDATE SET metadata = excluded.metadata`,
				h.name, id, metaJSON)
			if err != nil {
				return fmt.Errorf("local: upsert metadata for %q: %w", id, err)
			}
			continue
		}
		if dim := h.client.cfg.Dimension; dim > 0 && len(batch.Vectors[i]) != dim {
			return fmt.Errorf("local: id %q has %d dims, want %d: %w",
				id, len(batch.Vectors[i]), dim, vecdb.ErrDimensionMismatch)
		}
		vecJSON, err := json.Marshal(batch.Vectors[i])
		if err != nil {
			return fmt.Errorf("local: marshal vector for %q: %w", id, err)
		}
		var doc string
		if i < len(batch.Documents) {
			doc = batch.Documents[i]
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO items (collection, id, embedding, metadata, document) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (collection, id) DO UPDATE SET
				embedding = excluded.embedding,
				metadata  = excluded.metadata,
				document  = excluded.document`,
			h.name, id, string(vecJSON), metaJSON, doc)
		if err != nil {
			return fmt.Errorf("local: upsert %q: %w", id, err)
		}
	}
	return tx.Commit()
}

func (h *handle) Get(ctx context.Context, req vecdb.GetRequest) (*vecdb.GetResult, error) {
	var (
		rows []row
		err  error
	)
	if len(req.IDs) > 0 {
		rows, err = h.loadByIDs(ctx, req.IDs)
	} else {
		rows, err = h.loadAll(ctx)
	}
	if err != nil {
		return nil, err
	}
	res := &vecdb.GetResult{}
	for _, r := range rows {
		if !matches(req.Where, r.metadata) {
			continue
		}
		if len(req.IDs) == 0 && req.Limit > 0 && len(res.IDs) >= req.Limit {
			break
		}
		appendRow(res, r)
	}
	return res, nil
}

func (h *handle) Query(ctx context.Context, vector []float32, topK int, where map[string]any) (*vecdb.QueryResult, error) {
	if dim := h.client.cfg.Dimension; dim > 0 && len(vector) != dim {
		return nil, fmt.Errorf("local: query has %d dims, want %d: %w",
			len(vector), dim, vecdb.ErrDimensionMismatch)
	}
	rows, err := h.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	metric := h.client.cfg.Metric()
	type scored struct {
		row      row
		distance float64
	}
	ranked := make([]scored, 0, len(rows))
	for _, r := range rows {
		if len(r.vector) == 0 || !matches(where, r.metadata) {
			continue
		}
		ranked = append(ranked, scored{row: r, distance: metric.Between(vector, r.vector)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].distance < ranked[j].distance })
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	res := &vecdb.QueryResult{}
	for _, sc := range ranked {
		appendRow(&res.GetResult, sc.row)
		res.Distances = append(res.Distances, sc.distance)
	}
	return res, nil
}

func (h *handle) Delete(ctx context.Context, ids []string) error {
	tx, err := h.client.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("local: begin delete: %w", err)
	}
	defer tx.Rollback()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM items WHERE collection = ? AND id = ?", h.name, id); err != nil {
			return fmt.Errorf("local: delete %q: %w", id, err)
		}
	}
	return tx.Commit()
}

func (h *handle) loadAll(ctx context.Context) ([]row, error) {
	rows, err := h.client.db.QueryContext(ctx,
		"SELECT id, embedding, metadata, document FROM items WHERE collection = ? ORDER BY rowid",
		h.name)
	if err != nil {
		return nil, fmt.Errorf("local: load items: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (h *handle) loadByIDs(ctx context.Context, ids []string) ([]row, error) {
	out := make([]row, 0, len(ids))
	for _, id := range ids {
		rows, err := h.client.db.QueryContext(ctx,
			"SELECT id, embedding, metadata, document FROM items WHERE collection = ? AND id = ?",
			h.name, id)
		if err != nil {
			return nil, fmt.Errorf("local: load %q: %w", id, err)
		}
		loaded, err := scanRows(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, loaded...)
	}
	return out, nil
}

func scanRows(rows *sql.Rows) ([]row, error) {
	var out []row
	for rows.Next() {
		var (
			r        row
			vecJSON  sql.NullString
			metaJSON sql.NullString
		)
		if err := rows.Scan(&r.id, &vecJSON, &metaJSON, &r.document); err != nil {
			return nil, err
		}
		if vecJSON.Valid && vecJSON.String != "" {
			if err := json.Unmarshal([]byte(vecJSON.String), &r.vector); err != nil {
				return nil, fmt.Errorf("local: corrupt embedding for %q: %w", r.id, err)
			}
		}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &r.metadata); err != nil {
				return nil, fmt.Errorf("local: corrupt metadata for %q: %w", r.id, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func appendRow(res *vecdb.GetResult, r row) {
	res.IDs = append(res.IDs, r.id)
	res.Vectors = append(res.Vectors, r.vector)
	res.Metadatas = append(res.Metadatas, r.metadata)
	res.Documents = append(res.Documents, r.document)
}

func matches(where, metadata map[string]any) bool {
	for k, want := range where {
		got, ok := metadata[k]
		if !ok {
			return false
		}
		// JSON decoding turns stored numbers into float64; compare
		// numerics by value so an int filter still matches.
		if gf, gok := asFloat(got); gok {
			if wf, wok := asFloat(want); wok {
				if gf != wf {
					return false
				}
				continue
			}
		}
		if !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}
