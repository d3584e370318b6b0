// Package pgvec implements the vecdb backend client on Postgres with the
// pgvector extension. Each collection gets its own table; metadata lives in a
// jsonb column and filters compile to jsonb containment, which makes this the
// one backend with real secondary indexes over metadata fields.
package pgvec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/memlattice/go-vecdb/src/vecdb"
)

// Client implements vecdb.Client over one Postgres database.
type Client struct {
	pool *pgxpool.Pool
	cfg  vecdb.Config
}

// New connects to Postgres, registers the pgvector types on every pooled
// connection, and ensures the vector extension and the collection registry
// exist.
func New(ctx context.Context, connStr string, cfg vecdb.Config) (*Client, error) {
	if cfg.Dimension <= 0 {
		return nil, errors.New("pgvec: a positive dimension is required, vector columns are fixed-width")
	}
	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("pgvec: parse conn string: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pgvec: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvec: ensure vector extension: %w", err)
	}
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS vecdb_collections (
			name      TEXT PRIMARY KEY,
			dimension INT NOT NULL
		)`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvec: ensure collection registry: %w", err)
	}
	return &Client{pool: pool, cfg: cfg}, nil
}

// Close releases the connection pool.
func (c *Client) Close() { c.pool.Close() }

func (c *Client) CreateCollection(ctx context.Context, name string) error {
	table, err := tableName(name)
	if err != nil {
		return err
	}
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgvec: begin create: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		"INSERT INTO vecdb_collections (name, dimension) VALUES ($1, $2)",
		name, c.cfg.Dimension)
	if err != nil {
		return fmt.Errorf("pgvec: register collection %q: %w", name, err)
	}
	_, err = tx.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE %s (
			id        TEXT PRIMARY KEY,
			embedding VECTOR(%d),
			metadata  JSONB NOT NULL DEFAULT '{}'::jsonb,
			document  TEXT NOT NULL DEFAULT ''
		)`, table, c.cfg.Dimension))
	if err != nil {
		return fmt.Errorf("pgvec: create table for %q: %w", name, err)
	}
	return tx.Commit(ctx)
}

func (c *Client) GetCollection(ctx context.Context, name string) (vecdb.Collection, error) {
	table, err := tableName(name)
	if err != nil {
		return nil, err
	}
	var dim int
	err = c.pool.QueryRow(ctx,
		"SELECT dimension FROM vecdb_collections WHERE name = $1", name).Scan(&dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pgvec: %q: %w", name, vecdb.ErrCollectionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("pgvec: lookup collection %q: %w", name, err)
	}
	return &handle{client: c, table: table, dimension: dim}, nil
}

func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := c.pool.Query(ctx, "SELECT name FROM vecdb_collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("pgvec: list collections: %w", err)
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
	table, err := tableName(name)
	if err != nil {
		return err
	}
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgvec: begin drop: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, "DELETE FROM vecdb_collections WHERE name = $1", name)
	if err != nil {
		return fmt.Errorf("pgvec: unregister collection %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgvec: %q: %w", name, vecdb.ErrCollectionNotFound)
	}
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("pgvec: drop table for %q: %w", name, err)
	}
	return tx.Commit(ctx)
}

type handle struct {
	client    *Client
	table     string
	dimension int
}

func (h *handle) Upsert(ctx context.Context, batch vecdb.Batch) error {
	tx, err := h.client.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgvec: begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, id := range batch.IDs {
		metaJSON, err := metadataJSON(batch.Metadatas, i)
		if err != nil {
			return fmt.Errorf("pgvec: marshal metadata for %q: %w", id, err)
		}
		if batch.Vectors == nil {
			_, err = tx.Exec(ctx, fmt.Sprintf(`
				INSERT INTO %s (id, metadata) VALUES ($1, $2)
				ON CONFLICT (id) DO UPDATE SET metadata = EXCLUDED.metadata`, h.table),
				id, metaJSON)
			if err != nil {
				return fmt.Errorf("pgvec: upsert metadata for %q: %w", id, err)
			}
			continue
		}
		if len(batch.Vectors[i]) != h.dimension {
			return fmt.Errorf("pgvec: id %q has %d dims, want %d: %w",
				id, len(batch.Vectors[i]), h.dimension, vecdb.ErrDimensionMismatch)
		}
		var doc string
		if i < len(batch.Documents) {
			doc = batch.Documents[i]
		}
		_, err = tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, embedding, metadata, document) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				embedding = EXCLUDED.embedding,
				metadata  = EXCLUDED.metadata,
				document  = EXCLUDED.document`, h.table),
			id, pgvector.NewVector(batch.Vectors[i]), metaJSON, doc)
		if err != nil {
			return fmt.Errorf("pgvec: upsert %q: %w", id, err)
		}
	}
	return tx.Commit(ctx)
}

func (h *handle) Get(ctx context.Context, req vecdb.GetRequest) (*vecdb.GetResult, error) {
	where, args := []string{"TRUE"}, []any{}
	if len(req.IDs) > 0 {
		args = append(args, req.IDs)
		where = append(where, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	if len(req.Where) > 0 {
		filterJSON, err := json.Marshal(req.Where)
		if err != nil {
			return nil, fmt.Errorf("pgvec: marshal filter: %w", err)
		}
		args = append(args, string(filterJSON))
		where = append(where, fmt.Sprintf("metadata @> $%d::jsonb", len(args)))
	}
	query := fmt.Sprintf(
		"SELECT id, embedding, metadata, document FROM %s WHERE %s ORDER BY id",
		h.table, strings.Join(where, " AND "))
	if req.Limit > 0 {
		args = append(args, req.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := h.client.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvec: get: %w", err)
	}
	defer rows.Close()
	res := &vecdb.GetResult{}
	if err := scanInto(res, rows, nil); err != nil {
		return nil, err
	}
	return res, nil
}

func (h *handle) Query(ctx context.Context, vector []float32, topK int, where map[string]any) (*vecdb.QueryResult, error) {
	if len(vector) != h.dimension {
		return nil, fmt.Errorf("pgvec: query has %d dims, want %d: %w",
			len(vector), h.dimension, vecdb.ErrDimensionMismatch)
	}
	op := distanceOperator(h.client.cfg.Metric())
	args := []any{pgvector.NewVector(vector)}
	filter := "embedding IS NOT NULL"
	if len(where) > 0 {
		filterJSON, err := json.Marshal(where)
		if err != nil {
			return nil, fmt.Errorf("pgvec: marshal filter: %w", err)
		}
		args = append(args, string(filterJSON))
		filter += fmt.Sprintf(" AND metadata @> $%d::jsonb", len(args))
	}
	args = append(args, topK)
	query := fmt.Sprintf(`
		SELECT id, embedding, metadata, document, (embedding %[1]s $1) AS distance
		FROM %[2]s
		WHERE %[3]s
		ORDER BY embedding %[1]s $1
		LIMIT $%[4]d`, op, h.table, filter, len(args))

	rows, err := h.client.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvec: query: %w", err)
	}
	defer rows.Close()
	res := &vecdb.QueryResult{}
	if err := scanInto(&res.GetResult, rows, &res.Distances); err != nil {
		return nil, err
	}
	return res, nil
}

func (h *handle) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := h.client.pool.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", h.table), ids)
	if err != nil {
		return fmt.Errorf("pgvec: delete: %w", err)
	}
	return nil
}

// EnsurePayloadIndex creates an expression index over one metadata field.
func (h *handle) EnsurePayloadIndex(ctx context.Context, field string) error {
	safe, err := identifier(field)
	if err != nil {
		return err
	}
	_, err = h.client.pool.Exec(ctx, fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s_meta_%s ON %s ((metadata->>'%s'))",
		h.table, safe, h.table, safe))
	if err != nil {
		return fmt.Errorf("pgvec: index metadata.%s: %w", field, err)
	}
	return nil
}

func scanInto(res *vecdb.GetResult, rows pgx.Rows, distances *[]float64) error {
	for rows.Next() {
		var (
			id       string
			vec      *pgvector.Vector
			metaJSON []byte
			doc      string
			dist     float64
		)
		dest := []any{&id, &vec, &metaJSON, &doc}
		if distances != nil {
			dest = append(dest, &dist)
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("pgvec: scan record: %w", err)
		}
		var meta map[string]any
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &meta); err != nil {
				return fmt.Errorf("pgvec: corrupt metadata for %q: %w", id, err)
			}
		}
		res.IDs = append(res.IDs, id)
		if vec != nil {
			res.Vectors = append(res.Vectors, vec.Slice())
		} else {
			res.Vectors = append(res.Vectors, nil)
		}
		res.Metadatas = append(res.Metadatas, meta)
		res.Documents = append(res.Documents, doc)
		if distances != nil {
			*distances = append(*distances, dist)
		}
	}
	return rows.Err()
}

func metadataJSON(metadatas []map[string]any, i int) (string, error) {
	if i >= len(metadatas) || metadatas[i] == nil {
		return "{}", nil
	}
	b, err := json.Marshal(metadatas[i])
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// distanceOperator maps a metric to its pgvector operator. Each operator
// already yields a value where smaller means closer.
func distanceOperator(d vecdb.Distance) string {
	switch d {
	case vecdb.DistanceL2:
		return "<->"
	case vecdb.DistanceDot:
		return "<#>"
	default:
		return "<=>"
	}
}

// tableName derives the backing table for a collection, restricted to a safe
// identifier charset because table names cannot be bound parameters.
func tableName(collection string) (string, error) {
	safe, err := identifier(collection)
	if err != nil {
		return "", err
	}
	return "vecdb_items_" + safe, nil
}

func identifier(s string) (string, error) {
	if s == "" {
		return "", errors.New("pgvec: empty identifier")
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r == '-' || r == '.' || r == ' ':
			b.WriteRune('_')
		default:
			return "", fmt.Errorf("pgvec: identifier %q has unsupported character %q", s, r)
		}
	}
	return b.String(), nil
}
