// Package chroma implements the vecdb backend client against a remote Chroma
// server's HTTP API. Credentials, when configured, are sent as a basic-auth
// Authorization header; TLS is selected by the remote target flag.
package chroma

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/memlattice/go-vecdb/src/vecdb"
)

const defaultTimeout = 15 * time.Second

// Client talks to one Chroma server.
type Client struct {
	baseURL    string
	authHeader string
	hc         *http.Client
	cfg        vecdb.Config
}

// New builds a client from a remote target. The configured distance metric is
// forwarded as the collection's hnsw space on creation.
func New(cfg vecdb.Config) (*Client, error) {
	target, ok := cfg.Target.(vecdb.RemoteTarget)
	if !ok {
		return nil, errors.New("chroma: config target must be a RemoteTarget")
	}
	if target.Host == "" || target.Port == 0 {
		return nil, errors.New("chroma: remote target needs host and port")
	}
	scheme := "http"
	if target.TLS {
		scheme = "https"
	}
	c := &Client{
		baseURL: fmt.Sprintf("%s://%s:%d", scheme, target.Host, target.Port),
		hc:      &http.Client{Timeout: defaultTimeout},
		cfg:     cfg,
	}
	if target.Username != "" || target.Password != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(target.Username + ":" + target.Password))
		c.authHeader = "Basic " + creds
	}
	return c, nil
}

type collectionInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *Client) CreateCollection(ctx context.Context, name string) error {
	body := map[string]any{
		"name":     name,
		"metadata": map[string]any{"hnsw:space": hnswSpace(c.cfg.Metric())},
	}
	return c.do(ctx, http.MethodPost, "/api/v1/collections", body, nil)
}

func (c *Client) GetCollection(ctx context.Context, name string) (vecdb.Collection, error) {
	var info collectionInfo
	err := c.do(ctx, http.MethodGet, "/api/v1/collections/"+url.PathEscape(name), nil, &info)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.notFound() {
			return nil, fmt.Errorf("chroma: %q: %w", name, vecdb.ErrCollectionNotFound)
		}
		return nil, err
	}
	return &handle{client: c, id: info.ID}, nil
}

func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	var infos []collectionInfo
	if err := c.do(ctx, http.MethodGet, "/api/v1/collections", nil, &infos); err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names, nil
}

func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/collections/"+url.PathEscape(name), nil, nil)
}

// handle addresses one collection by its server-side id.
type handle struct {
	client *Client
	id     string
}

// getColumns mirrors the server's column-oriented get response.
type getColumns struct {
	IDs        []string         `json:"ids"`
	Embeddings [][]float32      `json:"embeddings"`
	Metadatas  []map[string]any `json:"metadatas"`
	Documents  []string         `json:"documents"`
}

// queryColumns carries query responses, nested one level deeper than get per
// the single-query-batch convention.
type queryColumns struct {
	IDs        [][]string         `json:"ids"`
	Embeddings [][][]float32      `json:"embeddings"`
	Metadatas  [][]map[string]any `json:"metadatas"`
	Documents  [][]string         `json:"documents"`
	Distances  [][]float64        `json:"distances"`
}

func (h *handle) Upsert(ctx context.Context, batch vecdb.Batch) error {
	body := map[string]any{"ids": batch.IDs, "metadatas": orNull(batch.Metadatas)}
	if batch.Vectors != nil {
		body["embeddings"] = batch.Vectors
		body["documents"] = batch.Documents
	}
	return h.client.do(ctx, http.MethodPost, h.path("upsert"), body, nil)
}

func (h *handle) Get(ctx context.Context, req vecdb.GetRequest) (*vecdb.GetResult, error) {
	body := map[string]any{
		"include": []string{"embeddings", "metadatas", "documents"},
	}
	if len(req.IDs) > 0 {
		body["ids"] = req.IDs
	}
	if len(req.Where) > 0 {
		body["where"] = req.Where
	}
	if req.Limit > 0 {
		body["limit"] = req.Limit
	}
	var cols getColumns
	if err := h.client.do(ctx, http.MethodPost, h.path("get"), body, &cols); err != nil {
		return nil, err
	}
	return &vecdb.GetResult{
		IDs:       cols.IDs,
		Vectors:   cols.Embeddings,
		Metadatas: cols.Metadatas,
		Documents: cols.Documents,
	}, nil
}

func (h *handle) Query(ctx context.Context, vector []float32, topK int, where map[string]any) (*vecdb.QueryResult, error) {
	body := map[string]any{
		"query_embeddings": [][]float32{vector},
		"n_results":        topK,
		"include":          []string{"embeddings", "metadatas", "documents", "distances"},
	}
	if len(where) > 0 {
		body["where"] = where
	}
	var cols queryColumns
	if err := h.client.do(ctx, http.MethodPost, h.path("query"), body, &cols); err != nil {
		return nil, err
	}
	res := &vecdb.QueryResult{}
	if len(cols.IDs) > 0 {
		res.IDs = cols.IDs[0]
	}
	if len(cols.Embeddings) > 0 {
		res.Vectors = cols.Embeddings[0]
	}
	if len(cols.Metadatas) > 0 {
		res.Metadatas = cols.Metadatas[0]
	}
	if len(cols.Documents) > 0 {
		res.Documents = cols.Documents[0]
	}
	if len(cols.Distances) > 0 {
		res.Distances = cols.Distances[0]
	}
	return res, nil
}

func (h *handle) Delete(ctx context.Context, ids []string) error {
	return h.client.do(ctx, http.MethodPost, h.path("delete"), map[string]any{"ids": ids}, nil)
}

func (h *handle) path(op string) string {
	return "/api/v1/collections/" + url.PathEscape(h.id) + "/" + op
}

// statusError carries a non-2xx response for classification upstream.
type statusError struct {
	method string
	url    string
	code   int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("chroma: %s %s -> http %d: %s", e.method, e.url, e.code, e.body)
}

func (e *statusError) notFound() bool {
	return e.code == http.StatusNotFound || strings.Contains(strings.ToLower(e.body), "does not exist")
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	u := c.baseURL + path

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 400 {
		return &statusError{method: method, url: u, code: resp.StatusCode, body: strings.TrimSpace(string(payload))}
	}
	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("chroma: decode %s response: %w", path, err)
		}
	}
	return nil
}

func hnswSpace(d vecdb.Distance) string {
	switch d {
	case vecdb.DistanceL2:
		return "l2"
	case vecdb.DistanceDot:
		return "ip"
	default:
		return "cosine"
	}
}

func orNull(metadatas []map[string]any) any {
	if metadatas == nil {
		return nil
	}
	return metadatas
}
