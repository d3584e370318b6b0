// Package mongodb implements the vecdb backend client on MongoDB Atlas.
// Collections map to Mongo collections in one database; similarity search
// runs through the Atlas $vectorSearch aggregation stage and expects a
// search index named "vector_index" over the embedding field.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/memlattice/go-vecdb/src/vecdb"
)

const closeTimeout = 5 * time.Second

// Client implements vecdb.Client over one MongoDB database.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	cfg    vecdb.Config
}

// New connects to MongoDB at uri and pins the client to database. The
// connection is verified with a ping before the client is returned.
func New(ctx context.Context, uri, database string, cfg vecdb.Config) (*Client, error) {
	if uri == "" {
		return nil, errors.New("mongodb: uri is required")
	}
	if database == "" {
		return nil, errors.New("mongodb: database name is required")
	}
	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}
	if err := mc.Ping(ctx, nil); err != nil {
		_ = mc.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb: ping: %w", err)
	}
	return &Client{client: mc, db: mc.Database(database), cfg: cfg}, nil
}

// Close disconnects from the server.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return c.client.Disconnect(ctx)
}

func (c *Client) CreateCollection(ctx context.Context, name string) error {
	if err := c.db.CreateCollection(ctx, name); err != nil {
		return fmt.Errorf("mongodb: create collection %q: %w", name, err)
	}
	return nil
}

func (c *Client) GetCollection(ctx context.Context, name string) (vecdb.Collection, error) {
	names, err := c.db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return nil, fmt.Errorf("mongodb: lookup collection %q: %w", name, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("mongodb: %q: %w", name, vecdb.ErrCollectionNotFound)
	}
	return &handle{col: c.db.Collection(name), cfg: c.cfg}, nil
}

func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	names, err := c.db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongodb: list collections: %w", err)
	}
	return names, nil
}

func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	if err := c.db.Collection(name).Drop(ctx); err != nil {
		return fmt.Errorf("mongodb: drop collection %q: %w", name, err)
	}
	return nil
}

type handle struct {
	col *mongo.Collection
	cfg vecdb.Config
}

// itemDocument is the stored shape of one record.
type itemDocument struct {
	ID        string         `bson:"_id"`
	Embedding []float64      `bson:"embedding,omitempty"`
	Metadata  map[string]any `bson:"metadata,omitempty"`
	Document  string         `bson:"document,omitempty"`
}

func (h *handle) Upsert(ctx context.Context, batch vecdb.Batch) error {
	if len(batch.IDs) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(batch.IDs))
	for i, id := range batch.IDs {
		var meta map[string]any
		if i < len(batch.Metadatas) {
			meta = batch.Metadatas[i]
		}
		if batch.Vectors == nil {
			// Metadata-only rewrite; $set keeps embedding and
			// document, upsert materializes unknown ids.
			models = append(models, mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": id}).
				SetUpdate(bson.M{"$set": bson.M{"metadata": meta}}).
				SetUpsert(true))
			continue
		}
		if dim := h.cfg.Dimension; dim > 0 && len(batch.Vectors[i]) != dim {
			return fmt.Errorf("mongodb: id %q has %d dims, want %d: %w",
				id, len(batch.Vectors[i]), dim, vecdb.ErrDimensionMismatch)
		}
		doc := itemDocument{
			ID:        id,
			Embedding: float64Embedding(batch.Vectors[i]),
			Metadata:  meta,
		}
		if i < len(batch.Documents) {
			doc.Document = batch.Documents[i]
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": id}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	_, err := h.col.BulkWrite(ctx, models)
	if err != nil {
		return fmt.Errorf("mongodb: bulk upsert: %w", err)
	}
	return nil
}

func (h *handle) Get(ctx context.Context, req vecdb.GetRequest) (*vecdb.GetResult, error) {
	filter := whereFilter(req.Where)
	if len(req.IDs) > 0 {
		filter["_id"] = bson.M{"$in": req.IDs}
	}
	opts := options.Find()
	if req.Limit > 0 {
		opts.SetLimit(int64(req.Limit))
	}
	cursor, err := h.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: find: %w", err)
	}
	defer cursor.Close(ctx)

	res := &vecdb.GetResult{}
	for cursor.Next(ctx) {
		var doc itemDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongodb: decode record: %w", err)
		}
		appendDocument(res, doc)
	}
	return res, cursor.Err()
}

func (h *handle) Query(ctx context.Context, vector []float32, topK int, where map[string]any) (*vecdb.QueryResult, error) {
	if topK <= 0 {
		return &vecdb.QueryResult{}, nil
	}
	if dim := h.cfg.Dimension; dim > 0 && len(vector) != dim {
		return nil, fmt.Errorf("mongodb: query has %d dims, want %d: %w",
			len(vector), dim, vecdb.ErrDimensionMismatch)
	}
	pipeline := mongo.Pipeline{
		{
			{Key: "$vectorSearch", Value: bson.D{
				{Key: "index", Value: "vector_index"},
				{Key: "path", Value: "embedding"},
				{Key: "queryVector", Value: float64Embedding(vector)},
				{Key: "numCandidates", Value: int64(topK * 10)},
				{Key: "limit", Value: int64(topK)},
			}},
		},
		{
			{Key: "$addFields", Value: bson.D{
				{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
			}},
		},
	}
	if filter := whereFilter(where); len(filter) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: filter}})
	}

	cursor, err := h.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongodb: vector search: %w", err)
	}
	defer cursor.Close(ctx)

	res := &vecdb.QueryResult{}
	for cursor.Next(ctx) {
		var doc struct {
			itemDocument `bson:",inline"`
			Score        float64 `bson:"score"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongodb: decode result: %w", err)
		}
		appendDocument(&res.GetResult, doc.itemDocument)
		// Atlas reports similarity in [0,1], larger is better; flip it
		// into a distance so smaller stays closer.
		res.Distances = append(res.Distances, 1-doc.Score)
	}
	return res, cursor.Err()
}

func (h *handle) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := h.col.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return fmt.Errorf("mongodb: delete: %w", err)
	}
	return nil
}

// EnsurePayloadIndex creates a secondary index over one metadata field.
func (h *handle) EnsurePayloadIndex(ctx context.Context, field string) error {
	_, err := h.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "metadata." + field, Value: 1}},
		Options: options.Index().SetName("metadata_" + field),
	})
	if err != nil {
		return fmt.Errorf("mongodb: index metadata.%s: %w", field, err)
	}
	return nil
}

// whereFilter rewrites flat metadata equality into dotted field matches.
func whereFilter(where map[string]any) bson.M {
	filter := bson.M{}
	for k, v := range where {
		filter["metadata."+k] = v
	}
	return filter
}

func appendDocument(res *vecdb.GetResult, doc itemDocument) {
	res.IDs = append(res.IDs, doc.ID)
	res.Vectors = append(res.Vectors, float32Embedding(doc.Embedding))
	res.Metadatas = append(res.Metadatas, doc.Metadata)
	res.Documents = append(res.Documents, doc.Document)
}

func float64Embedding(vec []float32) []float64 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float64, len(vec))
	for i, f := range vec {
		out[i] = float64(f)
	}
	return out
}

func float32Embedding(vec []float64) []float32 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float32, len(vec))
	for i, f := range vec {
		out[i] = float32(f)
	}
	return out
}
