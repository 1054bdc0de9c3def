package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Payload keys used for Qdrant points. Metadata keys are stored alongside
// these, so they must not collide with document metadata.
const (
	payloadContent = "content"
	payloadNodeID  = "node_id"
)

// QdrantConfig configures the Qdrant gRPC backend.
type QdrantConfig struct {
	Host string
	Port int

	// VectorSize is the embedding dimension used when creating collections.
	VectorSize int
}

// QdrantStore implements Store against a Qdrant server over gRPC. Unlike
// chromem, Qdrant does not embed text itself, so the store embeds queries
// and documents through the injected Embedder.
type QdrantStore struct {
	client     *qdrant.Client
	embedder   Embedder
	vectorSize int
}

// NewQdrantStore connects to a Qdrant server.
func NewQdrantStore(cfg QdrantConfig, embedder Embedder) (*QdrantStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	return &QdrantStore{
		client:     client,
		embedder:   embedder,
		vectorSize: cfg.VectorSize,
	}, nil
}

// CreateCollection creates a collection with cosine distance.
func (s *QdrantStore) CreateCollection(ctx context.Context, collection string, vectorSize int) error {
	ctx, span := tracer.Start(ctx, "qdrant.create_collection",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("checking collection %q: %w", collection, err)
	}
	if exists {
		return nil
	}

	if vectorSize <= 0 {
		vectorSize = s.vectorSize
	}
	if vectorSize <= 0 {
		return fmt.Errorf("%w: vector size is required", ErrInvalidConfig)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %q: %w", collection, err)
	}
	return nil
}

// CollectionExists reports whether the collection exists on the server.
func (s *QdrantStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("checking collection %q: %w", collection, err)
	}
	return exists, nil
}

// AddDocuments embeds documents and upserts them as points. The original
// document ID rides in the payload because Qdrant point IDs must be UUIDs.
func (s *QdrantStore) AddDocuments(ctx context.Context, collection string, docs []Document) error {
	ctx, span := tracer.Start(ctx, "qdrant.add_documents",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("count", len(docs)),
		))
	defer span.End()

	if len(docs) == 0 {
		return ErrEmptyDocuments
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("%w: got %d vectors for %d documents", ErrEmbeddingFailed, len(vectors), len(docs))
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, d := range docs {
		payload := map[string]any{
			payloadContent: d.Content,
			payloadNodeID:  d.ID,
		}
		for k, v := range d.Metadata {
			payload[k] = v
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointUUID(d.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to %q: %w", collection, err)
	}
	return nil
}

// Search embeds the query and performs a similarity search. Qdrant returns
// points ordered by score descending.
func (s *QdrantStore) Search(ctx context.Context, collection string, query string, k int) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "qdrant.search",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("k", k),
		))
	defer span.End()

	if k <= 0 {
		return []SearchResult{}, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %q: %w", collection, err)
	}

	out := make([]SearchResult, 0, len(points))
	for _, p := range points {
		result := SearchResult{
			ID:    p.GetId().GetUuid(),
			Score: p.GetScore(),
		}
		metadata := make(map[string]interface{})
		for key, value := range p.GetPayload() {
			switch key {
			case payloadContent:
				result.Content = value.GetStringValue()
			case payloadNodeID:
				if id := value.GetStringValue(); id != "" {
					result.ID = id
				}
			default:
				metadata[key] = valueToAny(value)
			}
		}
		if len(metadata) > 0 {
			result.Metadata = metadata
		}
		out = append(out, result)
	}

	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}

// Count returns the exact point count of the collection.
func (s *QdrantStore) Count(ctx context.Context, collection string) (int, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting collection %q: %w", collection, err)
	}
	return int(count), nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// pointUUID maps arbitrary document IDs onto stable UUIDs. IDs that are
// already UUIDs pass through unchanged, so repeated upserts overwrite.
func pointUUID(id string) string {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func valueToAny(v *qdrant.Value) interface{} {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return v.String()
	}
}

var _ Store = (*QdrantStore)(nil)
