package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("vectorstore")

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means in-memory.
	Path string

	// Compress enables gzip compression of persisted collections.
	Compress bool
}

// ChromemStore implements Store using chromem-go, an embedded vector
// database with optional on-disk persistence. Collections map one-to-one
// to Spaces.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewChromemStore creates a chromem-backed store. A non-empty Path opens
// (or creates) a persistent database and picks up collections already on
// disk.
func NewChromemStore(cfg ChromemConfig, embedder Embedder) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}

	var db *chromem.DB
	var err error
	if cfg.Path != "" {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening persistent database: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	s := &ChromemStore{
		db:          db,
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
	}

	// Re-attach our embedding func to collections restored from disk.
	for name := range db.ListCollections() {
		col := db.GetCollection(name, s.embeddingFunc())
		if col != nil {
			s.collections[name] = col
		}
	}

	return s, nil
}

// embeddingFunc adapts the Embedder to chromem's per-text callback.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vec, err := s.embedder.EmbedQuery(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}
		return vec, nil
	}
}

// CreateCollection creates a collection. chromem infers the vector size
// from the first embedding, so vectorSize is accepted for interface
// compatibility but not enforced here.
func (s *ChromemStore) CreateCollection(ctx context.Context, collection string, vectorSize int) error {
	_, span := tracer.Start(ctx, "chromem.create_collection",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection]; ok {
		return nil
	}

	col, err := s.db.GetOrCreateCollection(collection, nil, s.embeddingFunc())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %q: %w", collection, err)
	}
	s.collections[collection] = col
	return nil
}

// CollectionExists reports whether the collection exists.
func (s *ChromemStore) CollectionExists(_ context.Context, collection string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[collection]
	return ok, nil
}

// AddDocuments embeds and stores documents in the collection.
func (s *ChromemStore) AddDocuments(ctx context.Context, collection string, docs []Document) error {
	ctx, span := tracer.Start(ctx, "chromem.add_documents",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("count", len(docs)),
		))
	defer span.End()

	if len(docs) == 0 {
		return ErrEmptyDocuments
	}

	col, err := s.collection(collection)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	converted := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		converted = append(converted, chromem.Document{
			ID:       d.ID,
			Content:  d.Content,
			Metadata: metadataToStrings(d.Metadata),
		})
	}

	if err := col.AddDocuments(ctx, converted, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents to %q: %w", collection, err)
	}
	return nil
}

// Search returns up to k results ordered by similarity descending.
// chromem rejects result counts above the document count, so k is capped.
func (s *ChromemStore) Search(ctx context.Context, collection string, query string, k int) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "chromem.search",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("k", k),
		))
	defer span.End()

	col, err := s.collection(collection)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	count := col.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if k > count {
		k = count
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}

	results, err := col.Query(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %q: %w", collection, err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Metadata: metadataFromStrings(r.Metadata),
		})
	}
	// chromem already ranks by similarity; keep the ordering explicit since
	// downstream rank fusion depends on it.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}

// Count returns the number of documents in the collection.
func (s *ChromemStore) Count(_ context.Context, collection string) (int, error) {
	col, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// Close is a no-op for chromem; persistence happens on write.
func (s *ChromemStore) Close() error {
	return nil
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return col, nil
}

// metadataToStrings converts metadata for chromem, which stores only
// string values.
func metadataToStrings(metadata map[string]interface{}) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

func metadataFromStrings(metadata map[string]string) map[string]interface{} {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

var _ Store = (*ChromemStore)(nil)
