// Package vectorstore defines the interface for vector storage operations
// and provides the chromem-go (embedded) and Qdrant (external) backends.
package vectorstore

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/docchat/internal/embeddings"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)

// Document represents a document to be stored in the vector store.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Content is the text content of the document.
	Content string

	// Metadata contains additional key-value pairs carried through search.
	Metadata map[string]interface{}
}

// SearchResult represents a search result from the vector store.
type SearchResult struct {
	// ID is the document identifier.
	ID string

	// Content is the document text content.
	Content string

	// Score is the similarity score (higher = more similar).
	Score float32

	// Metadata contains the document metadata.
	Metadata map[string]interface{}
}

// Store is the interface for vector storage operations.
//
// A collection holds one Space's vectors. Search results are always ordered
// by similarity descending; rank fusion depends on that ordering. Stores
// are read-safe under concurrent queries: nothing in the query pipeline
// mutates a collection.
type Store interface {
	// AddDocuments embeds and stores documents in the named collection.
	AddDocuments(ctx context.Context, collection string, docs []Document) error

	// Search performs similarity search, returning up to k results ordered
	// by similarity score (highest first).
	Search(ctx context.Context, collection string, query string, k int) ([]SearchResult, error)

	// CreateCollection creates a collection for vectors of the given size.
	CreateCollection(ctx context.Context, collection string, vectorSize int) error

	// CollectionExists reports whether the collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// Count returns the number of documents in the collection.
	Count(ctx context.Context, collection string) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// Embedder is the embedding capability consumed by stores. It aliases the
// embeddings package interface so callers wire one implementation for both.
type Embedder = embeddings.Embedder
