// Package retriever adapts the vector store and docstore behind one
// retrieval contract so the pipeline can fan out over branches uniformly.
package retriever

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/docchat/internal/docstore"
	"github.com/fyrsmithlabs/docchat/internal/schema"
	"github.com/fyrsmithlabs/docchat/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("retriever")

var (
	// ErrInvalidIndexState indicates an index that cannot serve this
	// retrieval mode, detected at construction time.
	ErrInvalidIndexState = errors.New("invalid index state")

	// ErrIndexUnavailable indicates a retrieval-time read failure.
	ErrIndexUnavailable = errors.New("index unavailable")
)

// Retriever returns the topK most relevant nodes for a query, ordered by
// score descending. Rank position is what downstream fusion consumes, so
// the ordering contract matters more than the absolute scores.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]schema.ScoredNode, error)
}

// Dense retrieves by embedding similarity from a vector store collection.
type Dense struct {
	store      vectorstore.Store
	collection string
}

// NewDense creates a dense retriever over one collection.
func NewDense(store vectorstore.Store, collection string) (*Dense, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil vector store", ErrInvalidIndexState)
	}
	if collection == "" {
		return nil, fmt.Errorf("%w: empty collection name", ErrInvalidIndexState)
	}
	return &Dense{store: store, collection: collection}, nil
}

func (d *Dense) Retrieve(ctx context.Context, query string, topK int) ([]schema.ScoredNode, error) {
	ctx, span := tracer.Start(ctx, "retriever.dense",
		trace.WithAttributes(
			attribute.String("collection", d.collection),
			attribute.Int("top_k", topK),
		))
	defer span.End()

	results, err := d.store.Search(ctx, d.collection, query, topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	nodes := make([]schema.ScoredNode, 0, len(results))
	for _, r := range results {
		nodes = append(nodes, schema.ScoredNode{
			Node: schema.Node{
				ID:       r.ID,
				Text:     r.Content,
				Metadata: r.Metadata,
			},
			Score: float64(r.Score),
		})
	}

	span.SetAttributes(attribute.Int("results", len(nodes)))
	return nodes, nil
}

// Lexical retrieves by BM25 over a docstore.
type Lexical struct {
	docs *docstore.Store
}

// NewLexical creates a lexical retriever. An empty docstore cannot score
// anything meaningfully, so it is rejected up front and the pipeline
// degrades that branch instead of querying it.
func NewLexical(docs *docstore.Store) (*Lexical, error) {
	if docs == nil {
		return nil, fmt.Errorf("%w: nil docstore", ErrInvalidIndexState)
	}
	if docs.Count() == 0 {
		return nil, fmt.Errorf("%w: docstore has no nodes", ErrInvalidIndexState)
	}
	return &Lexical{docs: docs}, nil
}

func (l *Lexical) Retrieve(ctx context.Context, query string, topK int) ([]schema.ScoredNode, error) {
	ctx, span := tracer.Start(ctx, "retriever.lexical",
		trace.WithAttributes(attribute.Int("top_k", topK)))
	defer span.End()

	nodes, err := l.docs.Search(ctx, query, topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	span.SetAttributes(attribute.Int("results", len(nodes)))
	return nodes, nil
}

var (
	_ Retriever = (*Dense)(nil)
	_ Retriever = (*Lexical)(nil)
)
