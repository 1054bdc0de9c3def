// Package index binds a Space to its retrieval artifacts: the vector
// collection and the lexical docstore built at ingestion time.
package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fyrsmithlabs/docchat/internal/docstore"
	"github.com/fyrsmithlabs/docchat/internal/logging"
	"github.com/fyrsmithlabs/docchat/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("index")

var (
	// ErrIndexNotFound is returned when a space has no index artifacts.
	ErrIndexNotFound = errors.New("index not found")

	// ErrNoSpaces indicates an empty space list.
	ErrNoSpaces = errors.New("no spaces requested")
)

// Space identifies a document collection a user can query.
type Space struct {
	// ID is the unique space identifier.
	ID string

	// Type distinguishes shared from personal spaces.
	Type string
}

// Space types.
const (
	SpaceTypeShared   = "SHARED"
	SpaceTypePersonal = "PERSONAL"
)

// CollectionName returns the vector store collection backing this space.
func (s Space) CollectionName() string {
	return "space_" + sanitize(s.ID)
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}

// Index bundles the retrieval artifacts of one space.
type Index struct {
	Space      Space
	Collection string
	Vectors    vectorstore.Store
	Docs       *docstore.Store
}

// Close releases the docstore. The vector store is shared across indices
// and owned by the caller.
func (i *Index) Close() error {
	if i.Docs == nil {
		return nil
	}
	return i.Docs.Close()
}

// LoadError records a space whose index could not be loaded.
type LoadError struct {
	Space Space
	Err   error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("loading index for space %s: %v", e.Space.ID, e.Err)
}

func (e LoadError) Unwrap() error { return e.Err }

// Loader resolves spaces to loaded indices. Failures are reported
// per-space so one broken index does not fail the whole query.
type Loader interface {
	Load(ctx context.Context, spaces []Space) ([]*Index, []LoadError)
}

// FSLoader loads indices from a root directory laid out as
// <root>/<space id>/ with the docstore inside, vector collections living
// in the shared vector store.
type FSLoader struct {
	root    string
	vectors vectorstore.Store
	logger  *logging.Logger
}

// NewFSLoader creates a filesystem loader.
func NewFSLoader(root string, vectors vectorstore.Store, logger *logging.Logger) (*FSLoader, error) {
	if root == "" {
		return nil, fmt.Errorf("index root directory required")
	}
	if vectors == nil {
		return nil, fmt.Errorf("vector store required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FSLoader{root: root, vectors: vectors, logger: logger.Named("index")}, nil
}

// Load opens the index for each requested space. Spaces that fail come
// back in the LoadError slice; the returned indices are the ones that
// loaded cleanly.
func (l *FSLoader) Load(ctx context.Context, spaces []Space) ([]*Index, []LoadError) {
	ctx, span := tracer.Start(ctx, "index.load",
		trace.WithAttributes(attribute.Int("spaces", len(spaces))))
	defer span.End()

	loaded := make([]*Index, 0, len(spaces))
	var failed []LoadError
	for _, space := range spaces {
		idx, err := l.loadOne(ctx, space)
		if err != nil {
			l.logger.Warn(ctx, "failed to load space index",
				zap.String("space_id", space.ID),
				zap.Error(err))
			failed = append(failed, LoadError{Space: space, Err: err})
			continue
		}
		loaded = append(loaded, idx)
	}

	span.SetAttributes(
		attribute.Int("loaded", len(loaded)),
		attribute.Int("failed", len(failed)),
	)
	return loaded, failed
}

func (l *FSLoader) loadOne(ctx context.Context, space Space) (*Index, error) {
	if space.ID == "" {
		return nil, fmt.Errorf("%w: empty space ID", ErrIndexNotFound)
	}

	dir := filepath.Join(l.root, space.ID)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, space.ID)
		}
		return nil, fmt.Errorf("reading index directory: %w", err)
	}

	docs, err := docstore.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("opening docstore: %w", err)
	}

	collection := space.CollectionName()
	exists, err := l.vectors.CollectionExists(ctx, collection)
	if err != nil {
		_ = docs.Close()
		return nil, fmt.Errorf("checking vector collection: %w", err)
	}
	if !exists {
		// Dense retrieval needs the collection even if the docstore is
		// usable; treat a half-built index as missing.
		_ = docs.Close()
		return nil, fmt.Errorf("%w: vector collection %s", ErrIndexNotFound, collection)
	}

	return &Index{
		Space:      space,
		Collection: collection,
		Vectors:    l.vectors,
		Docs:       docs,
	}, nil
}

var _ Loader = (*FSLoader)(nil)
