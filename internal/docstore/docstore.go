// Package docstore stores retrieval nodes and serves lexical (BM25)
// search over them via a bleve full-text index.
//
// Each Space owns one docstore. The node map is the source of truth for
// node content and metadata; the bleve index only holds the analyzed text
// and hands back node IDs with BM25 scores.
package docstore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/fyrsmithlabs/docchat/internal/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("docstore")

var (
	// ErrNodeNotFound is returned when a node ID is not in the store.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEmptyNodes indicates empty or nil node input.
	ErrEmptyNodes = errors.New("empty or nil nodes")
)

const nodesFileName = "nodes.jsonl"

// indexedNode is the shape bleve analyzes. Only the text participates in
// scoring.
type indexedNode struct {
	Text string `json:"text"`
}

// Store holds nodes by ID and a bleve index over their text.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]schema.Node
	index bleve.Index

	// path is the persistence directory, empty for in-memory stores.
	path string
}

func buildMapping() mapping.IndexMapping {
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = en.AnalyzerName
	textField.Store = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("text", textField)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = en.AnalyzerName
	return m
}

// NewMemory creates an in-memory docstore.
func NewMemory() (*Store, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("creating bleve index: %w", err)
	}
	return &Store{nodes: make(map[string]schema.Node), index: idx}, nil
}

// Open opens a persistent docstore rooted at dir, creating it if absent.
// Nodes live in a JSONL file next to the bleve index directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating docstore directory: %w", err)
	}

	indexPath := filepath.Join(dir, "bleve")
	var idx bleve.Index
	var err error
	if _, statErr := os.Stat(indexPath); os.IsNotExist(statErr) {
		idx, err = bleve.New(indexPath, buildMapping())
	} else {
		idx, err = bleve.Open(indexPath)
	}
	if err != nil {
		return nil, fmt.Errorf("opening bleve index: %w", err)
	}

	s := &Store{nodes: make(map[string]schema.Node), index: idx, path: dir}
	if err := s.loadNodes(); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) loadNodes() error {
	f, err := os.Open(filepath.Join(s.path, nodesFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening nodes file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var n schema.Node
		if err := json.Unmarshal(line, &n); err != nil {
			return fmt.Errorf("decoding node record: %w", err)
		}
		s.nodes[n.ID] = n
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading nodes file: %w", err)
	}
	return nil
}

// Add stores and indexes nodes. Re-adding an existing ID overwrites it.
func (s *Store) Add(ctx context.Context, nodes []schema.Node) error {
	_, span := tracer.Start(ctx, "docstore.add",
		trace.WithAttributes(attribute.Int("count", len(nodes))))
	defer span.End()

	if len(nodes) == 0 {
		return ErrEmptyNodes
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.index.NewBatch()
	for _, n := range nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: node without ID", ErrEmptyNodes)
		}
		if err := batch.Index(n.ID, indexedNode{Text: n.Text}); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("indexing node %s: %w", n.ID, err)
		}
	}
	if err := s.index.Batch(batch); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("applying index batch: %w", err)
	}

	for _, n := range nodes {
		s.nodes[n.ID] = n
	}

	if s.path != "" {
		if err := s.persistNodes(nodes); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}
	return nil
}

func (s *Store) persistNodes(nodes []schema.Node) error {
	f, err := os.OpenFile(filepath.Join(s.path, nodesFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening nodes file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, n := range nodes {
		if err := enc.Encode(n); err != nil {
			return fmt.Errorf("writing node record: %w", err)
		}
	}
	return nil
}

// Get returns the node with the given ID.
func (s *Store) Get(id string) (schema.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return schema.Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n, nil
}

// Search runs a BM25 match query over node text and returns up to k
// scored nodes, highest score first. Hits whose node record has gone
// missing are skipped rather than failing the search.
func (s *Store) Search(ctx context.Context, query string, k int) ([]schema.ScoredNode, error) {
	_, span := tracer.Start(ctx, "docstore.search",
		trace.WithAttributes(attribute.Int("k", k)))
	defer span.End()

	if k <= 0 {
		return []schema.ScoredNode{}, nil
	}

	mq := bleve.NewMatchQuery(query)
	mq.SetField("text")
	req := bleve.NewSearchRequest(mq)
	req.Size = k

	s.mu.RLock()
	defer s.mu.RUnlock()

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching index: %w", err)
	}

	out := make([]schema.ScoredNode, 0, len(res.Hits))
	for _, hit := range res.Hits {
		n, ok := s.nodes[hit.ID]
		if !ok {
			continue
		}
		out = append(out, schema.ScoredNode{Node: n, Score: hit.Score})
	}

	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}

// Count returns the number of stored nodes.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Close closes the underlying bleve index.
func (s *Store) Close() error {
	return s.index.Close()
}
