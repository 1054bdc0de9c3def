// Package rag orchestrates the query pipeline: index loading, query
// rewriting, hybrid retrieval fan-out, rank fusion, response synthesis
// and source citation.
//
// The pipeline tolerates partial failure throughout. A space whose index
// cannot load, a retrieval branch that errors or times out, a rewrite
// that fails: each degrades its own contribution and the query still
// answers from whatever survived. Only synthesis failure, an empty
// query or a cancelled context fail the whole run.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/docchat/internal/config"
	"github.com/fyrsmithlabs/docchat/internal/fusion"
	"github.com/fyrsmithlabs/docchat/internal/index"
	"github.com/fyrsmithlabs/docchat/internal/llm"
	"github.com/fyrsmithlabs/docchat/internal/logging"
	"github.com/fyrsmithlabs/docchat/internal/persona"
	"github.com/fyrsmithlabs/docchat/internal/retriever"
	"github.com/fyrsmithlabs/docchat/internal/schema"
	"github.com/fyrsmithlabs/docchat/internal/sources"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("rag")

var (
	// ErrEmptyQuery is returned for blank queries.
	ErrEmptyQuery = errors.New("empty query")

	// ErrRewriteRequired is returned when query rewriting is configured as
	// required and fails.
	ErrRewriteRequired = errors.New("required query rewrite failed")
)

// fallbackApology is the answer of last resort when even the error
// explanation call fails.
const fallbackApology = "I'm sorry, I am unable to answer your question right now. Please try again later."

// Rewriter expands a query before dense retrieval.
type Rewriter interface {
	Rewrite(ctx context.Context, query string, history []schema.ChatMessage) (string, error)
}

// Synthesizer generates the final answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, history []schema.ChatMessage, nodes []schema.ScoredNode, p persona.Persona) (string, error)
	Direct(ctx context.Context, query string, history []schema.ChatMessage, p persona.Persona) (string, error)
}

// Request is one question against a set of spaces.
type Request struct {
	// Query is the user's question.
	Query string

	// History is the prior conversation, oldest first.
	History []schema.ChatMessage

	// Spaces are the document collections to search.
	Spaces []index.Space

	// Persona selects the answer style; empty means the default persona.
	Persona string
}

// Result is the answer with its provenance and degradation report.
type Result struct {
	// Response is the final answer text, sources block included.
	Response string

	// SourceNodes are the fused context nodes the answer was grounded on.
	SourceNodes []schema.ScoredNode

	// FailedSpaces lists space IDs whose index could not be loaded.
	FailedSpaces []string

	// FailedBranches lists retrieval branches that errored or timed out.
	FailedBranches []string
}

// Pipeline wires the query pipeline stages together.
type Pipeline struct {
	loader    index.Loader
	rewriter  Rewriter
	synth     Synthesizer
	personas  *persona.Registry
	errClient llm.ChatClient
	cfg       config.RetrievalConfig
	logger    *logging.Logger
}

// Options carries the pipeline dependencies.
type Options struct {
	Loader      index.Loader
	Rewriter    Rewriter
	Synthesizer Synthesizer
	Personas    *persona.Registry

	// ErrorClient phrases user-facing apologies on pipeline failure.
	// Optional; without it the hardcoded apology is used.
	ErrorClient llm.ChatClient

	Retrieval config.RetrievalConfig
	Logger    *logging.Logger
}

// New creates a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Loader == nil {
		return nil, fmt.Errorf("index loader required")
	}
	if opts.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer required")
	}
	if opts.Personas == nil {
		opts.Personas = persona.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	cfg := opts.Retrieval
	cfg.ApplyDefaults()
	if !cfg.DisableHyDE && opts.Rewriter == nil {
		return nil, fmt.Errorf("rewriter required while hyde is enabled; set retrieval.disable_hyde to run without it")
	}

	return &Pipeline{
		loader:    opts.Loader,
		rewriter:  opts.Rewriter,
		synth:     opts.Synthesizer,
		personas:  opts.Personas,
		errClient: opts.ErrorClient,
		cfg:       cfg,
		logger:    opts.Logger.Named("rag"),
	}, nil
}

// Answer runs the full query pipeline. The error return is reserved for
// invalid input and cancellation; operational failures inside the
// pipeline surface as an apologetic Result instead, so callers always
// have something to show the user.
func (p *Pipeline) Answer(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "rag.answer",
		trace.WithAttributes(
			attribute.Int("spaces", len(req.Spaces)),
			attribute.String("persona", req.Persona),
		))
	defer span.End()

	if strings.TrimSpace(req.Query) == "" {
		queriesTotal.WithLabelValues("invalid").Inc()
		return nil, ErrEmptyQuery
	}
	if err := ctx.Err(); err != nil {
		queriesTotal.WithLabelValues("cancelled").Inc()
		return nil, err
	}

	pers := p.personas.Get(req.Persona)
	history := schema.LastN(req.History, p.cfg.HistoryWindow)

	result, err := p.run(ctx, req, pers, history)
	if err != nil {
		// A cancelled run is surfaced as-is, never converted into an
		// apology answer. The ctx check catches causes that a collaborator
		// failed to propagate through its error chain.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			queriesTotal.WithLabelValues("cancelled").Inc()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if errors.Is(err, ErrRewriteRequired) {
			queriesTotal.WithLabelValues("error").Inc()
			return nil, err
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error(ctx, "query pipeline failed", zap.Error(err))
		queriesTotal.WithLabelValues("error").Inc()

		return &Result{Response: p.queryError(ctx, err)}, nil
	}

	queryDuration.Observe(time.Since(start).Seconds())
	queriesTotal.WithLabelValues("ok").Inc()
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, req Request, pers persona.Persona, history []schema.ChatMessage) (*Result, error) {
	result := &Result{}

	indices, loadErrs := p.loader.Load(ctx, req.Spaces)
	for _, le := range loadErrs {
		result.FailedSpaces = append(result.FailedSpaces, le.Space.ID)
	}
	defer func() {
		for _, idx := range indices {
			_ = idx.Close()
		}
	}()

	// With nothing to retrieve from, answer as a plain chat turn.
	if len(indices) == 0 {
		p.logger.Warn(ctx, "no indices loaded, answering without context",
			zap.Int("requested_spaces", len(req.Spaces)),
			zap.Int("failed_spaces", len(result.FailedSpaces)))
		response, err := p.synth.Direct(ctx, req.Query, history, pers)
		if err != nil {
			return nil, fmt.Errorf("direct answer: %w", err)
		}
		result.Response = response
		return result, nil
	}

	rewritten := p.rewriteQuery(ctx, req.Query, history, result)
	if p.cfg.HyDERequired && rewritten == "" {
		return nil, ErrRewriteRequired
	}

	branches := p.retrieveBranches(ctx, indices, req.Query, rewritten, result)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fused := fusion.ReciprocalRankFusion(branches, p.cfg.RRFK, p.cfg.FusedTopK)
	fusedNodes.Observe(float64(len(fused)))
	result.SourceNodes = fused

	response, err := p.synth.Synthesize(ctx, req.Query, history, fused, pers)
	if err != nil {
		return nil, fmt.Errorf("synthesis: %w", err)
	}

	if block := sources.FormatDocumentSources(fused); block != "" {
		response += "\n" + block
	}
	result.Response = response
	return result, nil
}

// rewriteQuery runs HyDE unless it was disabled. Failure degrades to ""
// so the hypothetical-passage branches simply drop out.
func (p *Pipeline) rewriteQuery(ctx context.Context, query string, history []schema.ChatMessage, result *Result) string {
	if p.cfg.DisableHyDE {
		return ""
	}

	rewritten, err := p.rewriter.Rewrite(ctx, query, history)
	if err != nil {
		p.logger.Warn(ctx, "query rewrite failed, dense retrieval uses the raw query",
			zap.Error(err))
		branchFailures.WithLabelValues("rewrite").Inc()
		result.FailedBranches = append(result.FailedBranches, "rewrite")
		return ""
	}
	return rewritten
}

type branchResult struct {
	key   string
	nodes []schema.ScoredNode
	err   error
}

// retrieveBranches fans out over every (index, mode) pair concurrently.
// Each failed branch contributes an empty list; the rest still fuse.
func (p *Pipeline) retrieveBranches(ctx context.Context, indices []*index.Index, query, rewritten string, result *Result) map[string][]schema.ScoredNode {
	ctx, span := tracer.Start(ctx, "rag.retrieve",
		trace.WithAttributes(attribute.Int("indices", len(indices))))
	defer span.End()

	type branch struct {
		key string
		run func(context.Context) ([]schema.ScoredNode, error)
	}

	var plan []branch
	for _, idx := range indices {
		idx := idx
		spaceID := idx.Space.ID

		plan = append(plan, branch{
			key: "dense_" + spaceID,
			run: func(ctx context.Context) ([]schema.ScoredNode, error) {
				r, err := retriever.NewDense(idx.Vectors, idx.Collection)
				if err != nil {
					return nil, err
				}
				return r.Retrieve(ctx, query, p.cfg.TopK)
			},
		})
		if rewritten != "" {
			plan = append(plan, branch{
				key: "dense_hyde_" + spaceID,
				run: func(ctx context.Context) ([]schema.ScoredNode, error) {
					r, err := retriever.NewDense(idx.Vectors, idx.Collection)
					if err != nil {
						return nil, err
					}
					return r.Retrieve(ctx, rewritten, p.cfg.TopK)
				},
			})
		}
		plan = append(plan, branch{
			key: "lexical_" + spaceID,
			run: func(ctx context.Context) ([]schema.ScoredNode, error) {
				r, err := retriever.NewLexical(idx.Docs)
				if err != nil {
					return nil, err
				}
				return r.Retrieve(ctx, query, p.cfg.TopK)
			},
		})
	}

	results := make(chan branchResult, len(plan))
	var wg sync.WaitGroup
	for _, b := range plan {
		b := b
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results <- branchResult{key: b.key, err: fmt.Errorf("branch panicked: %v", r)}
				}
			}()

			branchCtx := ctx
			if p.cfg.BranchTimeout > 0 {
				var cancel context.CancelFunc
				branchCtx, cancel = context.WithTimeout(ctx, p.cfg.BranchTimeout)
				defer cancel()
			}

			nodes, err := b.run(branchCtx)
			results <- branchResult{key: b.key, nodes: nodes, err: err}
		}()
	}
	wg.Wait()
	close(results)

	branches := make(map[string][]schema.ScoredNode, len(plan))
	for br := range results {
		if br.err != nil {
			p.logger.Warn(ctx, "retrieval branch degraded",
				zap.String("branch", br.key),
				zap.Error(br.err))
			branchFailures.WithLabelValues(branchKind(br.key)).Inc()
			result.FailedBranches = append(result.FailedBranches, br.key)
			branches[br.key] = nil
			continue
		}
		branches[br.key] = br.nodes
	}

	span.SetAttributes(attribute.Int("branches", len(branches)))
	return branches
}

func branchKind(key string) string {
	switch {
	case strings.HasPrefix(key, "dense_hyde_"):
		return "dense_hyde"
	case strings.HasPrefix(key, "dense_"):
		return "dense"
	case strings.HasPrefix(key, "lexical_"):
		return "lexical"
	default:
		return "other"
	}
}

// queryError produces the user-facing message for a failed query. The
// model is asked to apologize and briefly describe the problem; if that
// call fails too, a fixed apology is returned.
func (p *Pipeline) queryError(ctx context.Context, cause error) string {
	if p.errClient == nil {
		return fallbackApology
	}

	prompt := fmt.Sprintf(
		"You are a helpful assistant. Something went wrong while answering the user's question. "+
			"Apologize and explain the problem below in one or two friendly sentences, "+
			"without technical jargon.\n\nProblem: %v", cause)

	msg, err := p.errClient.Chat(ctx, []schema.ChatMessage{schema.NewUserMessage(prompt)})
	if err != nil || strings.TrimSpace(msg) == "" {
		return fallbackApology
	}
	return strings.TrimSpace(msg)
}
