// Package synthesis turns fused context nodes into a grounded answer by
// assembling the persona prompts and calling the chat model.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/docchat/internal/llm"
	"github.com/fyrsmithlabs/docchat/internal/persona"
	"github.com/fyrsmithlabs/docchat/internal/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("synthesis")

// ErrSynthesisFailed is returned when the model call fails.
var ErrSynthesisFailed = errors.New("response synthesis failed")

// Synthesizer generates answers from retrieved context.
type Synthesizer struct {
	client llm.ChatClient
}

// New creates a synthesizer backed by the given chat client.
func New(client llm.ChatClient) (*Synthesizer, error) {
	if client == nil {
		return nil, fmt.Errorf("chat client required")
	}
	return &Synthesizer{client: client}, nil
}

// ContextString renders nodes as numbered context chunks, the shape the
// persona templates expect in their {context_str} slot.
func ContextString(nodes []schema.ScoredNode) string {
	if len(nodes) == 0 {
		return ""
	}
	var b strings.Builder
	for i, n := range nodes {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Context Chunk %d:\n%s", i+1, n.Node.Text)
	}
	return b.String()
}

// Synthesize answers the query from the given context nodes. The message
// list is persona system prompt, then the conversation history in order,
// then a final user message rendered from the persona template; templates
// may additionally inline a transcript via {history_str}. With no nodes
// it still produces an answer; the persona prompts instruct the model to
// say when the context lacks the answer.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, history []schema.ChatMessage, nodes []schema.ScoredNode, p persona.Persona) (string, error) {
	ctx, span := tracer.Start(ctx, "synthesis.synthesize")
	defer span.End()

	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}

	userPrompt := p.RenderUserPrompt(
		ContextString(nodes),
		schema.HistoryString(history),
		query,
	)

	messages := make([]schema.ChatMessage, 0, len(history)+2)
	messages = append(messages, schema.ChatMessage{Role: schema.RoleSystem, Content: p.SystemPrompt})
	for _, m := range history {
		if m.Role == schema.RoleSystem {
			continue
		}
		messages = append(messages, m)
	}
	messages = append(messages, schema.NewUserMessage(userPrompt))

	span.SetAttributes(
		attribute.String("persona", p.Key),
		attribute.Int("context_nodes", len(nodes)),
	)

	answer, err := s.client.Chat(ctx, messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}

	return strings.TrimSpace(answer), nil
}

// Direct answers without retrieved context, used when no index could be
// loaded. The persona system prompt still applies and the conversation
// history carries the thread.
func (s *Synthesizer) Direct(ctx context.Context, query string, history []schema.ChatMessage, p persona.Persona) (string, error) {
	ctx, span := tracer.Start(ctx, "synthesis.direct")
	defer span.End()

	messages := make([]schema.ChatMessage, 0, len(history)+2)
	messages = append(messages, schema.ChatMessage{Role: schema.RoleSystem, Content: p.SystemPrompt})
	for _, m := range history {
		if m.Role == schema.RoleSystem {
			continue
		}
		messages = append(messages, m)
	}
	messages = append(messages, schema.NewUserMessage(query))

	answer, err := s.client.Chat(ctx, messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}

	return strings.TrimSpace(answer), nil
}
