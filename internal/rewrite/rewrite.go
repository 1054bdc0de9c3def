// Package rewrite expands user queries before dense retrieval using the
// HyDE technique: the model drafts a hypothetical passage answering the
// question, and that passage is embedded instead of the raw query. The
// hypothetical answer lands closer to real answer passages in embedding
// space than the question does.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/docchat/internal/llm"
	"github.com/fyrsmithlabs/docchat/internal/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("rewrite")

// ErrRewriteFailed is returned when the model call fails or produces an
// empty passage.
var ErrRewriteFailed = errors.New("query rewrite failed")

// hydePrompt asks the model for a hypothetical passage. Chat history is
// included so follow-up questions resolve their references.
const hydePrompt = `Please write a passage to answer the <question> below.
Try to include as many key details as possible.
Use the <chat_history_str> to understand the context of the question.

<chat_history_str>
{chat_history_str}
</chat_history_str>

<question>
{question}
</question>

Passage:`

// HyDE rewrites queries into hypothetical answer passages.
type HyDE struct {
	client llm.ChatClient
}

// NewHyDE creates a rewriter backed by the given chat client.
func NewHyDE(client llm.ChatClient) (*HyDE, error) {
	if client == nil {
		return nil, fmt.Errorf("chat client required")
	}
	return &HyDE{client: client}, nil
}

// Rewrite returns a hypothetical passage answering the query. History may
// be empty. The original query is never mutated; callers decide whether
// to use the rewritten form.
func (h *HyDE) Rewrite(ctx context.Context, query string, history []schema.ChatMessage) (string, error) {
	ctx, span := tracer.Start(ctx, "rewrite.hyde")
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%w: empty query", ErrRewriteFailed)
	}

	prompt := strings.NewReplacer(
		"{chat_history_str}", schema.HistoryString(history),
		"{question}", query,
	).Replace(hydePrompt)

	passage, err := h.client.Chat(ctx, []schema.ChatMessage{schema.NewUserMessage(prompt)})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: %w", ErrRewriteFailed, err)
	}

	passage = strings.TrimSpace(passage)
	if passage == "" {
		err := fmt.Errorf("%w: model returned empty passage", ErrRewriteFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(attribute.Int("passage_len", len(passage)))
	return passage, nil
}
