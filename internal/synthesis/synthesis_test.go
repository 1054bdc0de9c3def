package synthesis

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/docchat/internal/persona"
	"github.com/fyrsmithlabs/docchat/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChat struct {
	reply string
	err   error
	got   []schema.ChatMessage
}

func (f *fakeChat) Chat(_ context.Context, messages []schema.ChatMessage) (string, error) {
	f.got = messages
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func scoredNodes(texts ...string) []schema.ScoredNode {
	out := make([]schema.ScoredNode, len(texts))
	for i, t := range texts {
		out[i] = schema.ScoredNode{Node: schema.Node{ID: t, Text: t}}
	}
	return out
}

func TestContextString(t *testing.T) {
	assert.Empty(t, ContextString(nil))

	got := ContextString(scoredNodes("first chunk", "second chunk"))
	assert.Equal(t, "Context Chunk 1:\nfirst chunk\n\nContext Chunk 2:\nsecond chunk", got)
}

func TestSynthesizeAssemblesMessages(t *testing.T) {
	client := &fakeChat{reply: " The policy allows refunds within 14 days. "}
	s, err := New(client)
	require.NoError(t, err)

	history := []schema.ChatMessage{schema.NewUserMessage("earlier question")}
	answer, err := s.Synthesize(context.Background(), "What is the refund policy?",
		history, scoredNodes("refund policy text"), persona.Default())
	require.NoError(t, err)
	assert.Equal(t, "The policy allows refunds within 14 days.", answer)

	// system, history in order, then the rendered final user message
	require.Len(t, client.got, 3)
	assert.Equal(t, schema.RoleSystem, client.got[0].Role)
	assert.Equal(t, "You are a friendly and helpful assistant.", client.got[0].Content)
	assert.Equal(t, schema.RoleUser, client.got[1].Role)
	assert.Equal(t, "earlier question", client.got[1].Content)

	user := client.got[2].Content
	assert.Contains(t, user, "Context Chunk 1:\nrefund policy text")
	assert.Contains(t, user, "Query: What is the refund policy?")
	assert.NotContains(t, user, "Human:")
}

func TestSynthesizeHistorySurvivesAnyTemplate(t *testing.T) {
	client := &fakeChat{reply: "ok"}
	s, err := New(client)
	require.NoError(t, err)

	// A persona that never references {history_str} still gets the
	// conversation, because history travels as chat messages.
	bare := persona.Persona{
		Key:                "bare",
		SystemPrompt:       "s",
		UserPromptTemplate: "Q:{query_str}",
	}
	history := []schema.ChatMessage{
		schema.NewUserMessage("I ordered a kettle."),
		schema.NewAssistantMessage("Noted."),
	}
	_, err = s.Synthesize(context.Background(), "when does it ship?", history, nil, bare)
	require.NoError(t, err)

	require.Len(t, client.got, 4)
	assert.Equal(t, "I ordered a kettle.", client.got[1].Content)
	assert.Equal(t, schema.RoleAssistant, client.got[2].Role)
	assert.Equal(t, "Q:when does it ship?", client.got[3].Content)
}

func TestSynthesizeEmptyContext(t *testing.T) {
	client := &fakeChat{reply: "The context does not contain that information."}
	s, err := New(client)
	require.NoError(t, err)

	answer, err := s.Synthesize(context.Background(), "question", nil, nil, persona.Default())
	require.NoError(t, err)
	assert.NotEmpty(t, answer)
	assert.NotContains(t, client.got[1].Content, "Context Chunk")
}

func TestSynthesizeModelFailure(t *testing.T) {
	s, err := New(&fakeChat{err: errors.New("down")})
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), "q", nil, nil, persona.Default())
	assert.ErrorIs(t, err, ErrSynthesisFailed)
}

func TestSynthesizeCancellationSurfaces(t *testing.T) {
	s, err := New(&fakeChat{err: context.Canceled})
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), "q", nil, nil, persona.Default())
	assert.ErrorIs(t, err, ErrSynthesisFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSynthesizeInvalidPersona(t *testing.T) {
	s, err := New(&fakeChat{reply: "x"})
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), "q", nil, nil, persona.Persona{Key: "broken"})
	assert.ErrorIs(t, err, ErrSynthesisFailed)
}

func TestDirectKeepsHistoryAsMessages(t *testing.T) {
	client := &fakeChat{reply: "hello again"}
	s, err := New(client)
	require.NoError(t, err)

	history := []schema.ChatMessage{
		{Role: schema.RoleSystem, Content: "stale system prompt"},
		schema.NewUserMessage("hi"),
		schema.NewAssistantMessage("hello"),
	}
	answer, err := s.Direct(context.Background(), "how are you?", history, persona.Default())
	require.NoError(t, err)
	assert.Equal(t, "hello again", answer)

	// persona system + user/assistant history + new query, stale system dropped
	require.Len(t, client.got, 4)
	assert.Equal(t, schema.RoleSystem, client.got[0].Role)
	assert.Equal(t, "You are a friendly and helpful assistant.", client.got[0].Content)
	assert.Equal(t, "how are you?", client.got[3].Content)
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
