package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/docchat/internal/config"
	"github.com/fyrsmithlabs/docchat/internal/index"
	"github.com/fyrsmithlabs/docchat/internal/persona"
	"github.com/fyrsmithlabs/docchat/internal/rag"
	"github.com/fyrsmithlabs/docchat/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoader struct{}

func (stubLoader) Load(_ context.Context, spaces []index.Space) ([]*index.Index, []index.LoadError) {
	var failed []index.LoadError
	for _, s := range spaces {
		failed = append(failed, index.LoadError{Space: s, Err: index.ErrIndexNotFound})
	}
	return nil, failed
}

type stubSynth struct{}

func (stubSynth) Synthesize(_ context.Context, _ string, _ []schema.ChatMessage, _ []schema.ScoredNode, _ persona.Persona) (string, error) {
	return "synthesized", nil
}

func (stubSynth) Direct(_ context.Context, query string, _ []schema.ChatMessage, _ persona.Persona) (string, error) {
	return "direct answer to: " + query, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	pipeline, err := rag.New(rag.Options{
		Loader:      stubLoader{},
		Synthesizer: stubSynth{},
		Retrieval:   config.RetrievalConfig{DisableHyDE: true},
	})
	require.NoError(t, err)

	s, err := New(config.ServerConfig{Port: 0}, pipeline, nil)
	require.NoError(t, err)
	return s
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAskEmptyQuery(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"query":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskFallsBackWithoutIndices(t *testing.T) {
	s := newTestServer(t)

	body := `{"query":"what is the refund policy?","spaces":[{"id":"missing"}],"history":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp askResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "direct answer to: what is the refund policy?", resp.Response)
	assert.Equal(t, []string{"missing"}, resp.FailedSpaces)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAskInvalidBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{not json`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestIDPropagates(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-ID"))
}

