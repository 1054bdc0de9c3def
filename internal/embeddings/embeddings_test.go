package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fyrsmithlabs/docchat/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(config.EmbeddingsConfig{Model: "m"})
	assert.Error(t, err)

	_, err = NewService(config.EmbeddingsConfig{BaseURL: "http://localhost:8080/v1"})
	assert.Error(t, err)
}

// fakeEmbeddingServer mimics an OpenAI-compatible /embeddings endpoint.
func fakeEmbeddingServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, dim)
			vec[i%dim] = 1
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": vec}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	}))
}

func TestEmbedDocuments(t *testing.T) {
	srv := fakeEmbeddingServer(t, 4)
	defer srv.Close()

	svc, err := NewService(config.EmbeddingsConfig{BaseURL: srv.URL, Model: "test-model", VectorSize: 4})
	require.NoError(t, err)

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 4)
}

func TestEmbedDocumentsEmptyInput(t *testing.T) {
	srv := fakeEmbeddingServer(t, 4)
	defer srv.Close()

	svc, err := NewService(config.EmbeddingsConfig{BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	_, err = svc.EmbedDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = svc.EmbedQuery(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}
