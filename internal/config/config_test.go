package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, 8180, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "chromem", cfg.Storage.Backend)
	assert.Equal(t, 10, cfg.Retrieval.TopK)
	assert.Equal(t, 6, cfg.Retrieval.FusedTopK)
	assert.Equal(t, float64(60), cfg.Retrieval.RRFK)
	assert.Equal(t, 10, cfg.Retrieval.HistoryWindow)
	assert.Equal(t, 30*time.Second, cfg.Retrieval.BranchTimeout)
	assert.False(t, cfg.Retrieval.DisableHyDE)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown llm provider", func(c *Config) { c.LLM.Provider = "bard" }},
		{"unknown storage backend", func(c *Config) { c.Storage.Backend = "pinecone" }},
		{"negative vector size", func(c *Config) { c.Embeddings.VectorSize = -1 }},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = -3 }},
		{"negative rrf k", func(c *Config) { c.Retrieval.RRFK = -60 }},
		{"bad port", func(c *Config) { c.Server.Port = 99999 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.ApplyDefaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
llm:
  provider: anthropic
  model: claude-sonnet-4-5
retrieval:
  top_k: 4
  disable_hyde: true
storage:
  backend: chromem
  path: /tmp/docchat-test
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.Model)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	assert.True(t, cfg.Retrieval.DisableHyDE)
	// Defaults still fill unset fields.
	assert.Equal(t, 6, cfg.Retrieval.FusedTopK)
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  top_k: 4\n"), 0o600))

	t.Setenv("DOCCHAT_RETRIEVAL_TOP_K", "7")
	t.Setenv("DOCCHAT_LLM_PROVIDER", "anthropic")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Retrieval.TopK)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
}

func TestTransformEnvKey(t *testing.T) {
	assert.Equal(t, "retrieval.fused_top_k", transformEnvKey("DOCCHAT_RETRIEVAL_FUSED_TOP_K"))
	assert.Equal(t, "server.http_port", transformEnvKey("DOCCHAT_SERVER_HTTP_PORT"))
	assert.Equal(t, "llm.api_key", transformEnvKey("DOCCHAT_LLM_API_KEY"))
}
