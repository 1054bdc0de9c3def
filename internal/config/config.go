// Package config provides configuration loading for docchat.
//
// Configuration is loaded from a YAML file and then overridden by
// environment variables. Every section carries defaults so a zero config
// file is usable for local development.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/docchat/internal/logging"
)

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete docchat configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Logging       logging.Config      `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
	LLM           LLMConfig           `koanf:"llm"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Storage       StorageConfig       `koanf:"storage"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
}

// LLMConfig holds chat model configuration.
type LLMConfig struct {
	// Provider selects the chat backend: "openai" or "anthropic".
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	APIKey   string `koanf:"api_key"`
	BaseURL  string `koanf:"base_url"`
	// Timeout bounds a single chat call.
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
}

// EmbeddingsConfig holds embedding model configuration.
type EmbeddingsConfig struct {
	// BaseURL points at an OpenAI-compatible embeddings API (OpenAI itself
	// or a local TEI server).
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  string `koanf:"api_key"`
	// VectorSize must match the model's output dimension.
	VectorSize int `koanf:"vector_size"`
}

// StorageConfig holds index storage configuration.
type StorageConfig struct {
	// Backend selects the vector store: "chromem" (embedded) or "qdrant".
	Backend string `koanf:"backend"`
	// Path is the root directory holding per-space indices (chromem DBs and
	// bleve lexical indices).
	Path string `koanf:"path"`
	// Qdrant settings apply when Backend is "qdrant".
	QdrantHost string `koanf:"qdrant_host"`
	QdrantPort int    `koanf:"qdrant_port"`
}

// RetrievalConfig holds query pipeline tuning parameters.
type RetrievalConfig struct {
	// TopK is the per-branch retrieval depth.
	TopK int `koanf:"top_k"`
	// FusedTopK is how many fused nodes feed synthesis.
	FusedTopK int `koanf:"fused_top_k"`
	// RRFK is the reciprocal rank fusion smoothing constant.
	RRFK float64 `koanf:"rrf_k"`
	// DisableHyDE turns off the hypothetical-document query rewrite branch,
	// which runs by default.
	DisableHyDE bool `koanf:"disable_hyde"`
	// HyDERequired fails the whole run when the rewrite fails. When false
	// the rewrite branch degrades to empty instead.
	HyDERequired bool `koanf:"hyde_required"`
	// HistoryWindow is the number of trailing messages rendered into prompts.
	HistoryWindow int `koanf:"history_window"`
	// BranchTimeout bounds each retrieval branch.
	BranchTimeout time.Duration `koanf:"branch_timeout"`
}

// ApplyDefaults sets default values for unset retrieval fields.
func (c *RetrievalConfig) ApplyDefaults() {
	if c.TopK == 0 {
		c.TopK = 10
	}
	if c.FusedTopK == 0 {
		c.FusedTopK = 6
	}
	if c.RRFK == 0 {
		c.RRFK = 60
	}
	if c.HistoryWindow == 0 {
		c.HistoryWindow = 10
	}
	if c.BranchTimeout == 0 {
		c.BranchTimeout = 30 * time.Second
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8180
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = "docchat"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 3
	}
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = "https://api.openai.com/v1"
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "text-embedding-3-small"
	}
	if c.Embeddings.VectorSize == 0 {
		c.Embeddings.VectorSize = 1536
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "chromem"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "~/.config/docchat/indices"
	}
	if c.Storage.QdrantHost == "" {
		c.Storage.QdrantHost = "localhost"
	}
	if c.Storage.QdrantPort == 0 {
		c.Storage.QdrantPort = 6334
	}
	c.Retrieval.ApplyDefaults()
	c.Logging.ApplyDefaults()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port %d", ErrInvalidConfig, c.Server.Port)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("%w: unknown llm provider %q", ErrInvalidConfig, c.LLM.Provider)
	}
	switch c.Storage.Backend {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}
	if c.Embeddings.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if c.Retrieval.TopK <= 0 || c.Retrieval.FusedTopK <= 0 {
		return fmt.Errorf("%w: retrieval top_k values must be positive", ErrInvalidConfig)
	}
	if c.Retrieval.RRFK <= 0 {
		return fmt.Errorf("%w: rrf_k must be positive", ErrInvalidConfig)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("%w: logging: %v", ErrInvalidConfig, err)
	}
	return nil
}
