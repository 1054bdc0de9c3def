package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// sections with compound field names; used by the env key transformer to
// split DOCCHAT_RETRIEVAL_FUSED_TOP_K into retrieval.fused_top_k.
var envSections = []string{
	"server", "logging", "observability", "llm", "embeddings", "storage", "retrieval",
}

// Load loads configuration from a YAML file, then overrides with
// DOCCHAT_-prefixed environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DOCCHAT_LLM_API_KEY, DOCCHAT_RETRIEVAL_TOP_K, ...)
//  2. YAML config file (~/.config/docchat/config.yaml by default)
//  3. Hardcoded defaults
//
// A missing config file is not an error; defaults and env apply.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "docchat", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// rawbytes provider avoids re-opening the file after validation
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment variables use underscore separators and are uppercased:
	//   DOCCHAT_LLM_API_KEY        -> llm.api_key
	//   DOCCHAT_RETRIEVAL_TOP_K    -> retrieval.top_k
	//   DOCCHAT_SERVER_HTTP_PORT   -> server.http_port
	if err := k.Load(env.Provider("DOCCHAT_", ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// transformEnvKey maps DOCCHAT_SECTION_FIELD_NAME to section.field_name.
// Only the first underscore after a known section name becomes a dot; the
// rest stay underscores because field names are compound.
func transformEnvKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "DOCCHAT_"))
	for _, section := range envSections {
		if strings.HasPrefix(s, section+"_") {
			return section + "." + strings.TrimPrefix(s, section+"_")
		}
	}
	return s
}
