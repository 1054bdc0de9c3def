package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults are valid", cfg: Config{}},
		{name: "console format", cfg: Config{Level: "debug", Format: "console"}},
		{name: "bad format", cfg: Config{Level: "info", Format: "xml"}, wantErr: true},
		{name: "bad level", cfg: Config{Level: "loud", Format: "json"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.ApplyDefaults()
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(&Config{Level: "debug", Format: "console", Fields: map[string]string{"service": "docchat"}})
	require.NoError(t, err)
	require.NotNil(t, logger)

	// Child loggers share the core.
	child := logger.Named("pipeline").With()
	assert.NotNil(t, child)
}

func TestRedactedString(t *testing.T) {
	field := RedactedString("api_key", "sk-secret-value")
	assert.Equal(t, "api_key", field.Key)
	assert.Equal(t, "[REDACTED:15]", field.String)
}

func TestRequestIDFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = ContextWithRequestID(ctx, "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))

	fields := ContextFields(ctx)
	require.Len(t, fields, 1)
}
