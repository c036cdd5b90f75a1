package qdrant

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===========================================================================
// Secret Tests
// ===========================================================================

// TestSecret_Redaction verifies that a Secret never leaks its value through
// string formatting or serialization.
func TestSecret_Redaction(t *testing.T) {
	t.Parallel()
	s := Secret("qdrant-api-key")

	assert.Equal(t, redacted, s.String())
	assert.Equal(t, redacted, s.GoString())
	assert.Equal(t, redacted, fmt.Sprintf("%v", s))
	assert.Equal(t, redacted, fmt.Sprintf("%#v", s))
	assert.Equal(t, "qdrant-api-key", s.Value())

	text, err := s.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, redacted, string(text))
}

// TestSecret_JSONMarshal verifies that a Secret embedded in a struct
// serializes as the redacted placeholder.
func TestSecret_JSONMarshal(t *testing.T) {
	t.Parallel()
	payload := struct {
		APIKey Secret `json:"api_key"`
	}{APIKey: Secret("qdrant-api-key")}

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "qdrant-api-key")
	assert.Contains(t, string(data), redacted)
}

// ===========================================================================
// DefaultConfig Tests
// ===========================================================================

// TestDefaultConfig verifies the documented default values.
func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultGRPCPort, cfg.GRPCPort)
	assert.Equal(t, DefaultUseTLS, cfg.UseTLS)
	assert.Equal(t, DefaultHealthTimeout, cfg.HealthTimeout)
}

// ===========================================================================
// Validate Tests
// ===========================================================================

// TestConfig_Validate exercises validation rules and default application.
func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "valid config",
			cfg:  *DefaultConfig(),
		},
		{
			name: "zero value gets defaults",
			cfg:  Config{},
		},
		{
			name:    "port out of range",
			cfg:     Config{Host: "localhost", GRPCPort: 99999},
			wantErr: "grpc_port must be between 1 and 65535",
		},
		{
			name:    "negative port",
			cfg:     Config{Host: "localhost", GRPCPort: -1},
			wantErr: "grpc_port must be between 1 and 65535",
		},
		{
			name:    "negative health timeout",
			cfg:     Config{Host: "localhost", GRPCPort: 6334, HealthTimeout: -time.Second},
			wantErr: "health_timeout must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			err := cfg.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

// TestConfig_Validate_AppliesDefaults verifies that zero-valued fields
// receive defaults during validation.
func TestConfig_Validate_AppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg := Config{}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultGRPCPort, cfg.GRPCPort)
	assert.Equal(t, DefaultHealthTimeout, cfg.HealthTimeout)
}

// ===========================================================================
// GRPCAddress Tests
// ===========================================================================

// TestConfig_GRPCAddress verifies the host:port address string.
func TestConfig_GRPCAddress(t *testing.T) {
	t.Parallel()
	cfg := Config{Host: "qdrant.internal", GRPCPort: 6334}
	assert.Equal(t, "qdrant.internal:6334", cfg.GRPCAddress())
}

// ===========================================================================
// truncateStatement Tests
// ===========================================================================

// TestTruncateStatement verifies statement truncation for trace span
// attributes.
func TestTruncateStatement(t *testing.T) {
	t.Parallel()

	t.Run("short statement unchanged", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "Query chat-embeddings", truncateStatement("Query chat-embeddings"))
	})

	t.Run("long statement truncated with ellipsis", func(t *testing.T) {
		t.Parallel()
		long := "Upsert chat-embeddings " + strings.Repeat("x", 200)
		got := truncateStatement(long)
		assert.Len(t, got, maxStatementTruncateLen+3)
		assert.True(t, strings.HasSuffix(got, "..."))
	})

	t.Run("multibyte runes preserved", func(t *testing.T) {
		t.Parallel()
		long := strings.Repeat("世", maxStatementTruncateLen+10)
		got := truncateStatement(long)
		runes := []rune(strings.TrimSuffix(got, "..."))
		assert.Len(t, runes, maxStatementTruncateLen)
	})

	t.Run("exactly at limit unchanged", func(t *testing.T) {
		t.Parallel()
		exact := strings.Repeat("a", maxStatementTruncateLen)
		assert.Equal(t, exact, truncateStatement(exact))
	})
}
