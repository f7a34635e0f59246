package embed

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedder_OllamaTimeoutEnvVar(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     time.Duration
	}{
		{name: "valid duration seconds", envValue: "120s", want: 120 * time.Second},
		{name: "valid duration minutes", envValue: "5m", want: 5 * time.Minute},
		{name: "invalid duration uses default", envValue: "invalid", want: DefaultWarmTimeout},
		{name: "empty uses default", envValue: "", want: DefaultWarmTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := os.Getenv("CODEINDEXER_OLLAMA_TIMEOUT")
			defer os.Setenv("CODEINDEXER_OLLAMA_TIMEOUT", orig)

			if tt.envValue != "" {
				os.Setenv("CODEINDEXER_OLLAMA_TIMEOUT", tt.envValue)
			} else {
				os.Unsetenv("CODEINDEXER_OLLAMA_TIMEOUT")
			}

			cfg := DefaultOllamaConfig()
			if timeoutStr := os.Getenv("CODEINDEXER_OLLAMA_TIMEOUT"); timeoutStr != "" {
				if timeout, err := time.ParseDuration(timeoutStr); err == nil {
					cfg.Timeout = timeout
				}
			}

			assert.Equal(t, tt.want, cfg.Timeout)
		})
	}
}

func TestDefaultTimeouts_IncreasedForThermalThrottling(t *testing.T) {
	assert.Equal(t, 120*time.Second, DefaultWarmTimeout,
		"DefaultWarmTimeout should be 120s for thermal throttling")
	assert.Equal(t, 180*time.Second, DefaultColdTimeout,
		"DefaultColdTimeout should be 180s for slower hardware")
}

func TestSetThermalConfig_AppliesConfigFileSettings(t *testing.T) {
	origConfig := globalThermalConfig
	defer func() { globalThermalConfig = origConfig }()

	cfg := ThermalConfig{
		InterBatchDelay:        500 * time.Millisecond,
		TimeoutProgression:     2.0,
		RetryTimeoutMultiplier: 1.5,
	}

	SetThermalConfig(cfg)

	assert.Equal(t, 500*time.Millisecond, globalThermalConfig.InterBatchDelay)
	assert.Equal(t, 2.0, globalThermalConfig.TimeoutProgression)
	assert.Equal(t, 1.5, globalThermalConfig.RetryTimeoutMultiplier)
}

func TestApplyThermalConfig_EnvVarsOverrideConfigFile(t *testing.T) {
	origDelay := os.Getenv("CODEINDEXER_INTER_BATCH_DELAY")
	origProg := os.Getenv("CODEINDEXER_TIMEOUT_PROGRESSION")
	origRetry := os.Getenv("CODEINDEXER_RETRY_TIMEOUT_MULTIPLIER")
	defer func() {
		os.Setenv("CODEINDEXER_INTER_BATCH_DELAY", origDelay)
		os.Setenv("CODEINDEXER_TIMEOUT_PROGRESSION", origProg)
		os.Setenv("CODEINDEXER_RETRY_TIMEOUT_MULTIPLIER", origRetry)
	}()

	origConfig := globalThermalConfig
	defer func() { globalThermalConfig = origConfig }()

	SetThermalConfig(ThermalConfig{
		InterBatchDelay:        200 * time.Millisecond,
		TimeoutProgression:     1.5,
		RetryTimeoutMultiplier: 1.2,
	})

	os.Setenv("CODEINDEXER_INTER_BATCH_DELAY", "1s")
	os.Setenv("CODEINDEXER_TIMEOUT_PROGRESSION", "2.5")
	os.Setenv("CODEINDEXER_RETRY_TIMEOUT_MULTIPLIER", "1.8")

	cfg := DefaultOllamaConfig()
	applyThermalConfig(&cfg)

	assert.Equal(t, 1*time.Second, cfg.InterBatchDelay, "env var should override config file")
	assert.Equal(t, 2.5, cfg.TimeoutProgression, "env var should override config file")
	assert.Equal(t, 1.8, cfg.RetryTimeoutMultiplier, "env var should override config file")
}

func TestNewEmbedder_OllamaUnavailable_ReturnsError(t *testing.T) {
	origHost := os.Getenv("CODEINDEXER_OLLAMA_HOST")
	defer os.Setenv("CODEINDEXER_OLLAMA_HOST", origHost)
	os.Unsetenv("CODEINDEXER_OLLAMA_HOST")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	embedder, err := NewEmbedder(ctx, Settings{Host: "http://localhost:59999"})

	require.Error(t, err, "an unreachable Ollama host must error, not silently fall back")
	assert.Nil(t, embedder)
	assert.Contains(t, err.Error(), "ollama unavailable")
	assert.Contains(t, err.Error(), "ollama serve")
}

func TestNewEmbedder_EnvHostOverridesSettings(t *testing.T) {
	origHost := os.Getenv("CODEINDEXER_OLLAMA_HOST")
	defer os.Setenv("CODEINDEXER_OLLAMA_HOST", origHost)
	os.Setenv("CODEINDEXER_OLLAMA_HOST", "http://localhost:59998")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := NewEmbedder(ctx, Settings{Host: "http://localhost:11434"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama unavailable")
}

func TestIsOllamaModelName_WithTag(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "ollama model with tag", model: "nomic-embed-text:latest", want: true},
		{name: "qwen3 with size tag", model: "qwen3-embedding:8b", want: true},
		{name: "model with version tag", model: "bge-small:v1.5", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isOllamaModelName(tt.model), "isOllamaModelName(%q)", tt.model)
		})
	}
}

func TestIsOllamaModelName_GGUFExtension(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "gguf file", model: "model.gguf", want: false},
		{name: "gguf with path", model: "/path/to/nomic-embed-text.gguf", want: false},
		{name: "uppercase GGUF", model: "model.GGUF", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isOllamaModelName(tt.model), "isOllamaModelName(%q)", tt.model)
		})
	}
}

func TestIsOllamaModelName_VersionPattern(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "model with version number", model: "nomic-embed-text-v1.5", want: false},
		{name: "bge with version", model: "bge-small-en-v1.5", want: false},
		{name: "v1 suffix", model: "model-v1", want: false},
		{name: "v2 suffix", model: "model-v2", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isOllamaModelName(tt.model), "isOllamaModelName(%q)", tt.model)
		})
	}
}

func TestIsOllamaModelName_PlainNames(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{name: "plain name no tag", model: "nomic-embed-text", want: false},
		{name: "single word", model: "embedding", want: false},
		{name: "empty string", model: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isOllamaModelName(tt.model), "isOllamaModelName(%q)", tt.model)
		})
	}
}
