package embed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings carries the subset of the indexer's configuration the
// embedder needs, independent of how config.Config happens to be
// shaped.
type Settings struct {
	Model      string
	Host       string
	APIKey     string
	Dimensions int
}

// NewEmbedder builds the Ollama-backed BatchEmbedder. Environment
// variables override settings, the same layering config.Load applies
// to the rest of the configuration (defaults -> file -> env):
//
//   - CODEINDEXER_OLLAMA_HOST overrides settings.Host
//   - CODEINDEXER_OLLAMA_MODEL overrides settings.Model
//   - CODEINDEXER_OLLAMA_API_KEY overrides settings.APIKey
//   - CODEINDEXER_OLLAMA_TIMEOUT overrides the per-request timeout
//   - CODEINDEXER_INTER_BATCH_DELAY, CODEINDEXER_TIMEOUT_PROGRESSION,
//     CODEINDEXER_RETRY_TIMEOUT_MULTIPLIER override thermal tuning
func NewEmbedder(ctx context.Context, settings Settings) (BatchEmbedder, error) {
	cfg := DefaultOllamaConfig()

	if settings.Model != "" && isOllamaModelName(settings.Model) {
		cfg.Model = settings.Model
	}
	if settings.Host != "" {
		cfg.Host = settings.Host
	}
	if settings.APIKey != "" {
		cfg.APIKey = settings.APIKey
	}
	if settings.Dimensions > 0 {
		cfg.Dimensions = settings.Dimensions
	}

	if host := os.Getenv("CODEINDEXER_OLLAMA_HOST"); host != "" {
		cfg.Host = host
	}
	if model := os.Getenv("CODEINDEXER_OLLAMA_MODEL"); model != "" {
		cfg.Model = model
	}
	if apiKey := os.Getenv("CODEINDEXER_OLLAMA_API_KEY"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	if timeoutStr := os.Getenv("CODEINDEXER_OLLAMA_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = timeout
		}
	}

	applyThermalConfig(&cfg)

	embedder, err := NewOllamaEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ollama unavailable: %w\n\nTo fix:\n  1. Start Ollama: ollama serve\n  2. Or point CODEINDEXER_OLLAMA_HOST at a reachable instance", err)
	}
	return embedder, nil
}

// applyThermalConfig layers config-file thermal settings (set via
// SetThermalConfig) under environment-variable overrides, both capped
// at MaxInterBatchDelay, MaxTimeoutProgression and MaxRetryTimeoutMultiplier.
func applyThermalConfig(cfg *OllamaConfig) {
	if globalThermalConfig.InterBatchDelay > 0 {
		delay := globalThermalConfig.InterBatchDelay
		if delay > MaxInterBatchDelay {
			delay = MaxInterBatchDelay
		}
		cfg.InterBatchDelay = delay
	}
	if globalThermalConfig.TimeoutProgression >= 1.0 {
		progression := globalThermalConfig.TimeoutProgression
		if progression > MaxTimeoutProgression {
			progression = MaxTimeoutProgression
		}
		cfg.TimeoutProgression = progression
	}
	if globalThermalConfig.RetryTimeoutMultiplier >= 1.0 {
		mult := globalThermalConfig.RetryTimeoutMultiplier
		if mult > MaxRetryTimeoutMultiplier {
			mult = MaxRetryTimeoutMultiplier
		}
		cfg.RetryTimeoutMultiplier = mult
	}

	if delayStr := os.Getenv("CODEINDEXER_INTER_BATCH_DELAY"); delayStr != "" {
		if delay, err := time.ParseDuration(delayStr); err == nil && delay >= 0 {
			if delay > MaxInterBatchDelay {
				delay = MaxInterBatchDelay
			}
			cfg.InterBatchDelay = delay
		}
	}
	if progressionStr := os.Getenv("CODEINDEXER_TIMEOUT_PROGRESSION"); progressionStr != "" {
		if progression, err := parseFloat64(progressionStr); err == nil && progression >= 1.0 {
			if progression > MaxTimeoutProgression {
				progression = MaxTimeoutProgression
			}
			cfg.TimeoutProgression = progression
		}
	}
	if retryMultStr := os.Getenv("CODEINDEXER_RETRY_TIMEOUT_MULTIPLIER"); retryMultStr != "" {
		if mult, err := parseFloat64(retryMultStr); err == nil && mult >= 1.0 {
			if mult > MaxRetryTimeoutMultiplier {
				mult = MaxRetryTimeoutMultiplier
			}
			cfg.RetryTimeoutMultiplier = mult
		}
	}
}

// ThermalConfig holds thermal management settings loaded from
// config.yaml; environment variables still take precedence over these.
type ThermalConfig struct {
	InterBatchDelay        time.Duration
	TimeoutProgression     float64
	RetryTimeoutMultiplier float64
}

var globalThermalConfig ThermalConfig

// SetThermalConfig sets thermal management config from the user's
// config.yaml. Call before NewEmbedder so the file's settings apply;
// environment variables still override them.
func SetThermalConfig(cfg ThermalConfig) {
	globalThermalConfig = cfg
	if cfg.InterBatchDelay > 0 || cfg.TimeoutProgression != 0 || cfg.RetryTimeoutMultiplier != 0 {
		slog.Debug("thermal_config_set",
			slog.Duration("inter_batch_delay", cfg.InterBatchDelay),
			slog.Float64("timeout_progression", cfg.TimeoutProgression),
			slog.Float64("retry_timeout_multiplier", cfg.RetryTimeoutMultiplier))
	}
}

// isOllamaModelName reports whether model looks like an Ollama model
// name (tagged, e.g. "qwen3-embedding:0.6b") rather than a bare GGUF
// filename that shouldn't override the configured default.
func isOllamaModelName(model string) bool {
	if strings.Contains(model, ":") {
		return true
	}
	if strings.Contains(model, "-v") && (strings.Contains(model, ".") || strings.HasSuffix(model, "-v1") || strings.HasSuffix(model, "-v2")) {
		return false
	}
	if strings.HasSuffix(strings.ToLower(model), ".gguf") {
		return false
	}
	return false
}

func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
