package embed

import (
	"context"
	"math"
	"time"
)

// Batch and retry tuning shared by the embedder's HTTP path.
const (
	MinBatchSize = 1
	MaxBatchSize = 256

	// DefaultBatchSize is the default number of texts sent in one
	// embedding request.
	DefaultBatchSize = 32

	// DefaultWarmTimeout is the timeout for a request once the model is
	// already loaded.
	DefaultWarmTimeout = 120 * time.Second

	// DefaultColdTimeout is the timeout for a request that may need to
	// load the model first (first call, or after ModelUnloadThreshold
	// of inactivity).
	DefaultColdTimeout = 180 * time.Second

	// ModelUnloadThreshold is how long Ollama keeps a model resident
	// after its last use before the next call is treated as cold.
	ModelUnloadThreshold = 5 * time.Minute

	DefaultMaxRetries = 3
)

// Thermal-aware batching: sustained embedding load on a local GPU
// (Apple Silicon in particular) throttles over a long run, so later
// batches and later retries get a longer timeout budget.
const (
	DefaultInterBatchDelay = 0 * time.Millisecond
	MaxInterBatchDelay     = 5 * time.Second

	DefaultTimeoutProgression = 1.5
	MaxTimeoutProgression     = 3.0

	DefaultRetryTimeoutMultiplier = 1.0
	MaxRetryTimeoutMultiplier     = 2.0
)

// DefaultContext is the model context window assumed when a caller
// doesn't override MaxInputTokens.
const DefaultContext = 2048

// DefaultDimensions is the fallback embedding width used only if
// dimension auto-detection is skipped (SkipHealthCheck) and the config
// doesn't pin Dimensions explicitly.
const DefaultDimensions = 768

// ItemKind classifies what is being embedded, per the embed_batch(texts,
// item_kind) contract: metadata/implementation/relation chunks are
// always routed through in same-kind groups so one request never mixes
// chunk types.
type ItemKind string

const (
	ItemMetadata       ItemKind = "metadata"
	ItemImplementation ItemKind = "implementation"
	ItemRelation       ItemKind = "relation"
)

// Result is one text's embedding outcome, carrying the item_kind it was
// embedded under alongside the usual vector/cost bookkeeping.
type Result struct {
	Text         string
	Kind         ItemKind
	Embedding    []float32
	Dimension    int
	Model        string
	TokenCount   int
	CostEstimate float64
	Err          error
}

// Success reports whether this result carries a usable embedding.
func (r Result) Success() bool { return r.Err == nil && len(r.Embedding) > 0 }

// BatchEmbedder batches embedding requests by item kind and exposes the
// bounds the pipeline's batch sizer and truncation logic need to plan
// work around (max_input_tokens, dimension).
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string, kind ItemKind) ([]Result, error)
	MaxInputTokens() int
	Dimension() int
	ModelName() string
}

// defaultCostPerThousandTokens is the flat per-1000-token cost used to
// populate Result.CostEstimate; Ollama's local models carry no real
// provider pricing, so this is a nominal estimate an operator can
// override via OllamaConfig.CostPerThousandTokens.
const defaultCostPerThousandTokens = 0.0001

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// estimateTokens approximates token count as one token per four
// characters, the same character-approximation fallback used when no
// real tokenizer is wired.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

// truncate cuts text to fit within maxTokens, preferring a word
// boundary as long as doing so doesn't drop more than 20% of the kept
// text.
func truncate(text string, maxTokens int) string {
	maxChars := maxTokens * 4
	if len(text) <= maxChars {
		return text
	}
	cut := text[:maxChars]
	if idx := lastSpaceAfter(cut, int(float64(maxChars)*0.8)); idx >= 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}

func lastSpaceAfter(s string, minIdx int) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ' ' {
			if i > minIdx {
				return i
			}
			return -1
		}
	}
	return -1
}
