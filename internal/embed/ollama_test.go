package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// mockOllamaServer serves /api/tags with the given models and /api/embed
// with a deterministic vector per input text.
func mockOllamaServer(t *testing.T, models []string, embedHandler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		infos := make([]OllamaModelInfo, len(models))
		for i, m := range models {
			infos[i] = OllamaModelInfo{Name: m}
		}
		_ = json.NewEncoder(w).Encode(OllamaModelListResponse{Models: infos})
	})
	mux.HandleFunc("/api/embed", embedHandler)
	return httptest.NewServer(mux)
}

func constantEmbedHandler(dim int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OllamaEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		var n int
		switch v := req.Input.(type) {
		case string:
			n = 1
		case []any:
			n = len(v)
		}
		embeddings := make([][]float64, n)
		for i := range embeddings {
			vec := make([]float64, dim)
			for j := range vec {
				vec[j] = 1.0
			}
			embeddings[i] = vec
		}
		_ = json.NewEncoder(w).Encode(OllamaEmbedResponse{Model: req.Model, Embeddings: embeddings})
	}
}

func newTestEmbedder(t *testing.T, host string, overrides func(*OllamaConfig)) *OllamaEmbedder {
	t.Helper()
	cfg := DefaultOllamaConfig()
	cfg.Host = host
	cfg.Model = "qwen3-embedding:0.6b"
	cfg.MaxRetries = 1
	if overrides != nil {
		overrides(&cfg)
	}

	e, err := NewOllamaEmbedder(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewOllamaEmbedder: %v", err)
	}
	return e
}

func TestNewOllamaEmbedder_DetectsDimensions(t *testing.T) {
	server := mockOllamaServer(t, []string{"qwen3-embedding:0.6b"}, constantEmbedHandler(4))
	defer server.Close()

	e := newTestEmbedder(t, server.URL, nil)
	defer e.Close()

	if e.Dimension() != 4 {
		t.Errorf("expected dimension 4, got %d", e.Dimension())
	}
	if e.ModelName() != "qwen3-embedding:0.6b" {
		t.Errorf("unexpected model name %s", e.ModelName())
	}
}

func TestNewOllamaEmbedder_FallsBackToSecondaryModel(t *testing.T) {
	server := mockOllamaServer(t, []string{"embeddinggemma"}, constantEmbedHandler(3))
	defer server.Close()

	e := newTestEmbedder(t, server.URL, nil)
	defer e.Close()

	if e.ModelName() != "embeddinggemma" {
		t.Errorf("expected fallback model embeddinggemma, got %s", e.ModelName())
	}
}

func TestNewOllamaEmbedder_NoModelAvailable(t *testing.T) {
	server := mockOllamaServer(t, []string{"llama2:7b"}, constantEmbedHandler(3))
	defer server.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = server.URL
	cfg.Model = "qwen3-embedding:0.6b"
	cfg.FallbackModels = []string{"embeddinggemma"}

	_, err := NewOllamaEmbedder(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error when no configured model is available")
	}
}

func TestEmbedBatch_TagsResultsWithKind(t *testing.T) {
	server := mockOllamaServer(t, []string{"qwen3-embedding:0.6b"}, constantEmbedHandler(4))
	defer server.Close()

	e := newTestEmbedder(t, server.URL, nil)
	defer e.Close()

	results, err := e.EmbedBatch(context.Background(), []string{"func Foo() {}", "func Bar() {}"}, ItemImplementation)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Success() {
			t.Errorf("expected successful result, got err=%v", r.Err)
		}
		if r.Kind != ItemImplementation {
			t.Errorf("expected kind %s, got %s", ItemImplementation, r.Kind)
		}
		if r.TokenCount <= 0 {
			t.Error("expected a positive token count")
		}
		if r.CostEstimate < 0 {
			t.Error("expected a non-negative cost estimate")
		}
	}
}

func TestEmbedBatch_EmptyTextShortCircuits(t *testing.T) {
	server := mockOllamaServer(t, []string{"qwen3-embedding:0.6b"}, constantEmbedHandler(4))
	defer server.Close()

	e := newTestEmbedder(t, server.URL, nil)
	defer e.Close()

	results, err := e.EmbedBatch(context.Background(), []string{"   ", "real text"}, ItemMetadata)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(results[0].Embedding) != e.Dimension() {
		t.Errorf("expected zero-vector of dimension %d for blank text, got len %d", e.Dimension(), len(results[0].Embedding))
	}
	if results[0].TokenCount != 0 {
		t.Errorf("blank text should not accrue token count, got %d", results[0].TokenCount)
	}
}

func TestEmbedBatch_TruncatesOversizedText(t *testing.T) {
	server := mockOllamaServer(t, []string{"qwen3-embedding:0.6b"}, constantEmbedHandler(4))
	defer server.Close()

	e := newTestEmbedder(t, server.URL, func(cfg *OllamaConfig) {
		cfg.MaxInputTokens = 10
	})
	defer e.Close()

	huge := strings.Repeat("word ", 500)
	results, err := e.EmbedBatch(context.Background(), []string{huge}, ItemImplementation)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if results[0].TokenCount > 15 {
		t.Errorf("expected truncated token count near MaxInputTokens, got %d", results[0].TokenCount)
	}
}

func TestEmbedBatch_PerTextFailureOnHTTPError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(OllamaModelListResponse{Models: []OllamaModelInfo{{Name: "qwen3-embedding:0.6b"}}})
	})
	callCount := 0
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount <= 2 {
			_ = json.NewEncoder(w).Encode(OllamaEmbedResponse{Embeddings: [][]float64{{1, 2, 3}}})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	e := newTestEmbedder(t, server.URL, nil)
	defer e.Close()

	results, err := e.EmbedBatch(context.Background(), []string{"ok text"}, ItemImplementation)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if !results[0].Success() {
		t.Error("expected first embed to succeed (dimension detection consumed the first call)")
	}

	results, err = e.EmbedBatch(context.Background(), []string{"will fail"}, ItemImplementation)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if results[0].Success() {
		t.Error("expected a per-item failure rather than success")
	}
	if results[0].Err == nil {
		t.Error("expected Result.Err to be set")
	}
}

func TestEmbedBatch_ClosedEmbedderErrors(t *testing.T) {
	server := mockOllamaServer(t, []string{"qwen3-embedding:0.6b"}, constantEmbedHandler(4))
	defer server.Close()

	e := newTestEmbedder(t, server.URL, nil)
	_ = e.Close()

	_, err := e.EmbedBatch(context.Background(), []string{"text"}, ItemMetadata)
	if err == nil {
		t.Fatal("expected error on a closed embedder")
	}
}

func TestSetAuthHeader_SendsBearerToken(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(OllamaModelListResponse{Models: []OllamaModelInfo{{Name: "qwen3-embedding:0.6b"}}})
	})
	mux.HandleFunc("/api/embed", constantEmbedHandler(3))
	server := httptest.NewServer(mux)
	defer server.Close()

	e := newTestEmbedder(t, server.URL, func(cfg *OllamaConfig) {
		cfg.APIKey = "secret-token"
	})
	defer e.Close()

	if gotAuth != "Bearer secret-token" {
		t.Errorf("expected bearer token header, got %q", gotAuth)
	}
}

func TestGetProgressiveTimeout_FinalBatchBoost(t *testing.T) {
	server := mockOllamaServer(t, []string{"qwen3-embedding:0.6b"}, constantEmbedHandler(3))
	defer server.Close()

	e := newTestEmbedder(t, server.URL, func(cfg *OllamaConfig) {
		cfg.RetryTimeoutMultiplier = DefaultRetryTimeoutMultiplier
		cfg.TimeoutProgression = DefaultTimeoutProgression
	})
	defer e.Close()

	base := e.getProgressiveTimeout(0)
	e.SetFinalBatch(true)
	boosted := e.getProgressiveTimeout(0)

	if boosted <= base {
		t.Errorf("expected final-batch timeout %v to exceed base timeout %v", boosted, base)
	}
	if boosted != time.Duration(float64(base)*1.5) {
		t.Errorf("expected exactly 1.5x boost, got base=%v boosted=%v", base, boosted)
	}
}

func TestAvailable_ReflectsModelPresence(t *testing.T) {
	server := mockOllamaServer(t, []string{"qwen3-embedding:0.6b"}, constantEmbedHandler(3))
	defer server.Close()

	e := newTestEmbedder(t, server.URL, nil)
	defer e.Close()

	if !e.Available(context.Background()) {
		t.Error("expected embedder to report available")
	}

	_ = e.Close()
	if e.Available(context.Background()) {
		t.Error("expected a closed embedder to report unavailable")
	}
}
