package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"
)

// OllamaEmbedder is the sole network embedder: it talks to an Ollama-
// compatible HTTP /api/embed endpoint and implements BatchEmbedder
// directly, folding truncation, token-count/cost estimation, and
// item-kind tagging into the same call that does the HTTP work rather
// than layering a separate adapter on top.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	modelName string
	dims      int

	maxInputTokens       int
	costPerThousandToken float64

	mu           sync.RWMutex
	closed       bool
	lastCall     time.Time
	batchIndex   int
	isFinalBatch bool
}

var _ BatchEmbedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates a new Ollama embedder, running a health
// check and model/dimension discovery against cfg.Host unless
// cfg.SkipHealthCheck is set (tests set it to avoid a live server).
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.FallbackModels == nil {
		cfg.FallbackModels = FallbackOllamaModels
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWarmTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = OllamaConnectTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = OllamaPoolSize
	}
	if cfg.MaxInputTokens <= 0 {
		cfg.MaxInputTokens = DefaultContext
	}
	if cfg.CostPerThousandTokens <= 0 {
		cfg.CostPerThousandTokens = defaultCostPerThousandTokens
	}

	// IdleConnTimeout is short (10s, not the usual 90s) because an
	// indexing run is short-lived and a Ctrl-C should release
	// connections quickly.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
		DisableKeepAlives:   false,
	}

	// The client carries no static Timeout: every request gets its own
	// context.WithTimeout in doEmbedWithRetry so the progressive
	// thermal timeout can actually take effect.
	client := &http.Client{Transport: transport}

	e := &OllamaEmbedder{
		client:               client,
		transport:            transport,
		config:               cfg,
		modelName:            cfg.Model,
		dims:                 cfg.Dimensions,
		maxInputTokens:       cfg.MaxInputTokens,
		costPerThousandToken: cfg.CostPerThousandTokens,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, DefaultColdTimeout)
		defer cancel()

		listCtx, cancelList := context.WithTimeout(checkCtx, cfg.ConnectTimeout)
		modelName, err := e.findAvailableModel(listCtx)
		cancelList()
		if err != nil {
			transport.CloseIdleConnections()
			return nil, fmt.Errorf("failed to connect to Ollama or find model: %w", err)
		}
		e.modelName = modelName

		if cfg.Dimensions == 0 {
			dims, err := e.detectDimensions(checkCtx)
			if err != nil {
				transport.CloseIdleConnections()
				return nil, fmt.Errorf("failed to detect embedding dimensions: %w", err)
			}
			e.dims = dims
		}
	}

	if e.dims == 0 {
		e.dims = DefaultDimensions
	}

	return e, nil
}

func (e *OllamaEmbedder) listModels(ctx context.Context) ([]OllamaModelInfo, error) {
	url := e.config.Host + "/api/tags"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	e.setAuthHeader(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result OllamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Models, nil
}

func (e *OllamaEmbedder) findAvailableModel(ctx context.Context) (string, error) {
	models, err := e.listModels(ctx)
	if err != nil {
		return "", err
	}

	available := make(map[string]string)
	for _, m := range models {
		name := strings.ToLower(m.Name)
		available[name] = m.Name
		base := strings.Split(name, ":")[0]
		if _, exists := available[base]; !exists {
			available[base] = m.Name
		}
	}

	primaryName := strings.ToLower(e.config.Model)
	if actual, ok := available[primaryName]; ok {
		return actual, nil
	}
	primaryBase := strings.Split(primaryName, ":")[0]
	if actual, ok := available[primaryBase]; ok {
		return actual, nil
	}

	for _, fallback := range e.config.FallbackModels {
		name := strings.ToLower(fallback)
		if actual, ok := available[name]; ok {
			return actual, nil
		}
		base := strings.Split(name, ":")[0]
		if actual, ok := available[base]; ok {
			return actual, nil
		}
	}

	return "", fmt.Errorf("no embedding model available (tried %s and %v)", e.config.Model, e.config.FallbackModels)
}

func (e *OllamaEmbedder) detectDimensions(ctx context.Context) (int, error) {
	vecs, err := e.doEmbed(ctx, []string{"dimension detection"})
	if err != nil {
		return 0, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return 0, fmt.Errorf("empty embedding returned")
	}
	return len(vecs[0]), nil
}

// MaxInputTokens returns the context-window bound truncation is
// planned against.
func (e *OllamaEmbedder) MaxInputTokens() int { return e.maxInputTokens }

// Dimension returns the embedding dimension.
func (e *OllamaEmbedder) Dimension() int { return e.dims }

// ModelName returns the model identifier actually resolved at
// construction time (which may be a fallback, not cfg.Model).
func (e *OllamaEmbedder) ModelName() string { return e.modelName }

// EmbedBatch truncates any oversized text, sends the rest to Ollama in
// config.BatchSize sub-batches, and reports a per-text failure rather
// than failing the whole call when the HTTP round trip itself errors —
// callers decide per item whether to retry or drop it.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string, kind ItemKind) ([]Result, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	if len(texts) == 0 {
		return nil, nil
	}

	prepared := make([]string, len(texts))
	tokenCounts := make([]int, len(texts))
	for i, t := range texts {
		tokenCounts[i] = estimateTokens(t)
		if tokenCounts[i] > e.maxInputTokens {
			prepared[i] = truncate(t, e.maxInputTokens)
			tokenCounts[i] = estimateTokens(prepared[i])
		} else {
			prepared[i] = t
		}
	}

	results := make([]Result, len(texts))

	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	for i, text := range prepared {
		if strings.TrimSpace(text) == "" {
			results[i] = Result{
				Text: texts[i], Kind: kind, Embedding: make([]float32, e.dims),
				Dimension: e.dims, Model: e.modelName,
			}
			continue
		}
		nonEmpty = append(nonEmpty, indexedText{i, text})
	}

	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if start > 0 && e.config.InterBatchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.config.InterBatchDelay):
			}
		}

		end := start + e.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}
		sub := nonEmpty[start:end]

		batchTexts := make([]string, len(sub))
		for i, it := range sub {
			batchTexts[i] = it.text
		}

		vectors, err := e.doEmbedWithRetry(ctx, batchTexts)
		if err != nil {
			for _, it := range sub {
				results[it.idx] = Result{
					Text: texts[it.idx], Kind: kind, Model: e.modelName,
					Err: fmt.Errorf("embed %s batch: %w", kind, err),
				}
			}
			continue
		}

		for i, it := range sub {
			results[it.idx] = Result{
				Text: texts[it.idx], Kind: kind, Embedding: vectors[i],
				Dimension: len(vectors[i]), Model: e.modelName,
				TokenCount:   tokenCounts[it.idx],
				CostEstimate: float64(tokenCounts[it.idx]) / 1000 * e.costPerThousandToken,
			}
		}

		e.IncrementBatchIndex()
		if e.config.ProgressFunc != nil {
			e.config.ProgressFunc(end, len(nonEmpty))
		}
	}

	return results, nil
}

// getTimeout returns the cold or warm timeout depending on how long
// it's been since the last successful call.
func (e *OllamaEmbedder) getTimeout() time.Duration {
	e.mu.RLock()
	lastCall := e.lastCall
	e.mu.RUnlock()

	if lastCall.IsZero() || time.Since(lastCall) > ModelUnloadThreshold {
		return DefaultColdTimeout
	}
	return e.config.Timeout
}

func (e *OllamaEmbedder) updateLastCall() {
	e.mu.Lock()
	e.lastCall = time.Now()
	e.mu.Unlock()
}

// getProgressiveTimeout scales the base timeout for sustained thermal
// throttling (later batches, later retries, and a 1.5x boost on the
// final batch where throttling peaks).
func (e *OllamaEmbedder) getProgressiveTimeout(attempt int) time.Duration {
	baseTimeout := e.getTimeout()

	progressionFactor := 1.0
	if e.config.TimeoutProgression > 1.0 {
		e.mu.RLock()
		batchIdx := e.batchIndex
		e.mu.RUnlock()

		batchProgress := float64(batchIdx*e.config.BatchSize) / 1000.0
		progressionFactor = 1.0 + batchProgress*(e.config.TimeoutProgression-1.0)
		if progressionFactor > MaxTimeoutProgression {
			progressionFactor = MaxTimeoutProgression
		}
	}

	retryFactor := 1.0
	if e.config.RetryTimeoutMultiplier > 1.0 && attempt > 0 {
		retryFactor = math.Pow(e.config.RetryTimeoutMultiplier, float64(attempt))
		if retryFactor > MaxRetryTimeoutMultiplier {
			retryFactor = MaxRetryTimeoutMultiplier
		}
	}

	e.mu.RLock()
	isFinal := e.isFinalBatch
	e.mu.RUnlock()

	finalBoost := 1.0
	if isFinal {
		finalBoost = 1.5
	}

	return time.Duration(float64(baseTimeout) * progressionFactor * retryFactor * finalBoost)
}

// IncrementBatchIndex tracks batch progress for progressive timeout
// calculation; called automatically after each HTTP sub-batch.
func (e *OllamaEmbedder) IncrementBatchIndex() {
	e.mu.Lock()
	e.batchIndex++
	e.mu.Unlock()
}

// SetBatchIndex sets the batch index to a specific value, used when
// resuming from a checkpoint so thermal progression picks up where the
// previous run left off instead of restarting at zero.
func (e *OllamaEmbedder) SetBatchIndex(idx int) {
	e.mu.Lock()
	e.batchIndex = idx
	e.mu.Unlock()
}

// SetFinalBatch marks the embedder as processing the final batch,
// applying the 1.5x timeout boost for peak thermal throttling.
func (e *OllamaEmbedder) SetFinalBatch(isFinal bool) {
	e.mu.Lock()
	e.isFinalBatch = isFinal
	e.mu.Unlock()
}

// SetProgressFunc sets the progress callback for batch embedding,
// invoked with (completed, total) after each HTTP sub-batch.
func (e *OllamaEmbedder) SetProgressFunc(fn func(completed, total int)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.config.ProgressFunc = fn
}

// doEmbedWithRetry performs embedding with retry logic and progressive
// timeout.
func (e *OllamaEmbedder) doEmbedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt < e.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if attempt > 0 {
			backoff := time.Duration(100<<attempt) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		timeout := e.getProgressiveTimeout(attempt)
		timeoutCtx, cancel := context.WithTimeout(ctx, timeout)

		slog.Debug("embedding_attempt",
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", e.config.MaxRetries),
			slog.Int("batch_index", e.batchIndex),
			slog.Duration("timeout", timeout),
			slog.Bool("final_batch", e.isFinalBatch),
			slog.Int("texts_count", len(texts)))

		embeddings, err := e.doEmbed(timeoutCtx, texts)
		cancel()

		if err == nil {
			e.updateLastCall()
			return embeddings, nil
		}
		lastErr = err

		slog.Debug("embedding_attempt_failed",
			slog.Int("attempt", attempt+1),
			slog.Int("batch_index", e.batchIndex),
			slog.Duration("timeout_used", timeout),
			slog.String("error", err.Error()))

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", e.config.MaxRetries, lastErr)
}

// doEmbed performs a single batch embedding request. It runs the HTTP
// call in a goroutine and watches for context cancellation so a Ctrl-C
// exits immediately instead of waiting for the HTTP timeout.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	url := e.config.Host + "/api/embed"

	var input any
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	reqBody := OllamaEmbedRequest{Model: e.modelName, Input: input}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	e.setAuthHeader(req)

	type result struct {
		embeddings [][]float32
		err        error
	}
	resultCh := make(chan result, 1)

	go func() {
		resp, err := e.client.Do(req)
		if err != nil {
			resultCh <- result{nil, err}
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			resultCh <- result{nil, fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, string(respBody))}
			return
		}

		var apiResult OllamaEmbedResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
			resultCh <- result{nil, fmt.Errorf("failed to decode response: %w", err)}
			return
		}

		embeddings := make([][]float32, len(apiResult.Embeddings))
		for i, emb := range apiResult.Embeddings {
			embedding := make([]float32, len(emb))
			for j, v := range emb {
				embedding[j] = float32(v)
			}
			embeddings[i] = normalizeVector(embedding)
		}

		resultCh <- result{embeddings, nil}
	}()

	select {
	case <-ctx.Done():
		e.ForceCloseConnections()
		select {
		case <-resultCh:
		case <-time.After(100 * time.Millisecond):
		}
		return nil, ctx.Err()
	case r := <-resultCh:
		return r.embeddings, r.err
	}
}

// setAuthHeader attaches the configured API key, if any, as a bearer
// token — used when Host points at a hosted Ollama-compatible endpoint
// rather than a local daemon.
func (e *OllamaEmbedder) setAuthHeader(req *http.Request) {
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}
}

// Available checks if Ollama is running and the model is available.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	models, err := e.listModels(ctx)
	if err != nil {
		return false
	}

	modelLower := strings.ToLower(e.modelName)
	for _, m := range models {
		if strings.Contains(strings.ToLower(m.Name), modelLower) ||
			strings.Contains(modelLower, strings.ToLower(m.Name)) {
			return true
		}
	}
	return false
}

// Close releases resources.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.transport != nil {
		e.transport.CloseIdleConnections()
	}

	return nil
}

// ForceCloseConnections forcibly closes all HTTP connections,
// including active ones, so an in-flight request unblocks quickly on
// shutdown instead of waiting out its timeout.
func (e *OllamaEmbedder) ForceCloseConnections() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.transport != nil {
		e.transport.CloseIdleConnections()
		e.transport = &http.Transport{
			MaxIdleConns:        e.config.PoolSize,
			MaxIdleConnsPerHost: e.config.PoolSize,
			MaxConnsPerHost:     e.config.PoolSize * 2,
			IdleConnTimeout:     10 * time.Second,
			DisableKeepAlives:   true,
		}
		e.client.Transport = e.transport
	}
}
