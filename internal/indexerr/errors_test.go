package indexerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("original error")

	ie := New(ErrCodeFileNotFound, "file not found: test.txt", originalErr)

	require.NotNil(t, ie)
	assert.Equal(t, originalErr, errors.Unwrap(ie))
	assert.True(t, errors.Is(ie, originalErr))
}

func TestIndexError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "transient error",
			code:     ErrCodeFileNotFound,
			message:  "file not found",
			expected: "[ERR_101_FILE_NOT_FOUND] file not found",
		},
		{
			name:     "parser error",
			code:     ErrCodeParseSyntax,
			message:  "unexpected token",
			expected: "[ERR_201_PARSE_SYNTAX] unexpected token",
		},
		{
			name:     "embedder error",
			code:     ErrCodeEmbeddingFailed,
			message:  "embedding request failed",
			expected: "[ERR_301_EMBEDDING_FAILED] embedding request failed",
		},
		{
			name:     "store error",
			code:     ErrCodeStoreUpsertFailed,
			message:  "upsert rejected",
			expected: "[ERR_401_STORE_UPSERT_FAILED] upsert rejected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestIndexError_Is_MatchesByCode(t *testing.T) {
	err1 := New(ErrCodeFileNotFound, "file A not found", nil)
	err2 := New(ErrCodeFileNotFound, "file B not found", nil)

	assert.True(t, errors.Is(err1, err2))
}

func TestIndexError_Is_DoesNotMatchDifferentCodes(t *testing.T) {
	err1 := New(ErrCodeFileNotFound, "file not found", nil)
	err2 := New(ErrCodeStoreUpsertFailed, "upsert failed", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestIndexError_WithDetails_AddsContext(t *testing.T) {
	err := New(ErrCodeFileNotFound, "file not found", nil)

	err = err.WithDetail("path", "/foo/bar.go")
	err = err.WithDetail("size", "1024")

	assert.Equal(t, "/foo/bar.go", err.Details["path"])
	assert.Equal(t, "1024", err.Details["size"])
}

func TestIndexError_WithSuggestion_AddsSuggestion(t *testing.T) {
	err := New(ErrCodeNetworkTimeout, "connection timed out", nil)

	err = err.WithSuggestion("check network connectivity to the embedding endpoint")

	assert.Equal(t, "check network connectivity to the embedding endpoint", err.Suggestion)
}

func TestIndexError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeFileNotFound, CategoryTransient},
		{ErrCodeNetworkTimeout, CategoryTransient},
		{ErrCodeParseSyntax, CategoryParser},
		{ErrCodeParserPanic, CategoryParser},
		{ErrCodeEmbeddingFailed, CategoryEmbedder},
		{ErrCodeDimensionMismatch, CategoryEmbedder},
		{ErrCodeStoreUpsertFailed, CategoryStore},
		{ErrCodeStoreDeleteFailed, CategoryStore},
		{ErrCodeConfigInvalid, CategoryFatal},
		{ErrCodeInternal, CategoryFatal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestIndexError_SeverityFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantSeverity Severity
	}{
		{ErrCodeDiskFull, SeverityFatal},
		{ErrCodeConfigInvalid, SeverityFatal},
		{ErrCodeProjectCorrupt, SeverityFatal},
		{ErrCodeFileNotFound, SeverityError},
		{ErrCodeStoreUpsertFailed, SeverityError},
		{ErrCodeNetworkTimeout, SeverityWarning},
		{ErrCodeEmbeddingTimeout, SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantSeverity, err.Severity)
		})
	}
}

func TestIndexError_RetryableFromCode(t *testing.T) {
	tests := []struct {
		code          string
		wantRetryable bool
	}{
		{ErrCodeNetworkTimeout, true},
		{ErrCodeNetworkDown, true},
		{ErrCodeEmbeddingTimeout, true},
		{ErrCodeFileNotFound, false},
		{ErrCodeConfigInvalid, false},
		{ErrCodeStoreUpsertFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantRetryable, err.Retryable)
		})
	}
}

func TestWrap_CreatesIndexErrorFromError(t *testing.T) {
	originalErr := errors.New("something went wrong")

	ie := Wrap(ErrCodeInternal, originalErr)

	require.NotNil(t, ie)
	assert.Equal(t, ErrCodeInternal, ie.Code)
	assert.Equal(t, "something went wrong", ie.Message)
	assert.Equal(t, originalErr, ie.Cause)
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestTaxonomyConstructors_SetExpectedCategories(t *testing.T) {
	assert.Equal(t, CategoryTransient, TransientError("timeout", nil).Category)
	assert.Equal(t, CategoryParser, ParserError("bad syntax", nil).Category)
	assert.Equal(t, CategoryEmbedder, EmbedderError("embedding failed", nil).Category)
	assert.Equal(t, CategoryStore, StoreUpsertError("upsert failed", nil).Category)
	assert.Equal(t, CategoryStore, StoreDeleteError("delete failed", nil).Category)
	assert.Equal(t, CategoryFatal, FatalError("bad config", nil).Category)
}

func TestIsRetryable_ChecksRetryableFlag(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"retryable IndexError", New(ErrCodeNetworkTimeout, "timeout", nil), true},
		{"non-retryable IndexError", New(ErrCodeFileNotFound, "not found", nil), false},
		{"wrapped retryable error", Wrap(ErrCodeNetworkTimeout, errors.New("wrapped")), true},
		{"standard error", errors.New("standard error"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal_ChecksFatalSeverity(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"disk full error", New(ErrCodeDiskFull, "no space left", nil), true},
		{"config invalid error", New(ErrCodeConfigInvalid, "bad yaml", nil), true},
		{"non-fatal error", New(ErrCodeFileNotFound, "not found", nil), false},
		{"standard error", errors.New("standard error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsFatal(tt.err))
		})
	}
}

func TestGetCode_And_GetCategory(t *testing.T) {
	err := New(ErrCodeStoreUpsertFailed, "upsert failed", nil)
	assert.Equal(t, ErrCodeStoreUpsertFailed, GetCode(err))
	assert.Equal(t, CategoryStore, GetCategory(err))

	assert.Equal(t, "", GetCode(errors.New("plain")))
	assert.Equal(t, Category(""), GetCategory(errors.New("plain")))
}
