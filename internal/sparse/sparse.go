// Package sparse builds the BM25-style sparse vectors spec §4.12/§6
// attach to metadata and relation chunks (never to implementation
// chunks — see §4.7 Phase D).
//
// Grounded on internal/embed/static.go's code-aware tokenizer
// (camelCase/snake_case splitting, FNV hashing into a fixed-size
// space) generalized from a dense weighted vector into a sparse
// term-frequency vector keyed by hashed term index, the standard
// "hashing trick" representation for a BM25-like sparse vector when no
// persistent vocabulary/IDF table is maintained.
package sparse

import (
	"hash/fnv"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/rlefko/codeindexer/internal/vectorstore"
)

// VocabSize bounds the hashed index space; collisions are acceptable
// for a sparse BM25 approximation, same tradeoff static.go accepts for
// its dense hash-based vector.
const VocabSize = 1 << 16

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

var stopWords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true,
	"null": true, "this": true, "self": true, "new": true,
}

// Build tokenizes text and returns a term-frequency sparse vector. An
// empty or whitespace-only text yields a zero-length vector.
func Build(text string) vectorstore.SparseVector {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return vectorstore.SparseVector{}
	}

	counts := make(map[uint32]float32)
	for _, tok := range tokenize(trimmed) {
		if stopWords[tok] {
			continue
		}
		idx := hashToIndex(tok)
		counts[idx]++
	}

	indices := make([]uint32, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	for i, idx := range indices {
		values[i] = counts[idx]
	}

	return vectorstore.SparseVector{Indices: indices, Values: values}
}

func tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range splitCodeToken(word) {
			if lower := strings.ToLower(t); lower != "" {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

func splitCodeToken(token string) []string {
	if strings.Contains(token, "_") {
		var out []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				out = append(out, splitCamelCase(part)...)
			}
		}
		return out
	}
	return splitCamelCase(token)
}

func splitCamelCase(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	var current strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func hashToIndex(s string) uint32 {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return uint32(h.Sum64() % uint64(VocabSize))
}
