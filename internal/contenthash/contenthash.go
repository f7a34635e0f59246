// Package contenthash implements C1: the single canonical content-hash
// utility used everywhere in the pipeline for deduplication.
//
// Generalized from a single hashContent helper covering "hash of a
// file's bytes" to "hash of any canonical content string" per spec §4.1.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the lowercase-hex SHA-256 digest of the UTF-8 bytes of
// s. It performs no normalisation: callers must pass the exact string
// that will be embedded, since content_hash equality is the sole
// dedup signal (spec §4.1).
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashBytes is Hash for already-decoded byte content (e.g. whole file
// bodies read off disk for the file-state cache, §4.2).
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
