package entity

import (
	"crypto/sha256"
	"encoding/binary"
)

// PointID converts a deterministic string chunk key into the u64 the
// vector store requires, per spec §9: hash with SHA-256 and take the
// first 8 bytes, big-endian.
//
// Collisions are a programmer-visible bug, not a runtime condition to
// recover from — callers that detect two distinct string keys mapping
// to the same PointID during upsert planning must fail loudly rather
// than silently drop one (see internal/process).
func PointID(key string) uint64 {
	sum := sha256.Sum256([]byte(key))
	return binary.BigEndian.Uint64(sum[:8])
}
