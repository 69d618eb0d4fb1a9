// Package identity computes stable, session-scoped user hashes.
package identity

import (
	"math"
	"sync"
)

const (
	offsetBasis uint32 = 2166136261
	prime       uint32 = 16777619
)

// FNV1a32 returns the 32-bit FNV-1a hash of b.
func FNV1a32(b []byte) uint32 {
	h := offsetBasis
	for _, c := range b {
		h ^= uint32(c)
		h *= prime
	}
	return h
}

// Hasher scopes user hashes to one broadcast session. The seed is reset on
// every (re)connection so that group assignment differs between sessions.
type Hasher struct {
	mu   sync.RWMutex
	seed uint32
}

func NewHasher(seed string) *Hasher {
	return &Hasher{seed: FNV1a32([]byte(seed))}
}

// SetSeed replaces the session seed. Hashes computed before the call are not
// comparable with hashes computed after it.
func (h *Hasher) SetSeed(seed string) {
	s := FNV1a32([]byte(seed))

	h.mu.Lock()
	h.seed = s
	h.mu.Unlock()
}

// UserHash returns a non-negative hash for id in the current session.
func (h *Hasher) UserHash(id string) int32 {
	h.mu.RLock()
	seed := h.seed
	h.mu.RUnlock()

	return int32((FNV1a32([]byte(id)) ^ seed) % math.MaxInt32)
}
