// Package hashing implements the cryptographic and non-cryptographic
// hashing primitives the rest of the engine is built on: djb2 and
// SHA-256-prefix for wire/GCIR key hashing, SHA-256-prefix modulo for
// deterministic unit bucketing, and an xxhash-backed string interning
// table for hot evaluation keys (the spec's "ahash").
package hashing

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Algorithm selects the GCIR key-hashing strategy (spec §4.10).
type Algorithm string

const (
	AlgorithmDJB2   Algorithm = "djb2"
	AlgorithmSHA256 Algorithm = "sha256"
	AlgorithmNone   Algorithm = "none"
)

// DJB2 computes Bernstein's hash and returns it as an unsigned 32-bit
// value (djb2("") == 0).
func DJB2(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*33 + uint32(s[i])
	}
	return h
}

// SHA256Prefix hashes s with SHA-256 and returns the first 8 bytes,
// interpreted big-endian, as a uint64. Matches the documented test
// vectors in spec.md §8: "" -> 0xE3B0C44298FC1C14.
func SHA256Prefix(s string) uint64 {
	sum := sha256.Sum256([]byte(s))
	return binary.BigEndian.Uint64(sum[:8])
}

// HashKey applies the requested GCIR key-hashing algorithm to name,
// returning the string form used as a JSON object key.
func HashKey(algo Algorithm, name string) string {
	switch algo {
	case AlgorithmDJB2:
		return uitoa(uint64(DJB2(name)))
	case AlgorithmSHA256:
		return uitoa(SHA256Prefix(name))
	default:
		return name
	}
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// BucketingDenominator is the modulus used to place a unit id into a
// [0, BucketingDenominator) bucket for percentage-pass rules.
const BucketingDenominator = 10000

// Bucket hashes salt+"."+unitID with SHA-256 and returns the bucket in
// [0, BucketingDenominator) that a rule's pass_percentage is compared
// against.
func Bucket(salt, unitID string) uint64 {
	return SHA256Prefix(salt+"."+unitID) % BucketingDenominator
}

// Interner deduplicates frequently repeated strings (spec ids, gate
// names, field names) encountered on the evaluation hot path, keyed by a
// fast non-cryptographic xxhash of the string; each Intern call hashes
// its argument once.
type Interner struct {
	mu     sync.RWMutex
	values map[uint64]string
}

// NewInterner returns an empty Interner.
func NewInterner() *Interner {
	return &Interner{values: make(map[uint64]string)}
}

// Intern returns the canonical copy of s, storing s on first sight.
func (in *Interner) Intern(s string) string {
	key := xxhash.Sum64String(s)

	in.mu.RLock()
	if v, ok := in.values[key]; ok {
		in.mu.RUnlock()
		return v
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	if v, ok := in.values[key]; ok {
		return v
	}
	in.values[key] = s
	return s
}

// Len reports how many distinct strings have been interned, mainly for
// tests and diagnostics.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.values)
}

// CacheKey produces a fast, collision-resistant-enough key from parts,
// each followed by a NUL separator so part boundaries affect the result.
// It backs the GCIR response hash and cache key and user.Fingerprint; it
// is never used for security-sensitive bucketing.
func CacheKey(parts ...string) uint64 {
	h := xxhash.New()
	for _, p := range parts {
		_, _ = h.WriteString(p)
		_, _ = h.WriteString("\x00")
	}
	return h.Sum64()
}
