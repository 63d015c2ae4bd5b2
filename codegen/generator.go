package codegen

import (
	"crypto/rand"
	"fmt"
	"sync/atomic"
)

// Generator produces short codes of a fixed length.
// Sequential generators are collision-free by construction; random generators
// require a uniqueness check by the caller.
type Generator interface {
	Generate() (string, error)
}

// SequentialGenerator encodes a monotonically increasing counter into base62,
// zero-padded to Length. The counter source must be unique (e.g. a DB sequence).
type SequentialGenerator struct {
	Length int
	next   atomic.Uint64
}

// NewSequentialGenerator creates a sequential generator starting after seed.
func NewSequentialGenerator(length int, seed uint64) *SequentialGenerator {
	g := &SequentialGenerator{Length: length}
	g.next.Store(seed)
	return g
}

func (g *SequentialGenerator) Generate() (string, error) {
	n := g.next.Add(1)
	s := EncodePadded(n, g.Length)
	if len(s) > g.Length {
		return "", fmt.Errorf("sequence exhausted at %s", s)
	}
	return s, nil
}

// RandomGenerator draws fixed-length codes from Alphabet using crypto/rand.
// Uniqueness is probabilistic; callers must check the store and retry on collision.
type RandomGenerator struct {
	Length int
}

func NewRandomGenerator(length int) *RandomGenerator {
	return &RandomGenerator{Length: length}
}

func (g *RandomGenerator) Generate() (string, error) {
	buf := make([]byte, g.Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	// Rejection sampling keeps the distribution uniform over the 62 characters.
	out := make([]byte, 0, g.Length)
	for len(out) < g.Length {
		for _, b := range buf {
			if int(b) < 62*4 { // 248 is the largest multiple of 62 below 256
				out = append(out, Alphabet[int(b)%62])
				if len(out) == g.Length {
					break
				}
			}
		}
		if len(out) < g.Length {
			if _, err := rand.Read(buf); err != nil {
				return "", fmt.Errorf("failed to read random bytes: %w", err)
			}
		}
	}
	return string(out), nil
}
