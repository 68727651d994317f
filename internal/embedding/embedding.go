// Package embedding maps text to fixed-dimension vectors.
package embedding

import (
	"context"
	"crypto/sha256"
	"errors"
	"math/rand/v2"
	"strings"
)

// DefaultDimensions matches the vector(1536) columns of the record tables.
const DefaultDimensions = 1536

var (
	// ErrEmptyText indicates a blank input.
	ErrEmptyText = errors.New("embedding: empty text")
	// ErrDimensionMismatch indicates a vector of unexpected length.
	ErrDimensionMismatch = errors.New("embedding: dimension mismatch")
)

// Provider embeds text. Implementations are deterministic per exact input and
// safe for concurrent use.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// HashProvider derives a pseudo-random vector from the SHA-256 of the text.
// Identical text always yields the identical vector.
type HashProvider struct {
	dims int
}

// NewHashProvider returns a HashProvider producing dims-length vectors.
func NewHashProvider(dims int) *HashProvider {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashProvider{dims: dims}
}

func (p *HashProvider) Dimensions() int { return p.dims }

func (p *HashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := rand.New(rand.NewChaCha8(sha256.Sum256([]byte(text))))
	vec := make([]float32, p.dims)
	for i := range vec {
		vec[i] = r.Float32()
	}
	return vec, nil
}
