// Package embedding measures semantic distance between note spans using an
// injected vector-embedding backend.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrProtocol indicates the embedding backend violated its contract by
// returning fewer vectors than requested.
var ErrProtocol = errors.New("embedding protocol error: backend returned fewer vectors than requested")

// Client is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Client must share dimensionality.
// Implementations must be safe for concurrent use.
type Client interface {
	// EmbedBatch computes embedding vectors for texts in one backend call.
	// The returned slice has the same length as texts; the i-th vector
	// corresponds to texts[i]. Partial results are not returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ModelID returns the backend model identifier, for logging and for
	// ensuring consistent model usage across gate evaluations.
	ModelID() string
}

// Probe computes cosine distance between two text spans.
type Probe struct {
	client Client
}

// NewProbe creates a Probe over the given client.
func NewProbe(client Client) *Probe {
	return &Probe{client: client}
}

// Distance returns 1 - cosine_similarity(embed(oldSpan), embed(newSpan)),
// clamped to [0,1]. Whitespace-only spans are maximally distant (1.0), as is
// any all-zero vector. A short batch from the backend surfaces ErrProtocol.
func (p *Probe) Distance(ctx context.Context, oldSpan, newSpan string) (float64, error) {
	if strings.TrimSpace(oldSpan) == "" || strings.TrimSpace(newSpan) == "" {
		return 1.0, nil
	}

	vectors, err := p.client.EmbedBatch(ctx, []string{oldSpan, newSpan})
	if err != nil {
		return 0, fmt.Errorf("embedding batch failed: %w", err)
	}
	if len(vectors) < 2 {
		return 0, fmt.Errorf("%w: got %d vectors for 2 inputs", ErrProtocol, len(vectors))
	}

	sim, ok := cosineSimilarity(vectors[0], vectors[1])
	if !ok {
		return 1.0, nil
	}
	return clamp01(1.0 - sim), nil
}

// cosineSimilarity returns the cosine of the angle between a and b.
// ok is false when either vector has zero magnitude.
func cosineSimilarity(a, b []float32) (sim float64, ok bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
