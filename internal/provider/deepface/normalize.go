package deepface

import (
	"gonum.org/v1/gonum/floats"

	"github.com/saturnino-fabrica-de-software/proctor/internal/provider"
)

// NormalizeEmbedding normalizes an embedding vector to unit length.
// Zero vectors are returned unchanged.
func NormalizeEmbedding(embedding provider.Embedding) provider.Embedding {
	if len(embedding) == 0 {
		return embedding
	}

	norm := floats.Norm(embedding, 2)
	if norm == 0 {
		return embedding
	}

	normalized := make(provider.Embedding, len(embedding))
	floats.ScaleTo(normalized, 1/norm, embedding)
	return normalized
}
