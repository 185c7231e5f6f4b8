// Package embedding maps text to fixed-dimension vectors through a
// provider-neutral interface.
package embedding

import "context"

// Provider produces embeddings for retrieval. Implementations must
// return vectors of exactly Dimensions() length.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Name() string
}
