// Package embedding provides text and image embedding behind a model-addressed
// gateway, with local ONNX and remote model backends and result caching.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// ImageEmbedder produces vector embeddings for encoded images.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
}

// Gateway embeds text and images with the model named by modelID.
type Gateway interface {
	EmbedText(ctx context.Context, modelID, text string) ([]float32, error)
	EmbedImage(ctx context.Context, modelID string, image []byte) ([]float32, error)
}
