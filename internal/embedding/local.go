package embedding

import (
	"context"

	"github.com/hyperjump/shotsearch/internal/apperr"
)

// LocalGateway serves the Gateway contract from in-process embedders.
// Model ids are ignored.
type LocalGateway struct {
	text  Embedder
	image ImageEmbedder
}

// NewLocalGateway wraps a text embedder and an optional image embedder.
func NewLocalGateway(text Embedder, image ImageEmbedder) *LocalGateway {
	return &LocalGateway{text: text, image: image}
}

// EmbedText embeds text with the local embedder.
func (g *LocalGateway) EmbedText(ctx context.Context, _ string, text string) ([]float32, error) {
	return g.text.Embed(ctx, text)
}

// EmbedImage embeds an image with the local image embedder.
func (g *LocalGateway) EmbedImage(ctx context.Context, _ string, image []byte) ([]float32, error) {
	if g.image == nil {
		return nil, apperr.NewConfigError("embedding.image_model", "no local image embedder configured")
	}
	return g.image.EmbedImage(ctx, image)
}

// Close closes the text embedder.
func (g *LocalGateway) Close() error {
	return g.text.Close()
}
