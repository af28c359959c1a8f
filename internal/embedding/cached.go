package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// CachedGateway memoizes another gateway's results.
type CachedGateway struct {
	next  Gateway
	cache Cache
}

// NewCachedGateway wraps next with cache.
func NewCachedGateway(next Gateway, cache Cache) *CachedGateway {
	return &CachedGateway{next: next, cache: cache}
}

// EmbedText returns a cached vector or computes and stores one.
func (g *CachedGateway) EmbedText(ctx context.Context, modelID, text string) ([]float32, error) {
	key := cacheKey("text", modelID, []byte(text))
	if v, ok := g.cache.Get(ctx, key); ok {
		return v, nil
	}
	v, err := g.next.EmbedText(ctx, modelID, text)
	if err != nil {
		return nil, err
	}
	g.cache.Set(ctx, key, v)
	return v, nil
}

// EmbedImage returns a cached vector or computes and stores one.
func (g *CachedGateway) EmbedImage(ctx context.Context, modelID string, image []byte) ([]float32, error) {
	key := cacheKey("image", modelID, image)
	if v, ok := g.cache.Get(ctx, key); ok {
		return v, nil
	}
	v, err := g.next.EmbedImage(ctx, modelID, image)
	if err != nil {
		return nil, err
	}
	g.cache.Set(ctx, key, v)
	return v, nil
}

func cacheKey(kind, modelID string, payload []byte) string {
	sum := sha256.Sum256(payload)
	return kind + ":" + modelID + ":" + hex.EncodeToString(sum[:])
}
