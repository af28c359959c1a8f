package embedding

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/pkg/httpx"
	"github.com/hyperjump/shotsearch/pkg/utils"
)

const (
	titanTextPrefix = "amazon.titan-embed-text"

	// TitanDimensions is the vector size requested from Titan text models.
	TitanDimensions = 1024

	// CohereMaxChars is the longest input sent to Cohere text models.
	CohereMaxChars = 2048
)

type titanTextRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions"`
	Normalize  bool   `json:"normalize"`
}

type cohereTextRequest struct {
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
}

type titanImageRequest struct {
	InputImage string `json:"inputImage"`
}

type singleEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

type multiEmbeddingResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// BedrockGateway calls model invoke endpoints of the form
// {endpoint}/model/{modelId}/invoke. Text models whose id starts with
// "amazon.titan-embed-text" use the Titan request shape; all other text
// models use the Cohere shape.
type BedrockGateway struct {
	endpoint   string
	client     *httpx.Client
	dimensions int
	logger     *zap.Logger
}

// BedrockOption configures a BedrockGateway.
type BedrockOption func(*BedrockGateway)

// WithClient sets the HTTP client.
func WithClient(c *httpx.Client) BedrockOption {
	return func(g *BedrockGateway) { g.client = c }
}

// WithDimensions sets the Titan output dimensions.
func WithDimensions(d int) BedrockOption {
	return func(g *BedrockGateway) {
		if d > 0 {
			g.dimensions = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) BedrockOption {
	return func(g *BedrockGateway) { g.logger = l }
}

// NewBedrockGateway creates a gateway for the given runtime endpoint.
func NewBedrockGateway(endpoint string, opts ...BedrockOption) *BedrockGateway {
	g := &BedrockGateway{
		endpoint:   strings.TrimRight(endpoint, "/"),
		dimensions: TitanDimensions,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.client == nil {
		g.client = httpx.New()
	}
	return g
}

// EmbedText embeds text with a Titan or Cohere text model.
func (g *BedrockGateway) EmbedText(ctx context.Context, modelID, text string) ([]float32, error) {
	if modelID == "" {
		return nil, apperr.NewConfigError("embedding.text_model", "model id is required")
	}
	if strings.HasPrefix(modelID, titanTextPrefix) {
		var resp singleEmbeddingResponse
		req := titanTextRequest{InputText: text, Dimensions: g.dimensions, Normalize: true}
		if err := g.invoke(ctx, modelID, req, &resp); err != nil {
			return nil, err
		}
		if len(resp.Embedding) == 0 {
			return nil, apperr.NewProviderError(modelID, "embedding", nil)
		}
		return resp.Embedding, nil
	}

	var resp multiEmbeddingResponse
	req := cohereTextRequest{
		Texts:     []string{utils.TruncateRunes(text, CohereMaxChars)},
		InputType: "search_document",
	}
	if err := g.invoke(ctx, modelID, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, apperr.NewProviderError(modelID, "embeddings", nil)
	}
	return resp.Embeddings[0], nil
}

// EmbedImage embeds an encoded image with a Titan multimodal model.
func (g *BedrockGateway) EmbedImage(ctx context.Context, modelID string, image []byte) ([]float32, error) {
	if modelID == "" {
		return nil, apperr.NewConfigError("embedding.image_model", "model id is required")
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("image is empty")
	}
	var resp singleEmbeddingResponse
	req := titanImageRequest{InputImage: base64.StdEncoding.EncodeToString(image)}
	if err := g.invoke(ctx, modelID, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, apperr.NewProviderError(modelID, "embedding", nil)
	}
	return resp.Embedding, nil
}

func (g *BedrockGateway) invoke(ctx context.Context, modelID string, req, resp any) error {
	u := fmt.Sprintf("%s/model/%s/invoke", g.endpoint, url.PathEscape(modelID))
	if err := g.client.PostJSON(ctx, u, nil, req, resp); err != nil {
		if g.logger != nil {
			g.logger.Warn("embedding request failed", zap.String("model", modelID), zap.Error(err))
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return apperr.NewProviderError(modelID, "", err)
	}
	return nil
}
