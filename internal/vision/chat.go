package vision

import (
	"context"
	"encoding/base64"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/pkg/httpx"
)

// ChatBackend talks to a converse-style endpoint:
// POST {endpoint}/model/{modelId}/converse.
type ChatBackend struct {
	endpoint string
	modelID  string
	client   *httpx.Client
}

type converseImageSource struct {
	Bytes string `json:"bytes"`
}

type converseImage struct {
	Format string              `json:"format"`
	Source converseImageSource `json:"source"`
}

type converseContent struct {
	Text  string         `json:"text,omitempty"`
	Image *converseImage `json:"image,omitempty"`
}

type converseMessage struct {
	Role    string            `json:"role"`
	Content []converseContent `json:"content"`
}

type converseRequest struct {
	Messages        []converseMessage `json:"messages"`
	InferenceConfig struct {
		MaxTokens int `json:"maxTokens"`
	} `json:"inferenceConfig"`
}

type converseResponse struct {
	Output *struct {
		Message *struct {
			Content []struct {
				Text *string `json:"text"`
			} `json:"content"`
		} `json:"message"`
	} `json:"output"`
}

// Complete sends the prompt text followed by the image.
func (b *ChatBackend) Complete(ctx context.Context, p Prompt) (string, error) {
	content := []converseContent{{Text: p.Text}}
	if len(p.Image) > 0 {
		content = append(content, converseContent{Image: &converseImage{
			Format: "png",
			Source: converseImageSource{Bytes: base64.StdEncoding.EncodeToString(p.Image)},
		}})
	}
	var req converseRequest
	req.Messages = []converseMessage{{Role: "user", Content: content}}
	req.InferenceConfig.MaxTokens = maxTokens(p.MaxTokens)

	var resp converseResponse
	if err := b.client.PostJSON(ctx, modelURL(b.endpoint, b.modelID, "converse"), nil, req, &resp); err != nil {
		return "", apperr.NewProviderError(b.modelID, "", err)
	}
	if resp.Output == nil || resp.Output.Message == nil || len(resp.Output.Message.Content) == 0 || resp.Output.Message.Content[0].Text == nil {
		return "", apperr.NewProviderError(b.modelID, "output.message.content[0].text", nil)
	}
	return *resp.Output.Message.Content[0].Text, nil
}
