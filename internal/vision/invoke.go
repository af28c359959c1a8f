package vision

import (
	"context"
	"encoding/base64"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/pkg/httpx"
)

const anthropicVersion = "bedrock-2023-05-31"

// InvokeBackend sends a messages-API body through the model invoke endpoint:
// POST {endpoint}/model/{modelId}/invoke.
type InvokeBackend struct {
	endpoint string
	modelID  string
	client   *httpx.Client
}

type messageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messageContent struct {
	Type   string         `json:"type"`
	Text   string         `json:"text,omitempty"`
	Source *messageSource `json:"source,omitempty"`
}

type messageTurn struct {
	Role    string           `json:"role"`
	Content []messageContent `json:"content"`
}

type messagesRequest struct {
	AnthropicVersion string        `json:"anthropic_version"`
	MaxTokens        int           `json:"max_tokens"`
	Messages         []messageTurn `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string  `json:"type"`
		Text *string `json:"text"`
	} `json:"content"`
}

// Complete sends the image followed by the prompt text.
func (b *InvokeBackend) Complete(ctx context.Context, p Prompt) (string, error) {
	var content []messageContent
	if len(p.Image) > 0 {
		content = append(content, messageContent{Type: "image", Source: &messageSource{
			Type:      "base64",
			MediaType: "image/png",
			Data:      base64.StdEncoding.EncodeToString(p.Image),
		}})
	}
	content = append(content, messageContent{Type: "text", Text: p.Text})

	req := messagesRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens(p.MaxTokens),
		Messages:         []messageTurn{{Role: "user", Content: content}},
	}

	var resp messagesResponse
	if err := b.client.PostJSON(ctx, modelURL(b.endpoint, b.modelID, "invoke"), nil, req, &resp); err != nil {
		return "", apperr.NewProviderError(b.modelID, "", err)
	}
	if len(resp.Content) == 0 || resp.Content[0].Text == nil {
		return "", apperr.NewProviderError(b.modelID, "content[0].text", nil)
	}
	return *resp.Content[0].Text, nil
}
