// Package vision asks a multimodal model about frames and composites: which
// people are visible, and what a shot shows.
package vision

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/pkg/httpx"
)

// DefaultMaxTokens caps the length of model answers.
const DefaultMaxTokens = 128

// Prompt is a single-turn request with one PNG image.
type Prompt struct {
	Text      string
	Image     []byte
	MaxTokens int
}

// Backend completes a prompt with a multimodal model and returns the answer text.
type Backend interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// New returns the backend named by kind: "chat" for the converse API or
// "invoke" for the raw messages API.
func New(kind, endpoint, modelID string, client *httpx.Client) (Backend, error) {
	if modelID == "" {
		return nil, apperr.NewConfigError("vision.model", "model id is required")
	}
	if client == nil {
		client = httpx.New()
	}
	switch kind {
	case "chat":
		return &ChatBackend{endpoint: trim(endpoint), modelID: modelID, client: client}, nil
	case "invoke":
		return &InvokeBackend{endpoint: trim(endpoint), modelID: modelID, client: client}, nil
	}
	return nil, apperr.NewConfigError("vision.backend", fmt.Sprintf("unknown backend %q", kind))
}

func trim(endpoint string) string {
	return strings.TrimRight(endpoint, "/")
}

func modelURL(endpoint, modelID, action string) string {
	return fmt.Sprintf("%s/model/%s/%s", endpoint, url.PathEscape(modelID), action)
}

func maxTokens(n int) int {
	if n <= 0 {
		return DefaultMaxTokens
	}
	return n
}
