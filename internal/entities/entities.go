// Package entities detects named entities in transcript text.
package entities

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/pkg/httpx"
)

const (
	target = "Comprehend_20171127.DetectEntities"

	// MaxTextBytes bounds the text sent in one request.
	MaxTextBytes = 5000

	// TypePerson is the entity type for people.
	TypePerson = "PERSON"
)

// Entity is one detected entity.
type Entity struct {
	Type  string  `json:"Type"`
	Text  string  `json:"Text"`
	Score float64 `json:"Score"`
}

// Detector finds entities in text.
type Detector interface {
	DetectEntities(ctx context.Context, text string) ([]Entity, error)
}

// Client calls a DetectEntities JSON endpoint.
type Client struct {
	endpoint string
	language string
	client   *httpx.Client
}

// NewClient creates a detector client. An empty language defaults to "en".
func NewClient(endpoint, language string, client *httpx.Client) *Client {
	if language == "" {
		language = "en"
	}
	if client == nil {
		client = httpx.New()
	}
	return &Client{endpoint: strings.TrimRight(endpoint, "/"), language: language, client: client}
}

type detectRequest struct {
	Text         string `json:"Text"`
	LanguageCode string `json:"LanguageCode"`
}

type detectResponse struct {
	Entities *[]Entity `json:"Entities"`
}

// DetectEntities returns the entities found in text. Empty text yields none.
func (c *Client) DetectEntities(ctx context.Context, text string) ([]Entity, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	req := detectRequest{Text: truncateBytes(text, MaxTextBytes), LanguageCode: c.language}
	headers := map[string]string{
		"X-Amz-Target": target,
		"Content-Type": "application/x-amz-json-1.1",
	}
	var resp detectResponse
	if err := c.client.PostJSON(ctx, c.endpoint+"/", headers, req, &resp); err != nil {
		return nil, apperr.NewProviderError("entities", "", err)
	}
	if resp.Entities == nil {
		return nil, apperr.NewProviderError("entities", "Entities", nil)
	}
	return *resp.Entities, nil
}

// People returns the distinct PERSON entity texts in order of first appearance.
func People(found []Entity) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range found {
		if e.Type != TypePerson || e.Text == "" || seen[e.Text] {
			continue
		}
		seen[e.Text] = true
		out = append(out, e.Text)
	}
	return out
}

// truncateBytes cuts s to at most n bytes on a rune boundary.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i, r := range s {
		end := i + utf8.RuneLen(r)
		if end > n {
			break
		}
		cut = end
	}
	return s[:cut]
}
