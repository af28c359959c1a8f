// Package rerank scores candidate documents against a query with a hosted
// reranking model.
package rerank

import (
	"context"
	"strings"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/pkg/httpx"
)

// Result is the reranker's verdict on one submitted document. Index refers to
// the position in the submitted slice.
type Result struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevanceScore"`
}

// Reranker orders documents by relevance to a query. Results come back in
// descending relevance and hold at most n entries.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []map[string]any, n int) ([]Result, error)
}

// Client calls POST {endpoint}/rerank.
type Client struct {
	endpoint string
	modelARN string
	client   *httpx.Client
}

// NewClient creates a rerank client.
func NewClient(endpoint, modelARN string, client *httpx.Client) (*Client, error) {
	if modelARN == "" {
		return nil, apperr.NewConfigError("rerank.model_arn", "model ARN is required")
	}
	if client == nil {
		client = httpx.New()
	}
	return &Client{endpoint: strings.TrimRight(endpoint, "/"), modelARN: modelARN, client: client}, nil
}

type textQuery struct {
	Text string `json:"text"`
}

type query struct {
	Type      string    `json:"type"`
	TextQuery textQuery `json:"textQuery"`
}

type inlineDocument struct {
	Type         string         `json:"type"`
	JSONDocument map[string]any `json:"jsonDocument"`
}

type source struct {
	Type                 string         `json:"type"`
	InlineDocumentSource inlineDocument `json:"inlineDocumentSource"`
}

type modelConfiguration struct {
	ModelARN string `json:"modelArn"`
}

type bedrockConfiguration struct {
	NumberOfResults    int                `json:"numberOfResults"`
	ModelConfiguration modelConfiguration `json:"modelConfiguration"`
}

type rerankingConfiguration struct {
	Type    string               `json:"type"`
	Bedrock bedrockConfiguration `json:"bedrockRerankingConfiguration"`
}

type request struct {
	Queries                []query                `json:"queries"`
	Sources                []source               `json:"sources"`
	RerankingConfiguration rerankingConfiguration `json:"rerankingConfiguration"`
}

type response struct {
	Results *[]Result `json:"results"`
}

// Rerank submits docs as inline JSON documents. n is capped at len(docs).
// An empty docs slice returns no results without a call.
func (c *Client) Rerank(ctx context.Context, q string, docs []map[string]any, n int) ([]Result, error) {
	if len(docs) == 0 {
		return []Result{}, nil
	}
	if n > len(docs) || n <= 0 {
		n = len(docs)
	}
	req := request{
		Queries: []query{{Type: "TEXT", TextQuery: textQuery{Text: q}}},
		RerankingConfiguration: rerankingConfiguration{
			Type: "BEDROCK_RERANKING_MODEL",
			Bedrock: bedrockConfiguration{
				NumberOfResults:    n,
				ModelConfiguration: modelConfiguration{ModelARN: c.modelARN},
			},
		},
	}
	req.Sources = make([]source, len(docs))
	for i, d := range docs {
		req.Sources[i] = source{
			Type:                 "INLINE",
			InlineDocumentSource: inlineDocument{Type: "JSON", JSONDocument: d},
		}
	}

	var resp response
	if err := c.client.PostJSON(ctx, c.endpoint+"/rerank", nil, req, &resp); err != nil {
		return nil, apperr.NewProviderError("rerank", "", err)
	}
	if resp.Results == nil {
		return nil, apperr.NewProviderError("rerank", "results", nil)
	}
	for _, r := range *resp.Results {
		if r.Index < 0 || r.Index >= len(docs) {
			return nil, apperr.NewProviderError("rerank", "results.index", nil)
		}
	}
	return *resp.Results, nil
}
