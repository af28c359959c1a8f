package models

import (
	"fmt"
	"strings"
)

// QueryKind selects the search mode.
type QueryKind string

const (
	// QueryText runs weighted vector retrieval with phrase filters and a rerank pass.
	QueryText QueryKind = "text"
	// QueryImage runs a pure k-nearest-neighbor search on the image vector.
	QueryImage QueryKind = "image"
)

// SearchQuery is a text or image query. Query holds the raw text for text
// queries and the base64 payload (optionally a data URI) for image queries.
type SearchQuery struct {
	Kind  QueryKind `json:"type"`
	Query string    `json:"query"`
	Index string    `json:"index,omitempty"`
}

// NewTextQuery returns a text-mode query.
func NewTextQuery(text string) *SearchQuery {
	return &SearchQuery{Kind: QueryText, Query: text}
}

// NewImageQuery returns an image-mode query.
func NewImageQuery(base64Image string) *SearchQuery {
	return &SearchQuery{Kind: QueryImage, Query: base64Image}
}

// Validate normalizes the query. An empty kind defaults to text, except that a
// data URI payload selects image mode. Image payloads lose their data URI prefix.
func (q *SearchQuery) Validate() error {
	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Kind == "" {
		q.Kind = QueryText
		if strings.HasPrefix(q.Query, "data:image") {
			q.Kind = QueryImage
		}
	}
	switch q.Kind {
	case QueryText:
	case QueryImage:
		q.Query = StripDataURI(q.Query)
		if q.Query == "" {
			return fmt.Errorf("image query has no payload")
		}
	default:
		return fmt.Errorf("unknown query type %q (supported: text, image)", q.Kind)
	}
	return nil
}

// StripDataURI removes a "data:image/...;base64," prefix up to and including the first comma.
func StripDataURI(s string) string {
	if !strings.HasPrefix(s, "data:image") {
		return s
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		return s[i+1:]
	}
	return s
}
