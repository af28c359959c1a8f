// Package store defines the search backend contract shared by the local,
// OpenSearch and Qdrant implementations.
package store

import (
	"context"
	"encoding/json"
)

// Store searches and writes documents of named indices.
type Store interface {
	Search(ctx context.Context, index string, q Query) (*Response, error)
	// Index upserts doc; a document with the same ID is replaced in full.
	Index(ctx context.Context, index string, doc Document) error
	Close() error
}

// Query is one of *HybridQuery or *KNNQuery.
type Query interface {
	isQuery()
}

// Space names the similarity used by a vector clause.
const SpaceCosine = "cosinesimil"

// VectorClause scores documents by similarity of Field against Vector, scaled by Boost.
type VectorClause struct {
	Field  string
	Vector []float32
	Boost  float64
	Space  string
}

// HybridQuery sums the boosted vector clauses (at least MinimumShouldMatch of
// them must apply to a document) and, when Phrases is non-empty, requires every
// phrase to occur verbatim in at least one of PhraseFields.
type HybridQuery struct {
	Vectors            []VectorClause
	Phrases            []string
	PhraseFields       []string
	Size               int
	Source             []string
	MinimumShouldMatch int
}

// KNNQuery returns the K nearest documents by Field, truncated to Size.
type KNNQuery struct {
	Field  string
	Vector []float32
	K      int
	Size   int
	Source []string
}

func (*HybridQuery) isQuery() {}
func (*KNNQuery) isQuery()    {}

// Document is one indexed record: scalar fields plus named vectors.
type Document struct {
	ID      string
	Fields  map[string]any
	Vectors map[string][]float32
}

// Hit is one search result in backend order.
type Hit struct {
	ID     string
	Score  float64
	Source json.RawMessage
}

// Response holds the hits of a search, best first.
type Response struct {
	Hits  []Hit
	Total int
}

// FilterSource keeps only the named fields of a document; nil keeps everything.
func FilterSource(fields map[string]any, names []string) map[string]any {
	if names == nil {
		return fields
	}
	out := make(map[string]any, len(names))
	for _, n := range names {
		if v, ok := fields[n]; ok {
			out[n] = v
		}
	}
	return out
}

// Merge flattens fields and vectors into one document body.
func Merge(doc Document) map[string]any {
	body := make(map[string]any, len(doc.Fields)+len(doc.Vectors))
	for k, v := range doc.Fields {
		body[k] = v
	}
	for k, v := range doc.Vectors {
		body[k] = v
	}
	return body
}
