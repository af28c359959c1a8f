// Package opensearch implements store.Store against an OpenSearch k-NN cluster
// using the opensearch-go client.
package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/internal/store"
)

const provider = "opensearch"

// Store talks to one OpenSearch endpoint.
type Store struct {
	client  *opensearchapi.Client
	apiKey  string
	base    http.RoundTripper
	logger  *zap.Logger
	ensured sync.Map
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithAPIKey sends the key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(s *Store) { s.apiKey = key }
}

// WithTransport sets the round tripper wrapped by the otel transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Store) { s.base = rt }
}

// New returns a Store for endpoint.
func New(endpoint string, opts ...Option) (*Store, error) {
	if endpoint == "" {
		return nil, apperr.NewConfigError("storage.opensearch.endpoint", "endpoint is required")
	}
	s := &Store{base: http.DefaultTransport, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	header := http.Header{}
	if s.apiKey != "" {
		header.Set("Authorization", "Bearer "+s.apiKey)
	}
	client, err := opensearchapi.NewClient(opensearchapi.Config{
		Client: opensearch.Config{
			Addresses: []string{endpoint},
			Header:    header,
			Transport: otelhttp.NewTransport(s.base),
		},
	})
	if err != nil {
		return nil, apperr.NewConfigError("storage.opensearch.endpoint", err.Error())
	}
	s.client = client
	return s, nil
}

// HybridBody renders q as an OpenSearch search body: boosted knn script_score
// clauses under should, one phrase multi_match per phrase under must.
func HybridBody(q *store.HybridQuery) map[string]any {
	should := make([]any, 0, len(q.Vectors))
	for _, c := range q.Vectors {
		space := c.Space
		if space == "" {
			space = store.SpaceCosine
		}
		should = append(should, map[string]any{
			"script_score": map[string]any{
				"query": map[string]any{"match_all": map[string]any{}},
				"script": map[string]any{
					"lang":   "knn",
					"source": "knn_score",
					"params": map[string]any{
						"field":       c.Field,
						"query_value": c.Vector,
						"space_type":  space,
					},
				},
				"boost": c.Boost,
			},
		})
	}
	boolQuery := map[string]any{
		"should":               should,
		"minimum_should_match": q.MinimumShouldMatch,
	}
	if len(q.Phrases) > 0 {
		must := make([]any, 0, len(q.Phrases))
		for _, p := range q.Phrases {
			must = append(must, map[string]any{
				"multi_match": map[string]any{
					"query":  p,
					"fields": q.PhraseFields,
					"type":   "phrase",
				},
			})
		}
		boolQuery["must"] = must
	}
	body := map[string]any{
		"size":  q.Size,
		"query": map[string]any{"bool": boolQuery},
	}
	if q.Source != nil {
		body["_source"] = q.Source
	}
	return body
}

// KNNBody renders q as an approximate k-NN search body.
func KNNBody(q *store.KNNQuery) map[string]any {
	body := map[string]any{
		"size": q.Size,
		"query": map[string]any{
			"knn": map[string]any{
				q.Field: map[string]any{"vector": q.Vector, "k": q.K},
			},
		},
	}
	if q.Source != nil {
		body["_source"] = q.Source
	}
	return body
}

// Search runs the rendered query against {index}/_search.
func (s *Store) Search(ctx context.Context, index string, q store.Query) (*store.Response, error) {
	var body map[string]any
	switch tq := q.(type) {
	case *store.HybridQuery:
		body = HybridBody(tq)
	case *store.KNNQuery:
		body = KNNBody(tq)
	default:
		return nil, fmt.Errorf("unsupported query type %T", q)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode search body: %w", err)
	}

	resp, err := s.client.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{index},
		Body:    bytes.NewReader(raw),
	})
	if err != nil {
		return nil, wrap(err)
	}
	out := &store.Response{Hits: make([]store.Hit, 0, len(resp.Hits.Hits)), Total: resp.Hits.Total.Value}
	for _, h := range resp.Hits.Hits {
		out.Hits = append(out.Hits, store.Hit{ID: h.ID, Score: float64(h.Score), Source: h.Source})
	}
	s.logger.Debug("opensearch search",
		zap.String("index", index),
		zap.Int("hits", len(out.Hits)),
	)
	return out, nil
}

// Index writes doc to {index}/_doc/{id}, creating the index with knn_vector
// mappings on first use.
func (s *Store) Index(ctx context.Context, index string, doc store.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if err := s.ensureIndex(ctx, index, doc.Vectors); err != nil {
		return err
	}
	raw, err := json.Marshal(store.Merge(doc))
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	if _, err := s.client.Index(ctx, opensearchapi.IndexReq{
		Index:      index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(raw),
	}); err != nil {
		return wrap(err)
	}
	return nil
}

func (s *Store) ensureIndex(ctx context.Context, index string, vectors map[string][]float32) error {
	if _, ok := s.ensured.Load(index); ok {
		return nil
	}
	resp, err := s.client.Indices.Exists(ctx, opensearchapi.IndicesExistsReq{Indices: []string{index}})
	switch {
	case resp != nil && resp.StatusCode == http.StatusNotFound:
		raw, err := json.Marshal(IndexBody(vectors))
		if err != nil {
			return fmt.Errorf("encode index body: %w", err)
		}
		if _, err := s.client.Indices.Create(ctx, opensearchapi.IndicesCreateReq{
			Index: index,
			Body:  bytes.NewReader(raw),
		}); err != nil {
			return wrap(err)
		}
		s.logger.Info("created opensearch index", zap.String("index", index))
	case err != nil:
		return wrap(err)
	}
	s.ensured.Store(index, struct{}{})
	return nil
}

// IndexBody renders index settings with one knn_vector mapping per vector field.
func IndexBody(vectors map[string][]float32) map[string]any {
	props := make(map[string]any, len(vectors))
	for field, v := range vectors {
		props[field] = map[string]any{"type": "knn_vector", "dimension": len(v)}
	}
	return map[string]any{
		"settings": map[string]any{"index": map[string]any{"knn": true}},
		"mappings": map[string]any{"properties": props},
	}
}

func wrap(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.NewProviderError(provider, "", err)
}

// Close is a no-op; the client pools connections on the shared transport.
func (s *Store) Close() error {
	return nil
}
