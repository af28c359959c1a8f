// Package search provides the hybrid shot query engine: weighted vector
// retrieval with phrase filters, a relevance cut, then a rerank pass.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/internal/config"
	"github.com/hyperjump/shotsearch/internal/embedding"
	"github.com/hyperjump/shotsearch/internal/models"
	"github.com/hyperjump/shotsearch/internal/rerank"
	"github.com/hyperjump/shotsearch/internal/store"
)

// Engine answers text and image queries over the shot index.
type Engine struct {
	store      store.Store
	gateway    embedding.Gateway
	reranker   rerank.Reranker
	config     *config.SearchConfig
	textModel  string
	imageModel string
	index      string
	logger     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithModels sets the text and image embedding model ids.
func WithModels(text, image string) Option {
	return func(e *Engine) {
		e.textModel = text
		e.imageModel = image
	}
}

// WithIndex sets the index searched when a query names none.
func WithIndex(name string) Option {
	return func(e *Engine) { e.index = name }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a search engine with the given dependencies. A nil
// reranker skips the rerank pass and keeps the store scores.
func NewEngine(st store.Store, gateway embedding.Gateway, reranker rerank.Reranker, cfg *config.SearchConfig, opts ...Option) *Engine {
	if cfg == nil {
		defaults := &config.Config{}
		config.ApplyDefaults(defaults)
		cfg = &defaults.Search
	}
	e := &Engine{
		store:    st,
		gateway:  gateway,
		reranker: reranker,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Search runs query and returns ranked shot results.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := ProcessQuery(query); err != nil {
		return nil, err
	}
	index := query.Index
	if index == "" {
		index = e.index
	}
	if index == "" {
		return nil, apperr.NewConfigError("index.shots", "no index given")
	}

	var (
		results []*models.SearchResult
		err     error
	)
	switch query.Kind {
	case models.QueryImage:
		results, err = e.searchImage(ctx, index, query.Query)
	default:
		results, err = e.searchText(ctx, index, query.Query)
	}
	if err != nil {
		return nil, err
	}

	response := &models.SearchResponse{
		Kind:      query.Kind,
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(startTime).Milliseconds(),
	}
	if query.Kind == models.QueryText {
		response.Query = query.Query
	}
	e.logger.Debug("search",
		zap.String("type", string(query.Kind)),
		zap.String("index", index),
		zap.Int("results", len(results)),
		zap.Int64("query_time_ms", response.QueryTime),
	)
	return response, nil
}

// TextQuery builds the hybrid store query for an embedded text query.
func (e *Engine) TextQuery(vec []float32, phrases []string) *store.HybridQuery {
	return &store.HybridQuery{
		Vectors: []store.VectorClause{
			{Field: models.FieldDescVector, Vector: vec, Boost: e.config.DescBoost, Space: store.SpaceCosine},
			{Field: models.FieldTranscriptVector, Vector: vec, Boost: e.config.TranscriptBoost, Space: store.SpaceCosine},
		},
		Phrases:            phrases,
		PhraseFields:       models.PhraseFields,
		Size:               e.config.MaxResults,
		Source:             models.ResultFields,
		MinimumShouldMatch: 1,
	}
}

func (e *Engine) searchText(ctx context.Context, index, text string) ([]*models.SearchResult, error) {
	if e.textModel == "" {
		return nil, apperr.NewConfigError("embedding.text_model", "text embedding model is required")
	}
	vec, err := e.gateway.EmbedText(ctx, e.textModel, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	resp, err := e.store.Search(ctx, index, e.TextQuery(vec, ExtractPhrases(text)))
	if err != nil {
		return nil, fmt.Errorf("store search: %w", err)
	}

	candidates := make([]*models.SearchResult, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		if hit.Score < e.config.RelevanceThreshold {
			continue
		}
		r, err := decodeHit(hit)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, r)
	}
	if len(candidates) > e.config.MaxRerank {
		candidates = candidates[:e.config.MaxRerank]
	}
	if len(candidates) == 0 || e.reranker == nil {
		return candidates, nil
	}
	return e.rerank(ctx, text, candidates)
}

// rerank replaces the store scores with rerank scores, keeping the reranker's
// order and dropping results below the rerank threshold.
func (e *Engine) rerank(ctx context.Context, text string, candidates []*models.SearchResult) ([]*models.SearchResult, error) {
	docs := make([]map[string]any, len(candidates))
	for i, c := range candidates {
		docs[i] = map[string]any{
			models.FieldShotDescription: c.Description,
			models.FieldPublicFigures:   c.PublicFigures,
			models.FieldPrivateFigures:  c.PrivateFigures,
			models.FieldShotTranscript:  c.Transcript,
		}
	}
	ranked, err := e.reranker.Rerank(ctx, text, docs, len(docs))
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	out := make([]*models.SearchResult, 0, len(ranked))
	for _, r := range ranked {
		if r.RelevanceScore < e.config.RerankThreshold {
			continue
		}
		if r.Index < 0 || r.Index >= len(candidates) {
			return nil, apperr.NewProviderError("rerank", "index", fmt.Errorf("index %d out of range", r.Index))
		}
		result := *candidates[r.Index]
		result.Score = r.RelevanceScore
		out = append(out, &result)
	}
	return out, nil
}

func (e *Engine) searchImage(ctx context.Context, index, payload string) ([]*models.SearchResult, error) {
	if e.imageModel == "" {
		return nil, apperr.NewConfigError("embedding.image_model", "image embedding model is required")
	}
	image, err := DecodeImage(payload)
	if err != nil {
		return nil, err
	}
	vec, err := e.gateway.EmbedImage(ctx, e.imageModel, image)
	if err != nil {
		return nil, fmt.Errorf("embed image: %w", err)
	}
	resp, err := e.store.Search(ctx, index, &store.KNNQuery{
		Field:  models.FieldImageVector,
		Vector: vec,
		K:      e.config.KNNK,
		Size:   e.config.KNNK,
		Source: models.ResultFields,
	})
	if err != nil {
		return nil, fmt.Errorf("store search: %w", err)
	}
	results := make([]*models.SearchResult, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		r, err := decodeHit(hit)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func decodeHit(hit store.Hit) (*models.SearchResult, error) {
	var r models.SearchResult
	if len(hit.Source) > 0 {
		if err := json.Unmarshal(hit.Source, &r); err != nil {
			return nil, apperr.NewProviderError("store", "_source", err)
		}
	}
	if r.ShotID == "" {
		r.ShotID = hit.ID
	}
	r.Score = hit.Score
	return &r, nil
}
