// Package local implements store.Store in process: bleve for phrase filters,
// in-memory vector indices for similarity and SQLite for durability.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/shotsearch/internal/keyword"
	"github.com/hyperjump/shotsearch/internal/store"
	"github.com/hyperjump/shotsearch/internal/storage"
	"github.com/hyperjump/shotsearch/internal/vector"
)

// Store is an embedded store.Store.
type Store struct {
	db        storage.DocumentStore
	bleveDir  string
	textNames []string
	logger    *zap.Logger

	mu      sync.Mutex
	indices map[string]*index
}

type index struct {
	mu      sync.RWMutex
	order   []string
	sources map[string]map[string]any
	vectors map[string]*vector.MemoryIndex
	phrases keyword.PhraseIndex
}

// Option configures a Store.
type Option func(*Store)

// WithBleveDir stores one bleve index per store index under dir. Without it
// phrase indices live in memory and are rebuilt from the database on open.
func WithBleveDir(dir string) Option {
	return func(s *Store) { s.bleveDir = dir }
}

// WithTextFields sets the fields given an explicit text mapping in the phrase index.
func WithTextFields(fields ...string) Option {
	return func(s *Store) { s.textNames = fields }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns a Store persisting documents to db.
func New(db storage.DocumentStore, opts ...Option) *Store {
	s := &Store{
		db:      db,
		indices: make(map[string]*index),
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// open returns the in-memory state of name, loading it from the database on first use.
func (s *Store) open(ctx context.Context, name string) (*index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.indices[name]; ok {
		return idx, nil
	}

	path := ""
	if s.bleveDir != "" {
		path = filepath.Join(s.bleveDir, name)
	}
	phrases, err := keyword.NewBleveIndex(path, s.textNames)
	if err != nil {
		return nil, fmt.Errorf("open phrase index %s: %w", name, err)
	}
	idx := &index{
		sources: make(map[string]map[string]any),
		vectors: make(map[string]*vector.MemoryIndex),
		phrases: phrases,
	}

	indexed, err := phrases.DocCount()
	if err != nil {
		_ = phrases.Close()
		return nil, err
	}
	stored, err := s.db.CountDocuments(ctx, name)
	if err != nil {
		_ = phrases.Close()
		return nil, err
	}
	reindex := indexed != uint64(stored)

	err = s.db.ScanDocuments(ctx, name, func(row *storage.DocumentRow) error {
		var fields map[string]any
		if err := json.Unmarshal(row.Source, &fields); err != nil {
			return fmt.Errorf("decode document %s: %w", row.ID, err)
		}
		return idx.put(ctx, store.Document{ID: row.ID, Fields: fields, Vectors: row.Vectors}, reindex)
	})
	if err != nil {
		_ = phrases.Close()
		return nil, err
	}
	s.logger.Debug("opened local index",
		zap.String("index", name),
		zap.Int("documents", len(idx.order)),
		zap.Bool("reindexed_phrases", reindex),
	)
	s.indices[name] = idx
	return idx, nil
}

// put applies doc to the in-memory indices; withPhrases also writes the phrase index.
func (idx *index) put(ctx context.Context, doc store.Document, withPhrases bool) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for field, vec := range doc.Vectors {
		vi, ok := idx.vectors[field]
		if !ok {
			vi, _ = vector.NewMemoryIndex(0)
			idx.vectors[field] = vi
		}
		if err := vi.Upsert(ctx, []string{doc.ID}, [][]float32{vec}); err != nil {
			return fmt.Errorf("vector field %s: %w", field, err)
		}
	}
	// a replaced document loses vectors it no longer carries
	for field, vi := range idx.vectors {
		if _, ok := doc.Vectors[field]; !ok {
			_ = vi.Remove(ctx, []string{doc.ID})
		}
	}

	if withPhrases {
		if err := idx.phrases.Index(ctx, doc.ID, textFields(doc.Fields)); err != nil {
			return fmt.Errorf("phrase index: %w", err)
		}
	}
	if _, ok := idx.sources[doc.ID]; !ok {
		idx.order = append(idx.order, doc.ID)
	}
	idx.sources[doc.ID] = doc.Fields
	return nil
}

// textFields returns the string-valued fields of a document for the phrase index.
func textFields(fields map[string]any) map[string]string {
	out := make(map[string]string)
	for k, v := range fields {
		switch tv := v.(type) {
		case string:
			out[k] = tv
		case []string:
			out[k] = strings.Join(tv, " ")
		}
	}
	return out
}

// Index persists doc and updates the in-memory indices.
func (s *Store) Index(ctx context.Context, name string, doc store.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	idx, err := s.open(ctx, name)
	if err != nil {
		return err
	}
	source, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	if err := s.db.PutDocument(ctx, &storage.DocumentRow{Index: name, ID: doc.ID, Source: source, Vectors: doc.Vectors}); err != nil {
		return fmt.Errorf("persist document %s: %w", doc.ID, err)
	}
	// round-trip through JSON so fresh and reloaded documents compare alike
	var fields map[string]any
	_ = json.Unmarshal(source, &fields)
	doc.Fields = fields
	return idx.put(ctx, doc, true)
}

// Search runs q against index name.
func (s *Store) Search(ctx context.Context, name string, q store.Query) (*store.Response, error) {
	idx, err := s.open(ctx, name)
	if err != nil {
		return nil, err
	}
	switch tq := q.(type) {
	case *store.HybridQuery:
		return idx.hybrid(ctx, tq)
	case *store.KNNQuery:
		return idx.knn(ctx, tq)
	default:
		return nil, fmt.Errorf("unsupported query type %T", q)
	}
}

func (idx *index) hybrid(ctx context.Context, q *store.HybridQuery) (*store.Response, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var allow map[string]struct{}
	if len(q.Phrases) > 0 {
		var err error
		allow, err = idx.phrases.MatchPhrases(ctx, q.Phrases, q.PhraseFields)
		if err != nil {
			return nil, err
		}
	}
	minMatch := q.MinimumShouldMatch
	if minMatch < 1 {
		minMatch = 1
	}

	scored := make([]store.Hit, 0)
	for _, id := range idx.order {
		if allow != nil {
			if _, ok := allow[id]; !ok {
				continue
			}
		}
		matched := 0
		score := 0.0
		for _, c := range q.Vectors {
			vi, ok := idx.vectors[c.Field]
			if !ok {
				continue
			}
			vec, ok := vi.Get(id)
			if !ok {
				continue
			}
			matched++
			score += c.Boost * vector.CosineSimilarity(c.Vector, vec)
		}
		if matched < minMatch {
			continue
		}
		scored = append(scored, store.Hit{ID: id, Score: score})
	}
	return idx.respond(scored, q.Size, q.Source)
}

func (idx *index) knn(ctx context.Context, q *store.KNNQuery) (*store.Response, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	vi, ok := idx.vectors[q.Field]
	if !ok {
		return &store.Response{Hits: []store.Hit{}}, nil
	}
	results, err := vi.Search(ctx, q.Vector, q.K, nil)
	if err != nil {
		return nil, err
	}
	hits := make([]store.Hit, len(results))
	for i, r := range results {
		hits[i] = store.Hit{ID: r.ID, Score: r.Score}
	}
	return idx.respond(hits, q.Size, q.Source)
}

// respond orders hits by score, keeping insertion order on ties, and attaches sources.
func (idx *index) respond(hits []store.Hit, size int, source []string) (*store.Response, error) {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	total := len(hits)
	if size >= 0 && size < len(hits) {
		hits = hits[:size]
	}
	for i := range hits {
		raw, err := json.Marshal(store.FilterSource(idx.sources[hits[i].ID], source))
		if err != nil {
			return nil, err
		}
		hits[i].Source = raw
	}
	return &store.Response{Hits: hits, Total: total}, nil
}

// Close closes every open phrase index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for name, idx := range s.indices {
		if err := idx.phrases.Close(); err != nil && first == nil {
			first = fmt.Errorf("close phrase index %s: %w", name, err)
		}
	}
	s.indices = make(map[string]*index)
	return first
}
