package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// BleveIndex implements PhraseIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path with a text mapping for
// each of fields. An empty path keeps the index in memory.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string, fields []string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer lowercases and tokenizes without stemming so quoted
	// names match the words as spoken or captioned.
	textFieldMapping.Analyzer = standard.Name
	for _, f := range fields {
		docMapping.AddFieldMappingsAt(f, textFieldMapping)
	}
	im.AddDocumentMapping("shot", docMapping)
	im.DefaultType = "shot"
	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = standard.Name

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index indexes the text fields of a document by id, replacing any previous version.
func (b *BleveIndex) Index(ctx context.Context, id string, fields map[string]string) error {
	return b.index.Index(id, fields)
}

// MatchPhrases builds a conjunction with one clause per phrase; each clause is
// a disjunction of phrase matches over fields. No phrases yields no ids.
func (b *BleveIndex) MatchPhrases(ctx context.Context, phrases []string, fields []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(phrases) == 0 || len(fields) == 0 {
		return out, nil
	}
	count, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("Bleve doc count failed: %w", err)
	}
	if count == 0 {
		return out, nil
	}

	clauses := make([]blevequery.Query, 0, len(phrases))
	for _, phrase := range phrases {
		perField := make([]blevequery.Query, 0, len(fields))
		for _, f := range fields {
			pq := bleve.NewMatchPhraseQuery(phrase)
			pq.SetField(f)
			perField = append(perField, pq)
		}
		clauses = append(clauses, bleve.NewDisjunctionQuery(perField...))
	}

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(clauses...))
	req.Size = int(count)
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve phrase search failed: %w", err)
	}
	for _, hit := range results.Hits {
		out[hit.ID] = struct{}{}
	}
	return out, nil
}

// Delete removes a document from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}
