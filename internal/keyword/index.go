// Package keyword provides the phrase index behind the local shot store.
package keyword

import "context"

// PhraseIndex stores text fields per document and answers exact phrase filters.
type PhraseIndex interface {
	Index(ctx context.Context, id string, fields map[string]string) error
	// MatchPhrases returns the ids of documents in which every phrase occurs
	// in at least one of fields.
	MatchPhrases(ctx context.Context, phrases []string, fields []string) (map[string]struct{}, error)
	Delete(ctx context.Context, id string) error
	Close() error
	// DocCount returns the total number of documents in the index.
	DocCount() (uint64, error)
}
