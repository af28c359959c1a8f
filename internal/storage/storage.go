// Package storage persists ingest jobs, processed transcripts and the raw
// documents behind the local shot store.
package storage

import (
	"context"
	"encoding/json"

	"github.com/hyperjump/shotsearch/internal/models"
)

// Catalog defines job and transcript persistence operations.
type Catalog interface {
	// Job operations
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, offset, limit int) ([]*models.Job, error)
	CountJobs(ctx context.Context) (int64, error)

	// Processed transcript, one list of sentences per job
	SaveTranscript(ctx context.Context, jobID string, sentences []models.Sentence) error
	GetTranscript(ctx context.Context, jobID string) ([]models.Sentence, error)

	Close() error
}

// DocumentRow is one stored search document with its vectors.
type DocumentRow struct {
	Index   string
	ID      string
	Source  json.RawMessage
	Vectors map[string][]float32
}

// DocumentStore persists search documents for rebuilding in-process indices.
type DocumentStore interface {
	PutDocument(ctx context.Context, row *DocumentRow) error
	// ScanDocuments calls fn for every document of index in insertion order.
	ScanDocuments(ctx context.Context, index string, fn func(*DocumentRow) error) error
	CountDocuments(ctx context.Context, index string) (int64, error)
	Close() error
}
