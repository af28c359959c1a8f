package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/internal/models"
	"github.com/hyperjump/shotsearch/pkg/utils"
)

// SQLiteStorage implements Catalog and DocumentStore using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" keeps everything in memory.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		video_name TEXT NOT NULL,
		status TEXT NOT NULL,
		shot_count INTEGER NOT NULL DEFAULT 0,
		sentence_count INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);

	CREATE TABLE IF NOT EXISTS transcripts (
		job_id TEXT PRIMARY KEY,
		sentences TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS documents (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		index_name TEXT NOT NULL,
		id TEXT NOT NULL,
		source TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(index_name, id)
	);

	CREATE TABLE IF NOT EXISTS document_vectors (
		index_name TEXT NOT NULL,
		doc_id TEXT NOT NULL,
		field TEXT NOT NULL,
		vector BLOB NOT NULL,
		PRIMARY KEY (index_name, doc_id, field)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveJob inserts or replaces a job. CreatedAt is kept from the first save.
func (s *SQLiteStorage) SaveJob(ctx context.Context, job *models.Job) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, video_name, status, shot_count, sentence_count, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   video_name = excluded.video_name,
		   status = excluded.status,
		   shot_count = excluded.shot_count,
		   sentence_count = excluded.sentence_count,
		   error = excluded.error,
		   updated_at = excluded.updated_at`,
		job.ID, job.VideoName, string(job.Status), job.ShotCount, job.SentenceCount, job.Error, job.CreatedAt, job.UpdatedAt,
	)
	return err
}

// GetJob returns a job by ID.
func (s *SQLiteStorage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, video_name, status, shot_count, sentence_count, error, created_at, updated_at
		 FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NewNotFoundError("job", id)
	}
	return job, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*models.Job, error) {
	var job models.Job
	var status string
	var errText sql.NullString
	if err := row.Scan(&job.ID, &job.VideoName, &status, &job.ShotCount, &job.SentenceCount, &errText, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	job.Error = errText.String
	return &job, nil
}

// ListJobs returns jobs newest first with offset and limit.
func (s *SQLiteStorage) ListJobs(ctx context.Context, offset, limit int) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, video_name, status, shot_count, sentence_count, error, created_at, updated_at
		 FROM jobs ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]*models.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CountJobs returns the total number of jobs.
func (s *SQLiteStorage) CountJobs(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&count)
	return count, err
}

// SaveTranscript stores the sentences of a job, replacing any previous list.
func (s *SQLiteStorage) SaveTranscript(ctx context.Context, jobID string, sentences []models.Sentence) error {
	if sentences == nil {
		sentences = []models.Sentence{}
	}
	data, err := json.Marshal(sentences)
	if err != nil {
		return fmt.Errorf("failed to marshal sentences: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transcripts (job_id, sentences, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET sentences = excluded.sentences, updated_at = excluded.updated_at`,
		jobID, string(data), time.Now(),
	)
	return err
}

// GetTranscript returns the stored sentences of a job.
func (s *SQLiteStorage) GetTranscript(ctx context.Context, jobID string) ([]models.Sentence, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT sentences FROM transcripts WHERE job_id = ?`, jobID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, apperr.NewNotFoundError("transcript", jobID)
	}
	if err != nil {
		return nil, err
	}
	var sentences []models.Sentence
	if err := json.Unmarshal([]byte(data), &sentences); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sentences: %w", err)
	}
	return sentences, nil
}

// PutDocument upserts a document and replaces all of its vectors in one transaction.
func (s *SQLiteStorage) PutDocument(ctx context.Context, row *DocumentRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (index_name, id, source, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(index_name, id) DO UPDATE SET source = excluded.source, updated_at = excluded.updated_at`,
		row.Index, row.ID, string(row.Source), time.Now(),
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_vectors WHERE index_name = ? AND doc_id = ?`, row.Index, row.ID,
	); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_vectors (index_name, doc_id, field, vector) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for field, vec := range row.Vectors {
		if _, err := stmt.ExecContext(ctx, row.Index, row.ID, field, utils.Float32ToBytes(vec)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ScanDocuments streams the documents of index with their vectors.
func (s *SQLiteStorage) ScanDocuments(ctx context.Context, index string, fn func(*DocumentRow) error) error {
	vectors, err := s.loadVectors(ctx, index)
	if err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source FROM documents WHERE index_name = ? ORDER BY seq`, index)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id, source string
		if err := rows.Scan(&id, &source); err != nil {
			return err
		}
		row := &DocumentRow{Index: index, ID: id, Source: json.RawMessage(source), Vectors: vectors[id]}
		if row.Vectors == nil {
			row.Vectors = map[string][]float32{}
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *SQLiteStorage) loadVectors(ctx context.Context, index string) (map[string]map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, field, vector FROM document_vectors WHERE index_name = ?`, index)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]map[string][]float32)
	for rows.Next() {
		var id, field string
		var blob []byte
		if err := rows.Scan(&id, &field, &blob); err != nil {
			return nil, err
		}
		if out[id] == nil {
			out[id] = make(map[string][]float32)
		}
		out[id][field] = utils.BytesToFloat32(blob)
	}
	return out, rows.Err()
}

// CountDocuments returns the number of documents in index.
func (s *SQLiteStorage) CountDocuments(ctx context.Context, index string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE index_name = ?`, index).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
