package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gocql/gocql"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/internal/models"
)

// CassandraCatalog implements Catalog on a Cassandra keyspace.
type CassandraCatalog struct {
	session *gocql.Session
}

// NewCassandraCatalog connects to hosts, uses keyspace and creates the catalog tables.
func NewCassandraCatalog(hosts []string, keyspace string) (*CassandraCatalog, error) {
	if len(hosts) == 0 {
		return nil, apperr.NewConfigError("catalog.cassandra.hosts", "at least one host is required")
	}
	if keyspace == "" {
		return nil, apperr.NewConfigError("catalog.cassandra.keyspace", "keyspace is required")
	}
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Cassandra: %w", err)
	}
	c := &CassandraCatalog{session: session}
	if err := c.initSchema(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return c, nil
}

func (c *CassandraCatalog) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id text PRIMARY KEY,
			video_name text,
			status text,
			shot_count int,
			sentence_count int,
			error text,
			created_at timestamp,
			updated_at timestamp
		)`,
		`CREATE TABLE IF NOT EXISTS transcripts (
			job_id text PRIMARY KEY,
			sentences text,
			updated_at timestamp
		)`,
	}
	for _, s := range stmts {
		if err := c.session.Query(s).Exec(); err != nil {
			return err
		}
	}
	return nil
}

// SaveJob writes a job row. Cassandra inserts are upserts.
func (c *CassandraCatalog) SaveJob(ctx context.Context, job *models.Job) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	query := `
		INSERT INTO jobs (id, video_name, status, shot_count, sentence_count, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	return c.session.Query(query,
		job.ID, job.VideoName, string(job.Status), job.ShotCount, job.SentenceCount, job.Error, job.CreatedAt, job.UpdatedAt,
	).WithContext(ctx).Exec()
}

// GetJob returns a job by ID.
func (c *CassandraCatalog) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	var status string
	err := c.session.Query(
		`SELECT id, video_name, status, shot_count, sentence_count, error, created_at, updated_at FROM jobs WHERE id = ?`, id,
	).WithContext(ctx).Scan(&job.ID, &job.VideoName, &status, &job.ShotCount, &job.SentenceCount, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, apperr.NewNotFoundError("job", id)
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching job: %w", err)
	}
	job.Status = models.JobStatus(status)
	return &job, nil
}

// ListJobs returns jobs newest first. The table is scanned in full since the
// partition key carries no ordering.
func (c *CassandraCatalog) ListJobs(ctx context.Context, offset, limit int) ([]*models.Job, error) {
	iter := c.session.Query(
		`SELECT id, video_name, status, shot_count, sentence_count, error, created_at, updated_at FROM jobs`,
	).WithContext(ctx).Iter()

	jobs := make([]*models.Job, 0)
	var job models.Job
	var status string
	for iter.Scan(&job.ID, &job.VideoName, &status, &job.ShotCount, &job.SentenceCount, &job.Error, &job.CreatedAt, &job.UpdatedAt) {
		j := job
		j.Status = models.JobStatus(status)
		jobs = append(jobs, &j)
		job = models.Job{}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("error listing jobs: %w", err)
	}
	return pageJobs(jobs, offset, limit), nil
}

// pageJobs sorts jobs newest first and applies offset and limit.
func pageJobs(jobs []*models.Job, offset, limit int) []*models.Job {
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(jobs) {
		return []*models.Job{}
	}
	jobs = jobs[offset:]
	if limit >= 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs
}

// CountJobs returns the total number of jobs.
func (c *CassandraCatalog) CountJobs(ctx context.Context) (int64, error) {
	var count int64
	if err := c.session.Query(`SELECT COUNT(*) FROM jobs`).WithContext(ctx).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// SaveTranscript stores the sentences of a job as a JSON document.
func (c *CassandraCatalog) SaveTranscript(ctx context.Context, jobID string, sentences []models.Sentence) error {
	if sentences == nil {
		sentences = []models.Sentence{}
	}
	data, err := json.Marshal(sentences)
	if err != nil {
		return fmt.Errorf("failed to marshal sentences: %w", err)
	}
	return c.session.Query(
		`INSERT INTO transcripts (job_id, sentences, updated_at) VALUES (?, ?, ?)`,
		jobID, string(data), time.Now(),
	).WithContext(ctx).Exec()
}

// GetTranscript returns the stored sentences of a job.
func (c *CassandraCatalog) GetTranscript(ctx context.Context, jobID string) ([]models.Sentence, error) {
	var data string
	err := c.session.Query(`SELECT sentences FROM transcripts WHERE job_id = ?`, jobID).WithContext(ctx).Scan(&data)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, apperr.NewNotFoundError("transcript", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching transcript: %w", err)
	}
	var sentences []models.Sentence
	if err := json.Unmarshal([]byte(data), &sentences); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sentences: %w", err)
	}
	return sentences, nil
}

// Close closes the session.
func (c *CassandraCatalog) Close() error {
	c.session.Close()
	return nil
}
