// Package pipeline runs ingest jobs: transcript segmentation and persistence,
// sentence indexing, shot sampling and per-shot record building and indexing.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/internal/models"
	"github.com/hyperjump/shotsearch/internal/record"
	"github.com/hyperjump/shotsearch/internal/shot"
	"github.com/hyperjump/shotsearch/internal/storage"
	"github.com/hyperjump/shotsearch/internal/transcript"
)

const defaultWorkers = 4

// ShotBuilder enriches a shot into a record.
type ShotBuilder interface {
	Build(ctx context.Context, in record.ShotInput) (*models.ShotRecord, error)
}

// Writer indexes records and transcript sentences.
type Writer interface {
	IndexShot(ctx context.Context, rec *models.ShotRecord) error
	IndexTranscript(ctx context.Context, jobID, videoName string, sentences []models.Sentence) (int, error)
}

// Pipeline executes manifests and tracks job state in the catalog.
type Pipeline struct {
	catalog     storage.Catalog
	builder     ShotBuilder
	writer      Writer
	sampleCount int
	workers     int
	logger      *zap.Logger

	wg sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSampleCount sets the frames sampled per shot when a manifest does not say.
func WithSampleCount(n int) Option {
	return func(p *Pipeline) { p.sampleCount = n }
}

// WithWorkers bounds the number of shots built concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline.
func New(catalog storage.Catalog, builder ShotBuilder, writer Writer, opts ...Option) *Pipeline {
	p := &Pipeline{
		catalog:     catalog,
		builder:     builder,
		writer:      writer,
		sampleCount: shot.DefaultSampleCount,
		workers:     defaultWorkers,
		logger:      zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Submit validates m, assigns a job id when it has none and records the job as pending.
func (p *Pipeline) Submit(ctx context.Context, m *models.Manifest) (*models.Job, error) {
	if m == nil {
		return nil, apperr.NewParseError("", "manifest is required", nil)
	}
	if m.VideoName == "" {
		return nil, apperr.NewParseError(m.JobID, "manifest videoName is required", nil)
	}
	if m.Transcript != "" && m.TranscriptPath != "" {
		return nil, apperr.NewParseError(m.JobID, "manifest sets both transcript and transcriptPath", nil)
	}
	if m.JobID == "" {
		m.JobID = uuid.New().String()
	}
	now := time.Now().UTC()
	job := &models.Job{
		ID:        m.JobID,
		VideoName: m.VideoName,
		Status:    models.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.catalog.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	p.logger.Info("job submitted", zap.String("job_id", job.ID), zap.String("video", job.VideoName))
	return job, nil
}

// Start submits m and runs it in the background. The run is detached from
// ctx cancellation; use Wait to drain running jobs.
func (p *Pipeline) Start(ctx context.Context, m *models.Manifest) (*models.Job, error) {
	job, err := p.Submit(ctx, m)
	if err != nil {
		return nil, err
	}
	runCtx := context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := p.Run(runCtx, m); err != nil {
			p.logger.Error("job failed", zap.String("job_id", m.JobID), zap.Error(err))
		}
	}()
	return job, nil
}

// Wait blocks until every job started with Start has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Ingest submits and runs m synchronously.
func (p *Pipeline) Ingest(ctx context.Context, m *models.Manifest) (*models.Job, error) {
	if _, err := p.Submit(ctx, m); err != nil {
		return nil, err
	}
	return p.Run(ctx, m)
}

// Run executes a submitted manifest and returns the final job. The job ends
// failed with the error recorded when any step fails.
func (p *Pipeline) Run(ctx context.Context, m *models.Manifest) (*models.Job, error) {
	job, err := p.catalog.GetJob(ctx, m.JobID)
	if err != nil {
		return nil, err
	}
	job.Status = models.JobRunning
	if err := p.save(ctx, job); err != nil {
		return nil, err
	}
	start := time.Now()

	runErr := p.run(ctx, m, job)

	// Record the outcome even if ctx was cancelled mid-run.
	saveCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		job.Status = models.JobFailed
		job.Error = runErr.Error()
		if err := p.save(saveCtx, job); err != nil {
			p.logger.Error("failed to record job failure", zap.String("job_id", job.ID), zap.Error(err))
		}
		return job, runErr
	}
	job.Status = models.JobDone
	if err := p.save(saveCtx, job); err != nil {
		return job, err
	}
	p.logger.Info("job done",
		zap.String("job_id", job.ID),
		zap.Int("shots", job.ShotCount),
		zap.Int("sentences", job.SentenceCount),
		zap.Duration("took", time.Since(start)),
	)
	return job, nil
}

func (p *Pipeline) save(ctx context.Context, job *models.Job) error {
	job.UpdatedAt = time.Now().UTC()
	if err := p.catalog.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, m *models.Manifest, job *models.Job) error {
	raw, err := readTranscript(m)
	if err != nil {
		return err
	}
	sentences, err := transcript.Segment(raw)
	if err != nil {
		return err
	}
	if err := p.catalog.SaveTranscript(ctx, job.ID, sentences); err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}
	n, err := p.writer.IndexTranscript(ctx, job.ID, job.VideoName, sentences)
	if err != nil {
		return err
	}
	job.SentenceCount = n

	inputs, err := p.inputs(m, sentences)
	if err != nil {
		return err
	}
	records, err := p.build(ctx, inputs)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := p.writer.IndexShot(ctx, rec); err != nil {
			return err
		}
		job.ShotCount++
	}
	return nil
}

func readTranscript(m *models.Manifest) (string, error) {
	if m.TranscriptPath == "" {
		return m.Transcript, nil
	}
	data, err := os.ReadFile(m.TranscriptPath)
	if err != nil {
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}
	return string(data), nil
}

// inputs normalizes the detected segments and samples frames for each shot.
func (p *Pipeline) inputs(m *models.Manifest, sentences []models.Sentence) ([]record.ShotInput, error) {
	n := m.SampleCount
	if n == 0 {
		n = p.sampleCount
	}
	shots := shot.Normalize(m.Segments)
	inputs := make([]record.ShotInput, 0, len(shots))
	for _, seg := range shots {
		frames, err := shot.SampleFrames(seg, n)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, record.ShotInput{
			JobID:       m.JobID,
			VideoName:   m.VideoName,
			Segment:     seg,
			Frames:      frames,
			Entities:    m.Frames,
			Description: m.Descriptions[seg.ID()],
			Sentences:   sentences,
		})
	}
	return inputs, nil
}

// build runs the builder over inputs with at most p.workers in flight. The
// returned records are in input order. The first failure cancels the rest.
func (p *Pipeline) build(ctx context.Context, inputs []record.ShotInput) ([]*models.ShotRecord, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	records := make([]*models.ShotRecord, len(inputs))
	next := make(chan int)
	errChan := make(chan error, len(inputs))

	var wg sync.WaitGroup
	workers := min(p.workers, len(inputs))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				rec, err := p.builder.Build(ctx, inputs[i])
				if err != nil {
					errChan <- err
					cancel()
					continue
				}
				records[i] = rec
			}
		}()
	}

feed:
	for i := range inputs {
		select {
		case next <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(next)
	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
