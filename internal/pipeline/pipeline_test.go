package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/internal/models"
	"github.com/hyperjump/shotsearch/internal/record"
	"github.com/hyperjump/shotsearch/internal/storage"
)

const srt = `1
00:00:01,000 --> 00:00:02,000
Good evening.

2
00:00:02,500 --> 00:00:04,000
Our top story
tonight.
`

type fakeBuilder struct {
	mu     sync.Mutex
	inputs []record.ShotInput
	failOn string
	delay  time.Duration
}

func (b *fakeBuilder) Build(ctx context.Context, in record.ShotInput) (*models.ShotRecord, error) {
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	b.mu.Lock()
	b.inputs = append(b.inputs, in)
	b.mu.Unlock()
	if in.Segment.ID() == b.failOn {
		return nil, apperr.NewProviderError("test", "embedding", nil)
	}
	return &models.ShotRecord{
		JobID:       in.JobID,
		VideoName:   in.VideoName,
		ShotID:      in.Segment.ID(),
		StartTimeMs: in.Segment.StartTimeMs,
		EndTimeMs:   in.Segment.EndTimeMs,
		Frames:      in.Frames,
		Description: in.Description,
	}, nil
}

type fakeWriter struct {
	mu        sync.Mutex
	shots     []string
	sentences []models.Sentence
}

func (w *fakeWriter) IndexShot(ctx context.Context, rec *models.ShotRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shots = append(w.shots, rec.ShotID)
	return nil
}

func (w *fakeWriter) IndexTranscript(ctx context.Context, jobID, videoName string, sentences []models.Sentence) (int, error) {
	w.sentences = sentences
	return len(sentences), nil
}

func newCatalog(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func manifest() *models.Manifest {
	return &models.Manifest{
		VideoName:  "news.mp4",
		Transcript: srt,
		Segments: []models.DetectedSegment{
			{StartFrameNumber: 10, EndFrameNumber: 40, StartTimestampMillis: 500, EndTimestampMillis: 1500},
			{StartFrameNumber: 40, EndFrameNumber: 100, StartTimestampMillis: 1500, EndTimestampMillis: 3500},
			{StartFrameNumber: 100, EndFrameNumber: 130, StartTimestampMillis: 3500, EndTimestampMillis: 4500},
		},
		Descriptions: map[string]string{"1000-3000": "An anchor at a desk."},
	}
}

func TestPipeline_Ingest(t *testing.T) {
	catalog := newCatalog(t)
	b := &fakeBuilder{delay: time.Millisecond}
	w := &fakeWriter{}
	p := New(catalog, b, w, WithWorkers(3))
	ctx := context.Background()

	job, err := p.Ingest(ctx, manifest())
	if err != nil {
		t.Fatal(err)
	}
	if job.ID == "" || job.Status != models.JobDone {
		t.Fatalf("job = %+v", job)
	}
	if job.ShotCount != 3 || job.SentenceCount != 2 {
		t.Errorf("counts = %d shots, %d sentences", job.ShotCount, job.SentenceCount)
	}

	want := []string{"0-1000", "1000-3000", "3000-4000"}
	if len(w.shots) != len(want) {
		t.Fatalf("indexed %v", w.shots)
	}
	for i := range want {
		if w.shots[i] != want[i] {
			t.Errorf("shot %d = %s, want %s (order must follow the detector)", i, w.shots[i], want[i])
		}
	}

	for _, in := range b.inputs {
		if len(in.Frames) != 4 {
			t.Errorf("shot %s sampled %v, want 3 frames plus the start", in.Segment.ID(), in.Frames)
		}
		if in.Segment.ID() == "1000-3000" && in.Description != "An anchor at a desk." {
			t.Errorf("description not passed through: %q", in.Description)
		}
		if len(in.Sentences) != 2 {
			t.Errorf("sentences not passed through: %v", in.Sentences)
		}
	}

	stored, err := catalog.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.JobDone || stored.ShotCount != 3 {
		t.Errorf("stored job = %+v", stored)
	}
	sentences, err := catalog.GetTranscript(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sentences) != 2 || sentences[1].Text != "Our top story tonight." {
		t.Errorf("stored transcript = %+v", sentences)
	}
}

func TestPipeline_FailureMarksJob(t *testing.T) {
	catalog := newCatalog(t)
	w := &fakeWriter{}
	p := New(catalog, &fakeBuilder{failOn: "1000-3000"}, w, WithWorkers(1))
	ctx := context.Background()

	job, err := p.Ingest(ctx, manifest())
	if !apperr.IsProvider(err) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if job.Status != models.JobFailed || job.Error == "" {
		t.Errorf("job = %+v", job)
	}
	if len(w.shots) != 0 {
		t.Errorf("no shots should be indexed after a failed build, got %v", w.shots)
	}
	stored, err := catalog.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.JobFailed {
		t.Errorf("stored status = %s", stored.Status)
	}
}

func TestPipeline_TranscriptPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "captions.srt")
	if err := os.WriteFile(path, []byte(srt), 0600); err != nil {
		t.Fatal(err)
	}
	m := manifest()
	m.Transcript = ""
	m.TranscriptPath = path
	m.Segments = nil
	w := &fakeWriter{}
	job, err := New(newCatalog(t), &fakeBuilder{}, w).Ingest(context.Background(), m)
	if err != nil {
		t.Fatal(err)
	}
	if job.SentenceCount != 2 || job.ShotCount != 0 {
		t.Errorf("job = %+v", job)
	}

	m = manifest()
	m.Transcript = ""
	m.TranscriptPath = filepath.Join(dir, "missing.srt")
	if _, err := New(newCatalog(t), &fakeBuilder{}, w).Ingest(context.Background(), m); err == nil {
		t.Error("expected error for missing transcript file")
	}
}

func TestPipeline_SubmitValidation(t *testing.T) {
	p := New(newCatalog(t), &fakeBuilder{}, &fakeWriter{})
	tests := []struct {
		name string
		m    *models.Manifest
	}{
		{"nil", nil},
		{"no video", &models.Manifest{Transcript: srt}},
		{"both transcripts", &models.Manifest{VideoName: "v", Transcript: srt, TranscriptPath: "x.srt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Submit(context.Background(), tt.m); !apperr.IsParse(err) {
				t.Errorf("expected ParseError, got %v", err)
			}
		})
	}
}

func TestPipeline_BadCaptionsFail(t *testing.T) {
	m := manifest()
	m.Transcript = "1\n00:00:01 --> 00:00:02\nHello.\n"
	job, err := New(newCatalog(t), &fakeBuilder{}, &fakeWriter{}).Ingest(context.Background(), m)
	if !apperr.IsParse(err) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if job.Status != models.JobFailed {
		t.Errorf("status = %s", job.Status)
	}
}

func TestPipeline_StartAndWait(t *testing.T) {
	catalog := newCatalog(t)
	p := New(catalog, &fakeBuilder{}, &fakeWriter{})
	ctx, cancel := context.WithCancel(context.Background())
	job, err := p.Start(ctx, manifest())
	cancel()
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobPending {
		t.Errorf("status = %s", job.Status)
	}
	p.Wait()
	stored, err := catalog.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.JobDone {
		t.Errorf("detached run should finish, got %s (%s)", stored.Status, stored.Error)
	}
}

func TestPipeline_RunUnknownJob(t *testing.T) {
	p := New(newCatalog(t), &fakeBuilder{}, &fakeWriter{})
	_, err := p.Run(context.Background(), &models.Manifest{JobID: "nope", VideoName: "v"})
	var nf *apperr.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}
