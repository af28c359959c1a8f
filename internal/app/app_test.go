package app

import (
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/internal/config"
	"github.com/hyperjump/shotsearch/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			Backend:        "local",
			DatabasePath:   filepath.Join(dir, "db", "shots.db"),
			BleveIndexPath: filepath.Join(dir, "bleve"),
		},
		Embedding: config.EmbeddingConfig{Provider: "mock", Dimensions: 8},
		Ingest: config.IngestConfig{
			FramesDir: filepath.Join(dir, "frames"),
			ShotsDir:  filepath.Join(dir, "shots"),
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func writeFrames(t *testing.T, dir, jobID string, indices ...int) {
	t.Helper()
	jobDir := filepath.Join(dir, jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, i := range indices {
		img := image.NewRGBA(image.Rect(0, 0, 8, 6))
		img.Set(1, 1, color.RGBA{R: uint8(i * 20), G: 10, B: 200, A: 255})
		f, err := os.Create(filepath.Join(jobDir, strconv.Itoa(i)+".png"))
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}
}

const description = "Jane Doe speaks at a podium"

func TestApp_IngestAndSearch(t *testing.T) {
	cfg := testConfig(t)
	writeFrames(t, cfg.Ingest.FramesDir, "job-e2e", 0, 4, 9)
	ctx := context.Background()

	a, err := New(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	m := &models.Manifest{
		JobID:      "job-e2e",
		VideoName:  "briefing.mp4",
		Transcript: "1\n00:00:00,500 --> 00:00:01,800\nGood evening.\n",
		Segments: []models.DetectedSegment{
			{StartFrameNumber: 0, EndFrameNumber: 10, StartTimestampMillis: 0, EndTimestampMillis: 2000},
		},
		Frames:       map[int]models.FrameEntities{0: {PublicFigures: "Jane Doe"}},
		Descriptions: map[string]string{"0-2000": description},
	}
	job, err := a.Pipeline.Ingest(ctx, m)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != models.JobDone || job.ShotCount != 1 || job.SentenceCount != 1 {
		t.Fatalf("job = %+v", job)
	}

	resp, err := a.Engine.Search(ctx, models.NewTextQuery(description))
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("text results = %d", len(resp.Results))
	}
	got := resp.Results[0]
	if got.ShotID != "0-2000" || got.PublicFigures != "Jane Doe" || got.Transcript != "Good evening." || got.Score < 2.99 {
		t.Errorf("result = %+v", got)
	}

	resp, err = a.Engine.Search(ctx, models.NewTextQuery(description+` "weather report"`))
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("unmatched phrase should filter everything, got %d", len(resp.Results))
	}

	composite, err := os.ReadFile(filepath.Join(cfg.Ingest.ShotsDir, "job-e2e", "0-2000.png"))
	if err != nil {
		t.Fatal(err)
	}
	query := "data:image/png;base64," + base64.StdEncoding.EncodeToString(composite)
	resp, err = a.Engine.Search(ctx, models.NewImageQuery(query))
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ShotID != "0-2000" {
		t.Errorf("image results = %+v", resp.Results)
	}

	sentences, err := a.Catalog.GetTranscript(ctx, "job-e2e")
	if err != nil {
		t.Fatal(err)
	}
	if len(sentences) != 1 {
		t.Errorf("transcript = %+v", sentences)
	}
}

func TestApp_MissingFrameFailsJob(t *testing.T) {
	cfg := testConfig(t)
	writeFrames(t, cfg.Ingest.FramesDir, "job-x", 0, 4)
	ctx := context.Background()
	a, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	m := &models.Manifest{
		JobID:     "job-x",
		VideoName: "v.mp4",
		Segments:  []models.DetectedSegment{{StartFrameNumber: 0, EndFrameNumber: 10, EndTimestampMillis: 2000}},
	}
	job, err := a.Pipeline.Ingest(ctx, m)
	if !apperr.IsNotFound(err) {
		t.Fatalf("expected NotFoundError for frame 9, got %v", err)
	}
	if job.Status != models.JobFailed {
		t.Errorf("status = %s", job.Status)
	}
}

func TestApp_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"store backend", func(c *config.Config) { c.Storage.Backend = "elastic" }},
		{"opensearch endpoint", func(c *config.Config) { c.Storage.Backend = "opensearch" }},
		{"catalog backend", func(c *config.Config) { c.Catalog.Backend = "mongo" }},
		{"embedding provider", func(c *config.Config) { c.Embedding.Provider = "openai" }},
		{"rerank endpoint", func(c *config.Config) { c.Rerank.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			if _, err := New(context.Background(), cfg, nil); !apperr.IsConfig(err) {
				t.Errorf("expected ConfigError, got %v", err)
			}
		})
	}
}
