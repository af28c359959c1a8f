package record

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/internal/entities"
	"github.com/hyperjump/shotsearch/internal/models"
)

type memSource struct {
	mu    sync.Mutex
	reads []int
}

func (s *memSource) Frame(ctx context.Context, jobID string, index int) (image.Image, error) {
	s.mu.Lock()
	s.reads = append(s.reads, index)
	s.mu.Unlock()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(0, 0, color.RGBA{R: uint8(index), A: 255})
	return img, nil
}

type fakeGateway struct {
	mu     sync.Mutex
	texts  []string
	images int
	failOn string
	dims   int
}

func (g *fakeGateway) EmbedText(ctx context.Context, modelID, text string) ([]float32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failOn != "" && text == g.failOn {
		return nil, apperr.NewProviderError("test", "embedding", nil)
	}
	g.texts = append(g.texts, text)
	v := make([]float32, g.dims)
	v[0] = float32(len(text))
	return v, nil
}

func (g *fakeGateway) EmbedImage(ctx context.Context, modelID string, image []byte) ([]float32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.images++
	v := make([]float32, g.dims)
	v[0] = -1
	return v, nil
}

type fakeDescriber struct{ calls int }

func (d *fakeDescriber) Describe(ctx context.Context, png []byte) (string, error) {
	d.calls++
	return "A person at a desk.", nil
}

type fakeRecognizer struct{ calls int }

func (r *fakeRecognizer) RecognizeNames(ctx context.Context, png []byte) (string, error) {
	r.calls++
	return "Alex Kim", nil
}

type fakeDetector struct{}

func (fakeDetector) DetectEntities(ctx context.Context, text string) ([]entities.Entity, error) {
	return []entities.Entity{{Text: "Sam Lee", Type: "PERSON"}, {Text: "Paris", Type: "LOCATION"}}, nil
}

func input() ShotInput {
	return ShotInput{
		JobID:     "job-1",
		VideoName: "news.mp4",
		Segment:   models.ShotSegment{StartFrame: 0, EndFrame: 10, StartTimeMs: 1000, EndTimeMs: 4000},
		Frames:    []int{0, 5, 9, 0},
		Sentences: []models.Sentence{
			{StartMs: 0, EndMs: 900, Text: "Before."},
			{StartMs: 800, EndMs: 2000, Text: "Hello there."},
			{StartMs: 2000, EndMs: 5000, Text: "How are you?"},
			{StartMs: 4100, EndMs: 6000, Text: "After."},
		},
	}
}

func TestBuilder_Build(t *testing.T) {
	src := &memSource{}
	gw := &fakeGateway{dims: 4}
	desc := &fakeDescriber{}
	shots := t.TempDir()
	b := NewBuilder(src, gw, "text-model", "image-model",
		WithDescriber(desc), WithDimensions(4, 4), WithShotsDir(shots))

	in := input()
	in.Entities = map[int]models.FrameEntities{
		0: {PublicFigures: "Jane Doe"},
		5: {PublicFigures: "Jane Doe", PrivateFigures: "John Smith"},
	}
	rec, err := b.Build(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ShotID != "1000-4000" || rec.JobID != "job-1" {
		t.Errorf("identity = %s/%s", rec.JobID, rec.ShotID)
	}
	if rec.TranscriptText != "Hello there. How are you?" {
		t.Errorf("transcript = %q", rec.TranscriptText)
	}
	if rec.Description != "A person at a desk." || desc.calls != 1 {
		t.Errorf("description = %q after %d calls", rec.Description, desc.calls)
	}
	if rec.PublicFigures != "Jane Doe" || rec.PrivateFigures != "John Smith" {
		t.Errorf("figures = %q / %q", rec.PublicFigures, rec.PrivateFigures)
	}
	if rec.DescVector[0] != float32(len(rec.Description)) || rec.TranscriptVector[0] != float32(len(rec.TranscriptText)) || rec.ImageVector[0] != -1 {
		t.Errorf("vectors assigned to wrong fields: %v %v %v", rec.DescVector, rec.TranscriptVector, rec.ImageVector)
	}
	if _, err := os.Stat(filepath.Join(shots, "job-1", "1000-4000.png")); err != nil {
		t.Errorf("composite not saved: %v", err)
	}
}

func TestBuilder_GivenDescriptionSkipsDescriber(t *testing.T) {
	desc := &fakeDescriber{}
	b := NewBuilder(&memSource{}, &fakeGateway{dims: 2}, "t", "i", WithDescriber(desc))
	in := input()
	in.Description = "Given."
	rec, err := b.Build(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Description != "Given." || desc.calls != 0 {
		t.Errorf("description = %q, describer calls %d", rec.Description, desc.calls)
	}
}

func TestBuilder_RecognizerAndDetector(t *testing.T) {
	rec := &fakeRecognizer{}
	b := NewBuilder(&memSource{}, &fakeGateway{dims: 2}, "t", "i",
		WithRecognizer(rec), WithDetector(fakeDetector{}))
	in := input()
	in.Entities = map[int]models.FrameEntities{9: {PrivateFigures: "Known Person"}}
	got, err := b.Build(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	// frame 0 appears twice but is recognized once
	if rec.calls != 2 {
		t.Errorf("recognizer calls = %d, want 2", rec.calls)
	}
	if got.PrivateFigures != "Alex Kim, Known Person, Sam Lee" {
		t.Errorf("private figures = %q", got.PrivateFigures)
	}
}

func TestBuilder_ProviderFailureAborts(t *testing.T) {
	in := input()
	gw := &fakeGateway{dims: 2, failOn: "Hello there. How are you?"}
	b := NewBuilder(&memSource{}, gw, "t", "i")
	rec, err := b.Build(context.Background(), in)
	if rec != nil {
		t.Error("no partial record on failure")
	}
	if !apperr.IsProvider(err) {
		t.Errorf("expected ProviderError, got %v", err)
	}
}

func TestBuilder_DimensionMismatch(t *testing.T) {
	b := NewBuilder(&memSource{}, &fakeGateway{dims: 3}, "t", "i", WithDimensions(4, 4))
	_, err := b.Build(context.Background(), input())
	if err == nil || !strings.Contains(err.Error(), "dimensions") {
		t.Errorf("expected dimension error, got %v", err)
	}
}

func TestBuilder_MissingConfiguration(t *testing.T) {
	tests := []struct {
		name string
		b    *Builder
	}{
		{"no frames", NewBuilder(nil, &fakeGateway{dims: 2}, "t", "i")},
		{"no text model", NewBuilder(&memSource{}, &fakeGateway{dims: 2}, "", "i")},
		{"no image model", NewBuilder(&memSource{}, &fakeGateway{dims: 2}, "t", "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build(context.Background(), input())
			var ce *apperr.ConfigError
			if !errors.As(err, &ce) {
				t.Errorf("expected ConfigError, got %v", err)
			}
		})
	}
}

func TestJoinDistinct(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"blank and padded", []string{"", "Jane Doe", " Jane Doe ", "John", ""}, "Jane Doe, John"},
		{"frame order kept", []string{"Sam Lee", "Alex Kim", "Sam Lee"}, "Sam Lee, Alex Kim"},
		{"repeated frame", []string{"Jane Doe", "Jane Doe"}, "Jane Doe"},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := joinDistinct(tt.values); got != tt.want {
				t.Errorf("joinDistinct(%q) = %q, want %q", tt.values, got, tt.want)
			}
		})
	}
}
