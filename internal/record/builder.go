// Package record assembles indexable shot records: composite image, names,
// description, overlapping transcript text and the three embedding vectors.
package record

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/internal/composite"
	"github.com/hyperjump/shotsearch/internal/embedding"
	"github.com/hyperjump/shotsearch/internal/entities"
	"github.com/hyperjump/shotsearch/internal/frames"
	"github.com/hyperjump/shotsearch/internal/models"
	"github.com/hyperjump/shotsearch/internal/transcript"
)

// Describer writes a description of a composite shot image.
type Describer interface {
	Describe(ctx context.Context, composite []byte) (string, error)
}

// NameRecognizer returns the person names visible in one frame.
type NameRecognizer interface {
	RecognizeNames(ctx context.Context, png []byte) (string, error)
}

// ShotInput is everything known about one shot before enrichment.
type ShotInput struct {
	JobID     string
	VideoName string
	Segment   models.ShotSegment
	// Frames are the sampled frame indices in order.
	Frames []int
	// Entities carries names already recognized per frame index.
	Entities map[int]models.FrameEntities
	// Description skips the describer when set.
	Description string
	// Sentences is the job's full sentence list; overlapping ones are selected.
	Sentences []models.Sentence
}

// Builder turns ShotInputs into validated ShotRecords.
type Builder struct {
	frames     frames.Source
	gateway    embedding.Gateway
	describer  Describer
	recognizer NameRecognizer
	detector   entities.Detector
	textModel  string
	imageModel string
	textDims   int
	imageDims  int
	shotsDir   string
	logger     *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithDescriber sets the composite describer used when an input has no description.
func WithDescriber(d Describer) Option {
	return func(b *Builder) { b.describer = d }
}

// WithRecognizer sets the per-frame name recognizer used for frames without known names.
func WithRecognizer(r NameRecognizer) Option {
	return func(b *Builder) { b.recognizer = r }
}

// WithDetector appends PERSON entities found in the shot transcript to the private figures.
func WithDetector(d entities.Detector) Option {
	return func(b *Builder) { b.detector = d }
}

// WithDimensions sets the expected text and image vector lengths; 0 skips the check.
func WithDimensions(text, image int) Option {
	return func(b *Builder) {
		b.textDims = text
		b.imageDims = image
	}
}

// WithShotsDir writes every composite to {dir}/{jobId}/{shotId}.png.
func WithShotsDir(dir string) Option {
	return func(b *Builder) { b.shotsDir = dir }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a Builder reading frames from src and embedding with gateway.
func NewBuilder(src frames.Source, gateway embedding.Gateway, textModel, imageModel string, opts ...Option) *Builder {
	b := &Builder{
		frames:     src,
		gateway:    gateway,
		textModel:  textModel,
		imageModel: imageModel,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build enriches in into a ShotRecord. Any provider failure aborts the build.
func (b *Builder) Build(ctx context.Context, in ShotInput) (*models.ShotRecord, error) {
	if b.frames == nil {
		return nil, apperr.NewConfigError("ingest.frames_dir", "no frame source configured")
	}
	if b.textModel == "" {
		return nil, apperr.NewConfigError("embedding.text_model", "text embedding model is required")
	}
	if b.imageModel == "" {
		return nil, apperr.NewConfigError("embedding.image_model", "image embedding model is required")
	}
	rec := &models.ShotRecord{
		JobID:       in.JobID,
		VideoName:   in.VideoName,
		ShotID:      in.Segment.ID(),
		StartTimeMs: in.Segment.StartTimeMs,
		EndTimeMs:   in.Segment.EndTimeMs,
		Frames:      in.Frames,
	}

	images, err := frames.Load(ctx, b.frames, in.JobID, in.Frames)
	if err != nil {
		return nil, err
	}
	png, err := composite.Build(images)
	if err != nil {
		return nil, fmt.Errorf("shot %s composite: %w", rec.ShotID, err)
	}
	if b.shotsDir != "" {
		if _, err := frames.SaveComposite(b.shotsDir, in.JobID, rec.ShotID, png); err != nil {
			return nil, err
		}
	}

	public, private, err := b.names(ctx, in, images)
	if err != nil {
		return nil, err
	}
	rec.PublicFigures = public
	rec.PrivateFigures = private

	rec.Description = in.Description
	if rec.Description == "" && b.describer != nil {
		desc, err := b.describer.Describe(ctx, png)
		if err != nil {
			return nil, fmt.Errorf("shot %s describe: %w", rec.ShotID, err)
		}
		rec.Description = desc
	}

	rec.TranscriptText = transcript.Text(transcript.Overlapping(in.Sentences, rec.StartTimeMs, rec.EndTimeMs))

	if b.detector != nil && rec.TranscriptText != "" {
		found, err := b.detector.DetectEntities(ctx, rec.TranscriptText)
		if err != nil {
			return nil, fmt.Errorf("shot %s entities: %w", rec.ShotID, err)
		}
		rec.PrivateFigures = joinDistinct(append([]string{rec.PrivateFigures}, entities.People(found)...))
	}

	if err := b.embed(ctx, rec, png); err != nil {
		return nil, err
	}
	if err := rec.Validate(b.textDims, b.imageDims); err != nil {
		return nil, fmt.Errorf("invalid shot record: %w", err)
	}
	b.logger.Debug("built shot record",
		zap.String("job_id", rec.JobID),
		zap.String("shot_id", rec.ShotID),
		zap.Int("frames", len(rec.Frames)),
	)
	return rec, nil
}

// names collects public and private figures per frame in frame order. Frames
// without known names are sent to the recognizer when one is configured.
func (b *Builder) names(ctx context.Context, in ShotInput, images []image.Image) (string, string, error) {
	var public, private []string
	recognized := make(map[int]string)
	for i, f := range in.Frames {
		if e, ok := in.Entities[f]; ok {
			public = append(public, e.PublicFigures)
			private = append(private, e.PrivateFigures)
			continue
		}
		if b.recognizer == nil {
			continue
		}
		names, ok := recognized[f]
		if !ok {
			data, err := composite.EncodePNG(images[i])
			if err != nil {
				return "", "", err
			}
			names, err = b.recognizer.RecognizeNames(ctx, data)
			if err != nil {
				return "", "", fmt.Errorf("frame %d names: %w", f, err)
			}
			recognized[f] = names
		}
		private = append(private, names)
	}
	// Sampling can land on the same frame twice, so repeated per-frame
	// values are dropped rather than concatenated again.
	return joinDistinct(public), joinDistinct(private), nil
}

// joinDistinct joins the non-empty values with ", ", keeping first occurrences.
func joinDistinct(values []string) string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return strings.Join(out, ", ")
}

// embed requests the three vectors concurrently; each result keeps its field.
func (b *Builder) embed(ctx context.Context, rec *models.ShotRecord, png []byte) error {
	var (
		wg      sync.WaitGroup
		errChan = make(chan error, 3)
	)
	text := func(dst *[]float32, input, what string) {
		defer wg.Done()
		vec, err := b.gateway.EmbedText(ctx, b.textModel, input)
		if err != nil {
			errChan <- fmt.Errorf("shot %s %s embedding: %w", rec.ShotID, what, err)
			return
		}
		*dst = vec
	}

	wg.Add(3)
	go text(&rec.DescVector, rec.Description, "description")
	go text(&rec.TranscriptVector, rec.TranscriptText, "transcript")
	go func() {
		defer wg.Done()
		vec, err := b.gateway.EmbedImage(ctx, b.imageModel, png)
		if err != nil {
			errChan <- fmt.Errorf("shot %s image embedding: %w", rec.ShotID, err)
			return
		}
		rec.ImageVector = vec
	}()
	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return err
		}
	}
	return nil
}
