// Package indexer writes shot records and transcript sentences into the search store.
package indexer

import (
	"context"
	"fmt"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/internal/embedding"
	"github.com/hyperjump/shotsearch/internal/models"
	"github.com/hyperjump/shotsearch/internal/store"
	"go.uber.org/zap"
)

// Writer upserts shot documents into the shots index and sentence documents
// into the audio index.
type Writer struct {
	store      store.Store
	gateway    embedding.Gateway
	textModel  string
	shotsIndex string
	audioIndex string
	logger     *zap.Logger // optional; when set, logs debug events
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) WriterOption {
	return func(w *Writer) { w.logger = l }
}

// WithAudioIndex enables sentence indexing. gateway and textModel embed each sentence.
func WithAudioIndex(index string, gateway embedding.Gateway, textModel string) WriterOption {
	return func(w *Writer) {
		w.audioIndex = index
		w.gateway = gateway
		w.textModel = textModel
	}
}

// NewWriter creates a writer for the given shots index.
func NewWriter(st store.Store, shotsIndex string, opts ...WriterOption) *Writer {
	w := &Writer{store: st, shotsIndex: shotsIndex}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ShotDocument maps a record to its stored form, keyed by the shot id.
func ShotDocument(rec *models.ShotRecord) store.Document {
	frames := rec.Frames
	if frames == nil {
		frames = []int{}
	}
	return store.Document{
		ID: rec.ShotID,
		Fields: map[string]any{
			models.FieldJobID:           rec.JobID,
			models.FieldVideoName:       rec.VideoName,
			models.FieldShotID:          rec.ShotID,
			models.FieldShotStart:       rec.StartTimeMs,
			models.FieldShotEnd:         rec.EndTimeMs,
			models.FieldShotDescription: rec.Description,
			models.FieldPublicFigures:   rec.PublicFigures,
			models.FieldPrivateFigures:  rec.PrivateFigures,
			models.FieldShotTranscript:  rec.TranscriptText,
			models.FieldShotFrames:      frames,
		},
		Vectors: map[string][]float32{
			models.FieldDescVector:       rec.DescVector,
			models.FieldTranscriptVector: rec.TranscriptVector,
			models.FieldImageVector:      rec.ImageVector,
		},
	}
}

// SentenceDocument maps a sentence and its embedding to the audio index form.
func SentenceDocument(jobID, videoName string, s models.Sentence, vec []float32) store.Document {
	id := models.ShotID(s.StartMs, s.EndMs)
	return store.Document{
		ID: id,
		Fields: map[string]any{
			models.FieldJobID:           jobID,
			models.FieldVideoName:       videoName,
			models.FieldTranscriptID:    id,
			models.FieldTranscriptStart: s.StartMs,
			models.FieldTranscriptEnd:   s.EndMs,
			models.FieldTranscript:      s.Text,
		},
		Vectors: map[string][]float32{
			models.FieldTranscriptVec: vec,
		},
	}
}

// IndexShot upserts one shot record. A record with the same shot id is replaced.
func (w *Writer) IndexShot(ctx context.Context, rec *models.ShotRecord) error {
	if w.shotsIndex == "" {
		return apperr.NewConfigError("index.shots", "shots index name is required")
	}
	if rec == nil {
		return fmt.Errorf("nil shot record")
	}
	if err := w.store.Index(ctx, w.shotsIndex, ShotDocument(rec)); err != nil {
		return fmt.Errorf("failed to index shot %s: %w", rec.ShotID, err)
	}
	if w.logger != nil {
		w.logger.Debug("indexer shot indexed",
			zap.String("job_id", rec.JobID),
			zap.String("shot_id", rec.ShotID),
		)
	}
	return nil
}

// IndexTranscript embeds and upserts every non-empty sentence into the audio
// index. It is a no-op when no audio index is configured. Returns the number
// of sentences indexed.
func (w *Writer) IndexTranscript(ctx context.Context, jobID, videoName string, sentences []models.Sentence) (int, error) {
	if w.audioIndex == "" {
		return 0, nil
	}
	if w.gateway == nil || w.textModel == "" {
		return 0, apperr.NewConfigError("embedding.text_model", "text embedding model is required for the audio index")
	}
	n := 0
	for _, s := range sentences {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if s.Text == "" {
			continue
		}
		vec, err := w.gateway.EmbedText(ctx, w.textModel, s.Text)
		if err != nil {
			return n, fmt.Errorf("failed to embed sentence %d-%d: %w", s.StartMs, s.EndMs, err)
		}
		if err := w.store.Index(ctx, w.audioIndex, SentenceDocument(jobID, videoName, s, vec)); err != nil {
			return n, fmt.Errorf("failed to index sentence %d-%d: %w", s.StartMs, s.EndMs, err)
		}
		n++
	}
	if w.logger != nil {
		w.logger.Debug("indexer transcript indexed",
			zap.String("job_id", jobID),
			zap.Int("sentences", n),
		)
	}
	return n, nil
}
