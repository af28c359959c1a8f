// Package frames loads extracted video frames and stores composite images on disk.
package frames

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/hyperjump/shotsearch/internal/apperr"
)

// Source returns the decoded image for a frame index of a job.
type Source interface {
	Frame(ctx context.Context, jobID string, index int) (image.Image, error)
}

// DirSource reads frames from {root}/{jobId}/{index}.png, falling back to .jpg.
type DirSource struct {
	root   string
	logger *zap.Logger
}

// DirOption configures a DirSource.
type DirOption func(*DirSource)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) DirOption {
	return func(d *DirSource) { d.logger = l }
}

// NewDirSource creates a frame source rooted at dir.
func NewDirSource(dir string, opts ...DirOption) *DirSource {
	d := &DirSource{root: dir}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var extensions = []string{".png", ".jpg", ".jpeg"}

// Frame decodes the frame image.
func (d *DirSource) Frame(ctx context.Context, jobID string, index int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := filepath.Join(d.root, jobID, strconv.Itoa(index))
	for _, ext := range extensions {
		f, err := os.Open(base + ext)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open frame %d: %w", index, err)
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode frame %d: %w", index, err)
		}
		if d.logger != nil {
			d.logger.Debug("loaded frame", zap.String("job", jobID), zap.Int("frame", index))
		}
		return img, nil
	}
	return nil, apperr.NewNotFoundError("frame", fmt.Sprintf("%s/%d", jobID, index))
}

// Load decodes frames in order. Duplicated indices are decoded once.
func Load(ctx context.Context, src Source, jobID string, indices []int) ([]image.Image, error) {
	cache := make(map[int]image.Image, len(indices))
	out := make([]image.Image, len(indices))
	for i, idx := range indices {
		if img, ok := cache[idx]; ok {
			out[i] = img
			continue
		}
		img, err := src.Frame(ctx, jobID, idx)
		if err != nil {
			return nil, err
		}
		cache[idx] = img
		out[i] = img
	}
	return out, nil
}

// SaveComposite writes PNG bytes to {dir}/{jobId}/{shotId}.png and returns the path.
// An empty dir disables saving.
func SaveComposite(dir, jobID, shotID string, data []byte) (string, error) {
	if dir == "" {
		return "", nil
	}
	jobDir := filepath.Join(dir, jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create composite directory: %w", err)
	}
	path := filepath.Join(jobDir, shotID+".png")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write composite: %w", err)
	}
	return path, nil
}
