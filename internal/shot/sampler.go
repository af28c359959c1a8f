// Package shot normalizes shot detection output and picks representative frames.
package shot

import (
	"math"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/internal/models"
)

// DefaultSampleCount is the number of evenly spaced frames taken per shot.
const DefaultSampleCount = 3

// SampleFrames returns n frame indices spread across the shot followed by the
// shot's start frame, so the result has n+1 entries and may repeat the start.
// The detector reports an end frame one past the last frame of the shot, so
// sampling stops at endFrame-1.
func SampleFrames(seg models.ShotSegment, n int) ([]int, error) {
	if n < 1 {
		return nil, apperr.NewConfigError("sample_count", "must be at least 1")
	}
	start := seg.StartFrame
	effectiveEnd := seg.EndFrame - 1
	if effectiveEnd < start {
		effectiveEnd = start
	}

	frames := make([]int, 0, n+1)
	if n == 1 {
		return append(frames, start, start), nil
	}
	step := float64(effectiveEnd-start) / float64(n-1)
	for i := 0; i < n; i++ {
		frames = append(frames, int(math.Floor(float64(start)+float64(i)*step)))
	}
	return append(frames, start), nil
}

// Normalize converts detector segments to shots whose times are relative to
// the first segment's start.
func Normalize(detected []models.DetectedSegment) []models.ShotSegment {
	shots := make([]models.ShotSegment, 0, len(detected))
	if len(detected) == 0 {
		return shots
	}
	offset := detected[0].StartTimestampMillis
	for _, d := range detected {
		shots = append(shots, models.ShotSegment{
			StartFrame:  d.StartFrameNumber,
			EndFrame:    d.EndFrameNumber,
			StartTimeMs: d.StartTimestampMillis - offset,
			EndTimeMs:   d.EndTimestampMillis - offset,
		})
	}
	return shots
}
