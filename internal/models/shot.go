package models

import (
	"fmt"
	"strings"
)

// DetectedSegment is a raw shot segment as reported by the shot detector.
type DetectedSegment struct {
	StartFrameNumber     int   `json:"StartFrameNumber"`
	EndFrameNumber       int   `json:"EndFrameNumber"`
	StartTimestampMillis int64 `json:"StartTimestampMillis"`
	EndTimestampMillis   int64 `json:"EndTimestampMillis"`
}

// ShotSegment is a detected shot with times relative to the first segment.
type ShotSegment struct {
	StartFrame  int   `json:"startFrame"`
	EndFrame    int   `json:"endFrame"`
	StartTimeMs int64 `json:"startTimeMs"`
	EndTimeMs   int64 `json:"endTimeMs"`
}

// ID returns the shot identifier for the segment's time window.
func (s ShotSegment) ID() string {
	return ShotID(s.StartTimeMs, s.EndTimeMs)
}

// FrameEntities holds recognized names for a single frame.
type FrameEntities struct {
	PublicFigures  string `json:"publicFigures,omitempty"`
	PrivateFigures string `json:"privateFigures,omitempty"`
}

// ShotRecord is the indexed unit: one shot with its text fields and vectors.
type ShotRecord struct {
	JobID            string    `json:"jobId"`
	VideoName        string    `json:"videoName"`
	ShotID           string    `json:"shotId"`
	StartTimeMs      int64     `json:"startTimeMs"`
	EndTimeMs        int64     `json:"endTimeMs"`
	Frames           []int     `json:"frames"`
	Description      string    `json:"description"`
	PublicFigures    string    `json:"publicFigures"`
	PrivateFigures   string    `json:"privateFigures"`
	TranscriptText   string    `json:"transcriptText"`
	DescVector       []float32 `json:"-"`
	TranscriptVector []float32 `json:"-"`
	ImageVector      []float32 `json:"-"`
}

// ShotID derives the record key from the shot window. The pair is used rather
// than the difference of the two times, which collides for equal-length shots.
func ShotID(startMs, endMs int64) string {
	return fmt.Sprintf("%d-%d", startMs, endMs)
}

// Validate checks required fields and that every vector has textDims or imageDims entries.
// A dimension of zero skips the length check for that vector kind.
func (r *ShotRecord) Validate(textDims, imageDims int) error {
	var missing []string
	if r.JobID == "" {
		missing = append(missing, "jobId")
	}
	if r.VideoName == "" {
		missing = append(missing, "videoName")
	}
	if r.ShotID == "" {
		missing = append(missing, "shotId")
	}
	if len(missing) > 0 {
		return fmt.Errorf("shot record missing %s", strings.Join(missing, ", "))
	}
	if r.EndTimeMs < r.StartTimeMs {
		return fmt.Errorf("shot %s ends before it starts", r.ShotID)
	}
	checks := []struct {
		name string
		vec  []float32
		dims int
	}{
		{"descVector", r.DescVector, textDims},
		{"transcriptVector", r.TranscriptVector, textDims},
		{"imageVector", r.ImageVector, imageDims},
	}
	for _, c := range checks {
		if len(c.vec) == 0 {
			return fmt.Errorf("shot %s: %s is empty", r.ShotID, c.name)
		}
		if c.dims > 0 && len(c.vec) != c.dims {
			return fmt.Errorf("shot %s: %s has %d dimensions, expected %d", r.ShotID, c.name, len(c.vec), c.dims)
		}
	}
	return nil
}
