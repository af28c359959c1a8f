package models

import "time"

// JobStatus is the ingest job lifecycle state.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job records one video ingest.
type Job struct {
	ID            string    `json:"jobId"`
	VideoName     string    `json:"videoName"`
	Status        JobStatus `json:"status"`
	ShotCount     int       `json:"shotCount"`
	SentenceCount int       `json:"sentenceCount"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Manifest describes the inputs of one ingest job: the caption track, the raw
// shot detection output and optional per-frame names and per-shot descriptions.
type Manifest struct {
	JobID          string                `json:"jobId"`
	VideoName      string                `json:"videoName"`
	Transcript     string                `json:"transcript,omitempty"`
	TranscriptPath string                `json:"transcriptPath,omitempty"`
	Segments       []DetectedSegment     `json:"segments"`
	SampleCount    int                   `json:"sampleCount,omitempty"`
	Frames         map[int]FrameEntities `json:"frames,omitempty"`
	Descriptions   map[string]string     `json:"descriptions,omitempty"`
}
