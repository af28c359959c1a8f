package watcher

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
)

type recorder struct {
	mu   sync.Mutex
	seen []*models.Manifest
	ch   chan string
	err  error
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan string, 8)}
}

func (r *recorder) handle(ctx context.Context, path string, m *models.Manifest) error {
	r.mu.Lock()
	r.seen = append(r.seen, m)
	r.mu.Unlock()
	r.ch <- path
	return r.err
}

func (r *recorder) wait(t *testing.T) string {
	t.Helper()
	select {
	case p := <-r.ch:
		return p
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for manifest")
	}
	return ""
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("%s never appeared", path)
}

func TestWatcher_NewManifest(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	w := NewWatcher(dir, rec.handle, WithDebounce(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, "job.json"), `{"jobId":"job-1","videoName":"news.mp4","transcriptPath":"news.srt"}`)

	got := rec.wait(t)
	if filepath.Base(got) != "job.json" {
		t.Errorf("handled %s", got)
	}
	waitFor(t, filepath.Join(dir, processedDir, "job.json"))

	rec.mu.Lock()
	m := rec.seen[0]
	rec.mu.Unlock()
	if m.JobID != "job-1" || m.TranscriptPath != filepath.Join(dir, "news.srt") {
		t.Errorf("manifest = %+v", m)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Error("non-manifest files must be left alone")
	}
}

func TestWatcher_ExistingManifestsAndFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.json"), `{"videoName":"a.mp4"}`)
	writeFile(t, filepath.Join(dir, "b.json"), `{"videoName":"b.mp4"}`)

	rec := newRecorder()
	rec.err = errors.New("ingest failed")
	w := NewWatcher(dir, rec.handle, WithDebounce(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	first, second := rec.wait(t), rec.wait(t)
	if filepath.Base(first) != "a.json" || filepath.Base(second) != "b.json" {
		t.Errorf("order = %s, %s", first, second)
	}
	waitFor(t, filepath.Join(dir, failedDir, "a.json"))
	waitFor(t, filepath.Join(dir, failedDir, "b.json"))
}

func TestWatcher_StartCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "drop")
	w := NewWatcher(dir, newRecorder().handle)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("drop directory not created: %v", err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	writeFile(t, bad, "{")
	if _, err := LoadManifest(bad); !apperr.IsParse(err) {
		t.Errorf("expected ParseError, got %v", err)
	}

	abs := filepath.Join(dir, "abs.json")
	writeFile(t, abs, `{"videoName":"v","transcriptPath":"/data/v.srt","segments":[{"StartFrameNumber":1,"EndFrameNumber":5,"StartTimestampMillis":0,"EndTimestampMillis":200}]}`)
	m, err := LoadManifest(abs)
	if err != nil {
		t.Fatal(err)
	}
	if m.TranscriptPath != "/data/v.srt" || len(m.Segments) != 1 || m.Segments[0].EndFrameNumber != 5 {
		t.Errorf("manifest = %+v", m)
	}
}

func TestIsManifest(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/x/job.json", true},
		{"/x/JOB.JSON", true},
		{"/x/.job.json", false},
		{"/x/job.json.tmp", false},
		{"/x/job.srt", false},
	}
	for _, tt := range tests {
		if got := isManifest(tt.path); got != tt.want {
			t.Errorf("isManifest(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
