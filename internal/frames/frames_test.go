package frames

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/shotsearch/internal/apperr"
)

func writeFrame(t *testing.T, dir, job string, index int, w int) {
	t.Helper()
	jobDir := filepath.Join(dir, job)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, 2))
	img.Set(0, 0, color.White)
	f, err := os.Create(filepath.Join(jobDir, strconv.Itoa(index)+".png"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestDirSource_Frame(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, dir, "job", 3, 4)
	src := NewDirSource(dir, WithLogger(zap.NewNop()))

	img, err := src.Frame(context.Background(), "job", 3)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if img.Bounds().Dx() != 4 {
		t.Errorf("width = %d", img.Bounds().Dx())
	}

	_, err = src.Frame(context.Background(), "job", 5)
	if !apperr.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestLoad_PreservesOrderAndDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, dir, "job", 0, 1)
	writeFrame(t, dir, "job", 5, 2)
	writeFrame(t, dir, "job", 9, 3)
	src := NewDirSource(dir)

	imgs, err := Load(context.Background(), src, "job", []int{0, 5, 9, 0})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	widths := []int{1, 2, 3, 1}
	for i, img := range imgs {
		if img.Bounds().Dx() != widths[i] {
			t.Errorf("image %d width = %d, want %d", i, img.Bounds().Dx(), widths[i])
		}
	}
	if imgs[0] != imgs[3] {
		t.Error("duplicate index should reuse the decoded frame")
	}
}

func TestSaveComposite(t *testing.T) {
	dir := t.TempDir()
	path, err := SaveComposite(dir, "job", "0-1000", []byte("png"))
	if err != nil {
		t.Fatalf("SaveComposite: %v", err)
	}
	if path != filepath.Join(dir, "job", "0-1000.png") {
		t.Errorf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "png" {
		t.Errorf("read back %q, %v", data, err)
	}

	path, err = SaveComposite("", "job", "x", nil)
	if err != nil || path != "" {
		t.Errorf("empty dir should be a no-op, got %q, %v", path, err)
	}
}
