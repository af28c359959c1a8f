// Package composite lays shot frames side by side into a single contact sheet image.
package composite

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
)

// Border is the horizontal gap in pixels between adjacent frames.
const Border = 5

// Horizontal pastes frames left to right in input order with Border pixels
// between them. Width is the sum of frame widths plus the borders; height is
// the tallest frame. Uncovered pixels are opaque black.
func Horizontal(frames []image.Image) (*image.RGBA, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames to composite")
	}
	width, height := 0, 0
	for i, f := range frames {
		if f == nil {
			return nil, fmt.Errorf("frame %d is nil", i)
		}
		b := f.Bounds()
		width += b.Dx() + Border
		if b.Dy() > height {
			height = b.Dy()
		}
	}
	width -= Border

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	x := 0
	for _, f := range frames {
		b := f.Bounds()
		dst := image.Rect(x, 0, x+b.Dx(), b.Dy())
		draw.Draw(canvas, dst, f, b.Min, draw.Src)
		x += b.Dx() + Border
	}
	return canvas, nil
}

// EncodePNG renders img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Build composites frames and returns the PNG encoding.
func Build(frames []image.Image) ([]byte, error) {
	img, err := Horizontal(frames)
	if err != nil {
		return nil, err
	}
	return EncodePNG(img)
}
