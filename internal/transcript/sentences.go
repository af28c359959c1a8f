package transcript

import (
	"strings"

	"github.com/hyperjump/shotsearch/internal/models"
)

// Segment parses raw caption text and merges it into sentences.
// Empty input yields an empty slice.
func Segment(raw string) ([]models.Sentence, error) {
	captions, err := ParseSRT(raw)
	if err != nil {
		return nil, err
	}
	return Merge(captions), nil
}

// Merge joins consecutive captions into sentences. A sentence closes when a
// caption's text ends with '.', '?' or '!', and the last caption always closes
// whatever is open.
func Merge(captions []models.Caption) []models.Sentence {
	groups := group(captions)
	sentences := make([]models.Sentence, 0, len(groups))
	for _, g := range groups {
		texts := make([]string, 0, len(g))
		for _, c := range g {
			if c.Text != "" {
				texts = append(texts, c.Text)
			}
		}
		sentences = append(sentences, models.Sentence{
			StartMs: g[0].StartMs,
			EndMs:   g[len(g)-1].EndMs,
			Text:    strings.TrimSpace(strings.Join(texts, " ")),
		})
	}
	return sentences
}

// group partitions captions into the runs that form each sentence.
func group(captions []models.Caption) [][]models.Caption {
	var groups [][]models.Caption
	start := 0
	for i, c := range captions {
		if endsSentence(c.Text) || i == len(captions)-1 {
			groups = append(groups, captions[start:i+1])
			start = i + 1
		}
	}
	return groups
}

func endsSentence(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasSuffix(t, ".") || strings.HasSuffix(t, "?") || strings.HasSuffix(t, "!")
}

// Overlapping returns the sentences whose span intersects [startMs, endMs],
// in their original order.
func Overlapping(sentences []models.Sentence, startMs, endMs int64) []models.Sentence {
	var out []models.Sentence
	for _, s := range sentences {
		if s.StartMs <= endMs && s.EndMs >= startMs {
			out = append(out, s)
		}
	}
	return out
}

// Text joins sentence texts with single spaces.
func Text(sentences []models.Sentence) string {
	parts := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, " ")
}
