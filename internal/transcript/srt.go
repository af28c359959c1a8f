// Package transcript parses SRT caption tracks and merges captions into sentences.
package transcript

import (
	"strconv"
	"strings"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/internal/models"
)

const arrow = "-->"

// ParseTimestamp converts "HH:MM:SS,mmm" to milliseconds.
func ParseTimestamp(ts string) (int64, error) {
	s := strings.TrimSpace(ts)
	hms, msPart, ok := strings.Cut(s, ",")
	if !ok {
		return 0, apperr.NewParseError(ts, "timestamp missing millisecond separator", nil)
	}
	parts := strings.Split(hms, ":")
	if len(parts) != 3 {
		return 0, apperr.NewParseError(ts, "timestamp must be HH:MM:SS,mmm", nil)
	}
	fields := [4]string{parts[0], parts[1], parts[2], msPart}
	var vals [4]int64
	for i, f := range fields {
		if f == "" || !isDigitOnly(f) {
			return 0, apperr.NewParseError(ts, "timestamp component is not a number", nil)
		}
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return 0, apperr.NewParseError(ts, "timestamp component out of range", err)
		}
		vals[i] = n
	}
	if vals[1] > 59 || vals[2] > 59 || len(msPart) > 3 {
		return 0, apperr.NewParseError(ts, "timestamp component out of range", nil)
	}
	return vals[0]*3600000 + vals[1]*60000 + vals[2]*1000 + vals[3], nil
}

// ParseSRT parses caption blocks. A block is a sequence number line, a
// "start --> end" line and the text lines that follow until the next block.
// Text lines are joined with single spaces.
func ParseSRT(raw string) ([]models.Caption, error) {
	text := strings.TrimPrefix(raw, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if strings.TrimSpace(text) == "" {
		return []models.Caption{}, nil
	}

	lines := strings.Split(text, "\n")
	captions := []models.Caption{}
	var current *models.Caption
	var body []string

	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.TrimSpace(strings.Join(body, " "))
		captions = append(captions, *current)
		current = nil
		body = body[:0]
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if isBlockStart(lines, i) {
			flush()
			start, end, err := parseTimeRange(strings.TrimSpace(lines[i+1]))
			if err != nil {
				return nil, err
			}
			current = &models.Caption{StartMs: start, EndMs: end}
			i++
			continue
		}
		if current == nil {
			// Lines before the first block header are ignored.
			continue
		}
		if line != "" {
			body = append(body, line)
		}
	}
	flush()
	return captions, nil
}

// isBlockStart reports whether lines[i] is a sequence number followed by a time range line.
func isBlockStart(lines []string, i int) bool {
	if i+1 >= len(lines) {
		return false
	}
	return isDigitOnly(strings.TrimSpace(lines[i])) && strings.Contains(lines[i+1], arrow)
}

func parseTimeRange(line string) (int64, int64, error) {
	left, right, ok := strings.Cut(line, arrow)
	if !ok {
		return 0, 0, apperr.NewParseError(line, "missing time range arrow", nil)
	}
	start, err := ParseTimestamp(left)
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseTimestamp(right)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func isDigitOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
