// Package cli provides output formatting for the shotsearch command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/shotsearch/internal/models"
	"github.com/hyperjump/shotsearch/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	if response.Query != "" {
		fmt.Fprintf(w, "\nFound %d shots for %q in %dms\n\n", response.Total, response.Query, response.QueryTime)
	} else {
		fmt.Fprintf(w, "\nFound %d shots in %dms\n\n", response.Total, response.QueryTime)
	}
	for i, result := range response.Results {
		writeOneResult(w, i+1, result)
	}
	return nil
}

func writeOneResult(w io.Writer, rank int, r *models.SearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "#%d | Score: %.4f | %s [%s - %s]\n",
		rank, r.Score, r.VideoName, FormatMillis(r.StartTimeMs), FormatMillis(r.EndTimeMs))
	fmt.Fprintf(w, "Job: %s  Shot: %s\n", r.JobID, r.ShotID)
	if names := joinNonEmpty(r.PublicFigures, r.PrivateFigures); names != "" {
		fmt.Fprintf(w, "People: %s\n", names)
	}
	if r.Description != "" {
		fmt.Fprintf(w, "\n%s\n", utils.Truncate(r.Description, 200))
	}
	if r.Transcript != "" {
		fmt.Fprintf(w, "\n  \"%s\"\n", TruncateWords(r.Transcript, 30))
	}
	fmt.Fprintln(w)
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// WriteJob writes one job.
func WriteJob(w io.Writer, job *models.Job, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, job)
	}
	fmt.Fprintf(w, "Job:        %s\n", job.ID)
	fmt.Fprintf(w, "Video:      %s\n", job.VideoName)
	fmt.Fprintf(w, "Status:     %s\n", job.Status)
	fmt.Fprintf(w, "Shots:      %d\n", job.ShotCount)
	fmt.Fprintf(w, "Sentences:  %d\n", job.SentenceCount)
	if job.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", job.Error)
	}
	return nil
}

// WriteSentences writes a segmented transcript, one sentence per line.
func WriteSentences(w io.Writer, sentences []models.Sentence, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, sentences)
	}
	for _, s := range sentences {
		fmt.Fprintf(w, "[%s - %s] %s\n", FormatMillis(s.StartMs), FormatMillis(s.EndMs), s.Text)
	}
	return nil
}

// FormatMillis renders milliseconds as HH:MM:SS.mmm.
func FormatMillis(ms int64) string {
	if ms < 0 {
		return "-" + FormatMillis(-ms)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
