package search

import (
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/internal/models"
)

var phrasePattern = regexp.MustCompile(`"(.*?)"`)

// ProcessQuery validates and applies defaults to the search query.
func ProcessQuery(query *models.SearchQuery) error {
	if err := query.Validate(); err != nil {
		return apperr.NewParseError(query.Query, "invalid query", err)
	}
	return nil
}

// ExtractPhrases returns the double-quoted substrings of query in order.
// Blank quotes are ignored.
func ExtractPhrases(query string) []string {
	matches := phrasePattern.FindAllStringSubmatch(query, -1)
	phrases := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.TrimSpace(m[1]) == "" {
			continue
		}
		phrases = append(phrases, m[1])
	}
	return phrases
}

// DecodeImage decodes a base64 image payload, with or without padding.
func DecodeImage(payload string) ([]byte, error) {
	payload = strings.TrimSpace(models.StripDataURI(payload))
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, apperr.NewParseError(truncate(payload, 32), "image payload is not valid base64", err)
	}
	if len(data) == 0 {
		return nil, apperr.NewParseError("", "image payload is empty", nil)
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
