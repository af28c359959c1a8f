// Package models defines the value types passed through the indexing and query paths.
package models

// Caption is one parsed subtitle block.
type Caption struct {
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
	Text    string `json:"text"`
}

// Sentence is one or more consecutive captions merged at terminal punctuation.
// StartMs is the first merged caption's start; EndMs is the closing caption's end.
type Sentence struct {
	StartMs int64  `json:"sentence_startTime"`
	EndMs   int64  `json:"sentence_endTime"`
	Text    string `json:"sentence"`
}
