package models

// SearchResult is a shot hit. Field names follow the shot index source fields.
type SearchResult struct {
	JobID          string  `json:"jobId"`
	VideoName      string  `json:"video_name"`
	ShotID         string  `json:"shot_id"`
	StartTimeMs    int64   `json:"shot_startTime"`
	EndTimeMs      int64   `json:"shot_endTime"`
	Description    string  `json:"shot_description"`
	PublicFigures  string  `json:"shot_publicFigures"`
	PrivateFigures string  `json:"shot_privateFigures"`
	Transcript     string  `json:"shot_transcript"`
	Score          float64 `json:"score"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Kind      QueryKind       `json:"type"`
	Query     string          `json:"query,omitempty"`
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
}
