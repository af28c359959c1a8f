package models

import (
	"testing"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name      string
		query     *SearchQuery
		wantErr   bool
		wantKind  QueryKind
		wantQuery string
	}{
		{"empty query", &SearchQuery{Query: ""}, true, "", ""},
		{"blank query", &SearchQuery{Query: "   "}, true, "", ""},
		{"defaults to text", &SearchQuery{Query: "dancing"}, false, QueryText, "dancing"},
		{"data uri selects image", &SearchQuery{Query: "data:image/png;base64,AAAA"}, false, QueryImage, "AAAA"},
		{"explicit image strips prefix", &SearchQuery{Kind: QueryImage, Query: "data:image/jpeg;base64,QUJD"}, false, QueryImage, "QUJD"},
		{"explicit image raw payload", &SearchQuery{Kind: QueryImage, Query: "QUJD"}, false, QueryImage, "QUJD"},
		{"image with empty payload", &SearchQuery{Kind: QueryImage, Query: "data:image/png;base64,"}, true, "", ""},
		{"unknown kind", &SearchQuery{Kind: "audio", Query: "x"}, true, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.query.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", tt.query.Kind, tt.wantKind)
			}
			if tt.query.Query != tt.wantQuery {
				t.Errorf("Query = %q, want %q", tt.query.Query, tt.wantQuery)
			}
		})
	}
}

func TestStripDataURI(t *testing.T) {
	if got := StripDataURI("plain"); got != "plain" {
		t.Errorf("got %q", got)
	}
	if got := StripDataURI("data:image/png;base64,abc,def"); got != "abc,def" {
		t.Errorf("only the first comma delimits the prefix, got %q", got)
	}
}
