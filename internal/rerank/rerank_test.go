package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/shotsearch/internal/apperr"
)

const arn = "arn:aws:bedrock:us-west-2::foundation-model/cohere.rerank-v3-5:0"

func TestClient_Rerank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)

		q := req["queries"].([]any)[0].(map[string]any)
		if q["type"] != "TEXT" || q["textQuery"].(map[string]any)["text"] != "a dog" {
			t.Errorf("query = %v", q)
		}
		src := req["sources"].([]any)
		if len(src) != 3 {
			t.Fatalf("sources = %d", len(src))
		}
		first := src[0].(map[string]any)
		inline := first["inlineDocumentSource"].(map[string]any)
		if first["type"] != "INLINE" || inline["type"] != "JSON" || inline["jsonDocument"].(map[string]any)["shot_description"] != "dog runs" {
			t.Errorf("source = %v", first)
		}
		cfg := req["rerankingConfiguration"].(map[string]any)
		bedrock := cfg["bedrockRerankingConfiguration"].(map[string]any)
		if cfg["type"] != "BEDROCK_RERANKING_MODEL" || bedrock["numberOfResults"] != float64(3) {
			t.Errorf("config = %v", cfg)
		}
		if bedrock["modelConfiguration"].(map[string]any)["modelArn"] != arn {
			t.Errorf("model arn missing")
		}
		w.Write([]byte(`{"results":[{"index":2,"relevanceScore":0.9},{"index":0,"relevanceScore":0.4}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, arn, nil)
	if err != nil {
		t.Fatal(err)
	}
	docs := []map[string]any{
		{"shot_description": "dog runs"},
		{"shot_description": "cat sleeps"},
		{"shot_description": "dog barks"},
	}
	results, err := c.Rerank(context.Background(), "a dog", docs, 50)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(results) != 2 || results[0].Index != 2 || results[0].RelevanceScore != 0.9 {
		t.Errorf("results = %+v", results)
	}
}

func TestClient_Rerank_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing results", `{"nextToken":"x"}`},
		{"index out of range", `{"results":[{"index":7,"relevanceScore":0.3}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			c, _ := NewClient(srv.URL, arn, nil)
			_, err := c.Rerank(context.Background(), "q", []map[string]any{{"a": 1}}, 1)
			if !apperr.IsProvider(err) {
				t.Errorf("expected ProviderError, got %v", err)
			}
		})
	}
}

func TestClient_Rerank_NoDocs(t *testing.T) {
	c, _ := NewClient("http://127.0.0.1:1", arn, nil)
	results, err := c.Rerank(context.Background(), "q", nil, 10)
	if err != nil || len(results) != 0 {
		t.Errorf("got %v, %v", results, err)
	}
}

func TestNewClient_RequiresARN(t *testing.T) {
	if _, err := NewClient("http://x", "", nil); !apperr.IsConfig(err) {
		t.Errorf("expected ConfigError, got %v", err)
	}
}
