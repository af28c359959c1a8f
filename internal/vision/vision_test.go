package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperjump/shotsearch/internal/apperr"
)

func TestChatBackend_Complete(t *testing.T) {
	img := []byte("png-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/model/vision-model/converse" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req converseRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.InferenceConfig.MaxTokens != 128 {
			t.Errorf("maxTokens = %d", req.InferenceConfig.MaxTokens)
		}
		c := req.Messages[0].Content
		if len(c) != 2 || c[0].Text == "" || c[1].Image == nil || c[1].Image.Format != "png" {
			t.Fatalf("unexpected content: %+v", c)
		}
		raw, _ := base64.StdEncoding.DecodeString(c[1].Image.Source.Bytes)
		if string(raw) != string(img) {
			t.Error("image bytes not encoded")
		}
		w.Write([]byte(`{"output":{"message":{"role":"assistant","content":[{"text":"Ada Lovelace, Alan Turing"}]}}}`))
	}))
	defer srv.Close()

	b, err := New("chat", srv.URL, "vision-model", nil)
	if err != nil {
		t.Fatal(err)
	}
	out, err := b.Complete(context.Background(), Prompt{Text: "who?", Image: img})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "Ada Lovelace, Alan Turing" {
		t.Errorf("out = %q", out)
	}
}

func TestInvokeBackend_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/model/anthropic.model/invoke" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req messagesRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.AnthropicVersion != anthropicVersion || req.MaxTokens != 64 {
			t.Errorf("request header fields: %+v", req)
		}
		c := req.Messages[0].Content
		if len(c) != 2 || c[0].Type != "image" || c[0].Source.MediaType != "image/png" || c[1].Type != "text" {
			t.Errorf("unexpected content order: %+v", c)
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"A newsroom."}]}`))
	}))
	defer srv.Close()

	b, _ := New("invoke", srv.URL, "anthropic.model", nil)
	out, err := b.Complete(context.Background(), Prompt{Text: "describe", Image: []byte{1}, MaxTokens: 64})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "A newsroom." {
		t.Errorf("out = %q", out)
	}
}

func TestBackends_MissingText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[],"output":{}}`))
	}))
	defer srv.Close()

	for _, kind := range []string{"chat", "invoke"} {
		b, _ := New(kind, srv.URL, "m", nil)
		if _, err := b.Complete(context.Background(), Prompt{Text: "x"}); !apperr.IsProvider(err) {
			t.Errorf("%s: expected ProviderError, got %v", kind, err)
		}
	}
}

func TestNew_Config(t *testing.T) {
	if _, err := New("chat", "http://x", "", nil); !apperr.IsConfig(err) {
		t.Errorf("missing model: %v", err)
	}
	if _, err := New("telepathy", "http://x", "m", nil); !apperr.IsConfig(err) {
		t.Errorf("unknown backend: %v", err)
	}
}

type fakeBackend struct {
	answer string
	last   Prompt
}

func (f *fakeBackend) Complete(ctx context.Context, p Prompt) (string, error) {
	f.last = p
	return f.answer, nil
}

func TestRecognizer(t *testing.T) {
	tests := []struct {
		answer string
		want   string
	}{
		{"Jane Doe, John Roe", "Jane Doe, John Roe"},
		{"No names recognized.", ""},
		{"  Jane Doe \n", "Jane Doe"},
	}
	for _, tt := range tests {
		fb := &fakeBackend{answer: tt.answer}
		got, err := NewRecognizer(fb, 0).RecognizeNames(context.Background(), []byte{1})
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("RecognizeNames(%q) = %q, want %q", tt.answer, got, tt.want)
		}
		if !strings.Contains(fb.last.Text, "identify any person names") {
			t.Error("names prompt not sent")
		}
	}
}

func TestDescriber(t *testing.T) {
	fb := &fakeBackend{answer: " Two anchors at a desk. "}
	got, err := NewDescriber(fb, 200).Describe(context.Background(), []byte{1})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Two anchors at a desk." || fb.last.MaxTokens != 200 {
		t.Errorf("Describe = %q (max %d)", got, fb.last.MaxTokens)
	}
}
