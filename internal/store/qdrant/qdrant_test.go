package qdrant

import (
	"encoding/json"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/hyperjump/shotsearch/internal/apperr"
)

func TestPointID(t *testing.T) {
	a := PointID("shots", "0-1000")
	if a != PointID("shots", "0-1000") {
		t.Error("point id is not deterministic")
	}
	if a == PointID("audio", "0-1000") {
		t.Error("same document id in different indices must map to different points")
	}
	if len(a) != 36 {
		t.Errorf("not a UUID: %s", a)
	}
}

func TestCombine(t *testing.T) {
	perClause := []map[string]float64{
		{"desc": 0.9, "trans": 0.1, "only-desc": 0.5},
		{"desc": 0.1, "trans": 0.9, "neg": -0.4},
	}
	got := combine([]string{"trans", "desc", "only-desc", "neg"}, perClause, []float64{3, 1}, 1)
	if len(got) != 4 {
		t.Fatalf("got %v", got)
	}
	want := []string{"desc", "only-desc", "trans", "neg"}
	for i, id := range want {
		if got[i].id != id {
			t.Errorf("3:1 weighting order = %v, want %v", got, want)
			break
		}
	}
	if got[3].id != "neg" || got[3].score != 0 {
		t.Errorf("negative cosine should clamp to 0, got %v", got[3])
	}

	got = combine([]string{"desc", "only-desc"}, perClause, []float64{3, 1}, 2)
	if len(got) != 1 || got[0].id != "desc" {
		t.Errorf("minimum match 2 = %v", got)
	}
}

func TestPhraseFilter(t *testing.T) {
	if phraseFilter(nil, []string{"a"}) != nil {
		t.Error("no phrases should mean no filter")
	}
	f := phraseFilter([]string{"Jane Doe", "podium"}, []string{"shot_description", "shot_transcript"})
	if len(f.GetMust()) != 2 {
		t.Fatalf("must = %v", f.GetMust())
	}
	inner := f.GetMust()[0].GetFilter()
	if len(inner.GetShould()) != 2 {
		t.Fatalf("should = %v", inner.GetShould())
	}
	cond := inner.GetShould()[1].GetField()
	if cond.GetKey() != "shot_transcript" || cond.GetMatch().GetPhrase() != "Jane Doe" {
		t.Errorf("condition = %v", cond)
	}
	if cond.GetMatch().GetText() != "" {
		t.Errorf("phrase must not fall back to token text match: %v", cond)
	}
}

func TestTextIndexRequest(t *testing.T) {
	req := textIndexRequest("shots", "shot_description")
	if req.GetCollectionName() != "shots" || req.GetFieldName() != "shot_description" || !req.GetWait() {
		t.Errorf("request = %v", req)
	}
	if req.GetFieldType() != pb.FieldType_FieldTypeText {
		t.Errorf("field type = %v", req.GetFieldType())
	}
	params := req.GetFieldIndexParams().GetTextIndexParams()
	if params == nil {
		t.Fatal("missing text index params")
	}
	if !params.GetPhraseMatching() {
		t.Error("phrase matching must be enabled for phrase conditions")
	}
	if params.GetTokenizer() != pb.TokenizerType_Word || !params.GetLowercase() {
		t.Errorf("params = %v", params)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	p := &pb.ScoredPoint{Payload: map[string]*pb.Value{
		idField:          toValue("0-1000"),
		"shot_startTime": toValue(int64(0)),
		"shot_id":        toValue("0-1000"),
		"names":          toValue([]string{"Jane", "John"}),
		"unused":         toValue(true),
	}}
	h, err := toHit(p, 1.5, []string{"shot_id", "shot_startTime", "names"})
	if err != nil {
		t.Fatal(err)
	}
	if h.ID != "0-1000" || h.Score != 1.5 {
		t.Errorf("hit = %+v", h)
	}
	var src map[string]any
	if err := json.Unmarshal(h.Source, &src); err != nil {
		t.Fatal(err)
	}
	if len(src) != 3 || src["shot_id"] != "0-1000" || src["shot_startTime"].(float64) != 0 {
		t.Errorf("source = %v", src)
	}
	if _, ok := src[idField]; ok {
		t.Error("internal id leaked into source")
	}
}

func TestNew_RequiresAddress(t *testing.T) {
	if _, err := New(""); !apperr.IsConfig(err) {
		t.Errorf("expected ConfigError, got %v", err)
	}
}

func TestNew_LazyDial(t *testing.T) {
	s, err := New("localhost:6334", WithAPIKey("secret"), WithTextFields("shot_description"))
	if err != nil {
		t.Fatalf("grpc.NewClient should not connect eagerly: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
