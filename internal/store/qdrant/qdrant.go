// Package qdrant implements store.Store on Qdrant collections over gRPC. Each
// index is a collection with one named vector per vector field.
package qdrant

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/internal/store"
)

const (
	provider = "qdrant"
	idField  = "_id"
)

// Store owns the gRPC connection and clients.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	textFields  []string
	logger      *zap.Logger
	ensured     sync.Map
}

type options struct {
	apiKey     string
	useTLS     bool
	textFields []string
	logger     *zap.Logger
}

// Option configures a Store.
type Option func(*options)

// WithAPIKey sends key in the api-key metadata of every call.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithTLS dials with system TLS credentials.
func WithTLS(on bool) Option {
	return func(o *options) { o.useTLS = on }
}

// WithTextFields names payload fields that get a full-text index for phrase filters.
func WithTextFields(fields ...string) Option {
	return func(o *options) { o.textFields = fields }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a Store connected to Qdrant at the given gRPC address.
func New(addr string, opts ...Option) (*Store, error) {
	if addr == "" {
		return nil, apperr.NewConfigError("storage.qdrant.host", "address is required")
	}
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	creds := insecure.NewCredentials()
	if o.useTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if o.apiKey != "" {
		dialOpts = append(dialOpts, grpc.WithUnaryInterceptor(apiKeyInterceptor(o.apiKey)))
	}
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		textFields:  o.textFields,
		logger:      o.logger,
	}, nil
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// PointID maps a document id to a stable point UUID within index.
func PointID(index, id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(index+"/"+id)).String()
}

// ensureCollection creates the collection with one cosine vector per field if it doesn't exist.
func (s *Store) ensureCollection(ctx context.Context, index string, vectors map[string][]float32) error {
	if _, ok := s.ensured.Load(index); ok {
		return nil
	}
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return apperr.NewProviderError(provider, "", fmt.Errorf("list collections: %w", err))
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == index {
			s.ensured.Store(index, struct{}{})
			return nil
		}
	}

	params := make(map[string]*pb.VectorParams, len(vectors))
	for field, v := range vectors {
		params[field] = &pb.VectorParams{Size: uint64(len(v)), Distance: pb.Distance_Cosine}
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: index,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_ParamsMap{ParamsMap: &pb.VectorParamsMap{Map: params}},
		},
	})
	if err != nil {
		return apperr.NewProviderError(provider, "", fmt.Errorf("create collection %s: %w", index, err))
	}
	for _, f := range s.textFields {
		if _, err := s.points.CreateFieldIndex(ctx, textIndexRequest(index, f)); err != nil {
			return apperr.NewProviderError(provider, "", fmt.Errorf("create text index %s.%s: %w", index, f, err))
		}
	}
	s.logger.Info("created qdrant collection", zap.String("collection", index), zap.Int("vectors", len(params)))
	s.ensured.Store(index, struct{}{})
	return nil
}

// Index upserts doc as a point with named vectors and its fields as payload.
func (s *Store) Index(ctx context.Context, index string, doc store.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if err := s.ensureCollection(ctx, index, doc.Vectors); err != nil {
		return err
	}
	named := make(map[string]*pb.Vector, len(doc.Vectors))
	for field, v := range doc.Vectors {
		named[field] = &pb.Vector{Data: v}
	}
	payload := make(map[string]*pb.Value, len(doc.Fields)+1)
	for k, v := range doc.Fields {
		payload[k] = toValue(v)
	}
	payload[idField] = toValue(doc.ID)

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: index,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(index, doc.ID)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vectors{Vectors: &pb.NamedVectors{Vectors: named}}},
			Payload: payload,
		}},
	})
	if err != nil {
		return apperr.NewProviderError(provider, "", fmt.Errorf("upsert %s: %w", doc.ID, err))
	}
	return nil
}

// Search runs q against the collection named index.
func (s *Store) Search(ctx context.Context, index string, q store.Query) (*store.Response, error) {
	switch tq := q.(type) {
	case *store.HybridQuery:
		return s.hybrid(ctx, index, tq)
	case *store.KNNQuery:
		return s.knn(ctx, index, tq)
	default:
		return nil, fmt.Errorf("unsupported query type %T", q)
	}
}

func (s *Store) search(ctx context.Context, index, field string, vec []float32, filter *pb.Filter, limit int) ([]*pb.ScoredPoint, error) {
	name := field
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: index,
		Vector:         vec,
		VectorName:     &name,
		Filter:         filter,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, apperr.NewProviderError(provider, "", fmt.Errorf("search %s.%s: %w", index, field, err))
	}
	return resp.GetResult(), nil
}

func (s *Store) knn(ctx context.Context, index string, q *store.KNNQuery) (*store.Response, error) {
	points, err := s.search(ctx, index, q.Field, q.Vector, nil, q.K)
	if err != nil {
		return nil, err
	}
	hits := make([]store.Hit, 0, len(points))
	for _, p := range points {
		h, err := toHit(p, float64(p.GetScore()), q.Source)
		if err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	total := len(hits)
	if q.Size >= 0 && q.Size < len(hits) {
		hits = hits[:q.Size]
	}
	return &store.Response{Hits: hits, Total: total}, nil
}

// hybrid takes the union of the per-clause nearest neighbors, fills in missing
// clause scores with an id-restricted search, then sums the boosted scores.
// Candidates outside every clause's top Size are not considered.
func (s *Store) hybrid(ctx context.Context, index string, q *store.HybridQuery) (*store.Response, error) {
	filter := phraseFilter(q.Phrases, q.PhraseFields)
	perClause := make([]map[string]float64, len(q.Vectors))
	payloads := make(map[string]*pb.ScoredPoint)
	var order []string

	for i, c := range q.Vectors {
		perClause[i] = make(map[string]float64)
		points, err := s.search(ctx, index, c.Field, c.Vector, filter, q.Size)
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			id := p.GetId().GetUuid()
			perClause[i][id] = float64(p.GetScore())
			if _, ok := payloads[id]; !ok {
				payloads[id] = p
				order = append(order, id)
			}
		}
	}

	for i, c := range q.Vectors {
		var missing []*pb.PointId
		for _, id := range order {
			if _, ok := perClause[i][id]; !ok {
				missing = append(missing, &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}})
			}
		}
		if len(missing) == 0 {
			continue
		}
		points, err := s.search(ctx, index, c.Field, c.Vector, hasID(missing), len(missing))
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			perClause[i][p.GetId().GetUuid()] = float64(p.GetScore())
		}
	}

	boosts := make([]float64, len(q.Vectors))
	for i, c := range q.Vectors {
		boosts[i] = c.Boost
	}
	ranked := combine(order, perClause, boosts, q.MinimumShouldMatch)
	total := len(ranked)
	if q.Size >= 0 && q.Size < len(ranked) {
		ranked = ranked[:q.Size]
	}
	hits := make([]store.Hit, 0, len(ranked))
	for _, r := range ranked {
		h, err := toHit(payloads[r.id], r.score, q.Source)
		if err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return &store.Response{Hits: hits, Total: total}, nil
}

type scored struct {
	id    string
	score float64
}

// combine sums boost times clamped cosine per id, drops ids scored by fewer than
// minMatch clauses and orders by score, keeping first-seen order on ties.
func combine(order []string, perClause []map[string]float64, boosts []float64, minMatch int) []scored {
	if minMatch < 1 {
		minMatch = 1
	}
	out := make([]scored, 0, len(order))
	for _, id := range order {
		matched := 0
		total := 0.0
		for i, m := range perClause {
			sim, ok := m[id]
			if !ok {
				continue
			}
			matched++
			total += boosts[i] * math.Max(0, math.Min(1, sim))
		}
		if matched >= minMatch {
			out = append(out, scored{id: id, score: total})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// textIndexRequest builds a word-tokenized, lowercased full-text index with
// phrase matching enabled, which Match_Phrase conditions require.
func textIndexRequest(index, field string) *pb.CreateFieldIndexCollection {
	wait, lowercase, phrase := true, true, true
	return &pb.CreateFieldIndexCollection{
		CollectionName: index,
		Wait:           &wait,
		FieldName:      field,
		FieldType:      pb.FieldType_FieldTypeText.Enum(),
		FieldIndexParams: &pb.PayloadIndexParams{
			IndexParams: &pb.PayloadIndexParams_TextIndexParams{
				TextIndexParams: &pb.TextIndexParams{
					Tokenizer:      pb.TokenizerType_Word,
					Lowercase:      &lowercase,
					PhraseMatching: &phrase,
				},
			},
		},
	}
}

// phraseFilter requires every phrase to appear verbatim, as consecutive
// tokens, in at least one field.
func phraseFilter(phrases, fields []string) *pb.Filter {
	if len(phrases) == 0 {
		return nil
	}
	must := make([]*pb.Condition, 0, len(phrases))
	for _, p := range phrases {
		should := make([]*pb.Condition, 0, len(fields))
		for _, f := range fields {
			should = append(should, pb.NewMatchPhrase(f, p))
		}
		must = append(must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Filter{Filter: &pb.Filter{Should: should}},
		})
	}
	return &pb.Filter{Must: must}
}

func hasID(ids []*pb.PointId) *pb.Filter {
	return &pb.Filter{Must: []*pb.Condition{{
		ConditionOneOf: &pb.Condition_HasId{HasId: &pb.HasIdCondition{HasId: ids}},
	}}}
}

func toHit(p *pb.ScoredPoint, score float64, source []string) (store.Hit, error) {
	fields := make(map[string]any, len(p.GetPayload()))
	for k, v := range p.GetPayload() {
		fields[k] = fromValue(v)
	}
	id, _ := fields[idField].(string)
	delete(fields, idField)
	raw, err := json.Marshal(store.FilterSource(fields, source))
	if err != nil {
		return store.Hit{}, err
	}
	return store.Hit{ID: id, Score: score, Source: raw}, nil
}

func toValue(v any) *pb.Value {
	switch tv := v.(type) {
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{}}
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	case []string:
		values := make([]*pb.Value, len(tv))
		for i, s := range tv {
			values[i] = toValue(s)
		}
		return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

func fromValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	case *pb.Value_ListValue:
		out := make([]any, 0, len(k.ListValue.GetValues()))
		for _, item := range k.ListValue.GetValues() {
			out = append(out, fromValue(item))
		}
		return out
	default:
		return nil
	}
}
