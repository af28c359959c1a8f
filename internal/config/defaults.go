package config

import "time"

// DefaultRerankModelARN is the rerank model used when none is configured.
const DefaultRerankModelARN = "arn:aws:bedrock:us-west-2::foundation-model/cohere.rerank-v3-5:0"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/shotsearch/data/db/shots.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/shotsearch/data/indices/bleve"
	}
	if cfg.Storage.Qdrant.Port == 0 {
		cfg.Storage.Qdrant.Port = 6334
	}
	if cfg.Catalog.Backend == "" {
		cfg.Catalog.Backend = "sqlite"
	}
	if cfg.Index.Shots == "" {
		cfg.Index.Shots = "shots"
	}
	if cfg.Index.Audio == "" {
		cfg.Index.Audio = "audio"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "mock"
	}
	if cfg.Embedding.TextModel == "" {
		cfg.Embedding.TextModel = "amazon.titan-embed-text-v2:0"
	}
	if cfg.Embedding.ImageModel == "" {
		cfg.Embedding.ImageModel = "amazon.titan-embed-image-v1"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1024
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Cache.Backend == "" {
		cfg.Embedding.Cache.Backend = "memory"
	}
	if cfg.Embedding.Cache.TTL == 0 {
		cfg.Embedding.Cache.TTL = 24 * time.Hour
	}
	if cfg.Embedding.ONNX.MaxTokens == 0 {
		cfg.Embedding.ONNX.MaxTokens = 256
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 60 * time.Second
	}
	if cfg.Vision.Backend == "" {
		cfg.Vision.Backend = "none"
	}
	if cfg.Vision.MaxTokens == 0 {
		cfg.Vision.MaxTokens = 128
	}
	if cfg.Rerank.ModelARN == "" {
		cfg.Rerank.ModelARN = DefaultRerankModelARN
	}
	if cfg.Entities.Language == "" {
		cfg.Entities.Language = "en"
	}
	if cfg.Ingest.SampleCount == 0 {
		cfg.Ingest.SampleCount = 3
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.Ingest.FramesDir == "" {
		cfg.Ingest.FramesDir = "/usr/local/var/shotsearch/data/frames"
	}
	if cfg.Ingest.NATS.Subject == "" {
		cfg.Ingest.NATS.Subject = "shotsearch.jobs"
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 100
	}
	if cfg.Search.RelevanceThreshold == 0 {
		cfg.Search.RelevanceThreshold = 0.5
	}
	if cfg.Search.MaxRerank == 0 {
		cfg.Search.MaxRerank = 50
	}
	if cfg.Search.RerankThreshold == 0 {
		cfg.Search.RerankThreshold = 0.05
	}
	if cfg.Search.KNNK == 0 {
		cfg.Search.KNNK = 50
	}
	if cfg.Search.DescBoost == 0 {
		cfg.Search.DescBoost = 3
	}
	if cfg.Search.TranscriptBoost == 0 {
		cfg.Search.TranscriptBoost = 1
	}
}
