// Package config provides configuration loading and structs for the shotsearch service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/shotsearch/internal/apperr"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vision    VisionConfig    `yaml:"vision"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Entities  EntitiesConfig  `yaml:"entities"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Search    SearchConfig    `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects and configures the shot search store.
type StorageConfig struct {
	Backend        string           `yaml:"backend"`
	DatabasePath   string           `yaml:"database_path"`
	BleveIndexPath string           `yaml:"bleve_index_path"`
	OpenSearch     OpenSearchConfig `yaml:"opensearch"`
	Qdrant         QdrantConfig     `yaml:"qdrant"`
}

// OpenSearchConfig holds the OpenSearch endpoint.
type OpenSearchConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// QdrantConfig holds the Qdrant gRPC address.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

// CatalogConfig selects where jobs and transcripts are kept.
type CatalogConfig struct {
	Backend   string          `yaml:"backend"`
	Cassandra CassandraConfig `yaml:"cassandra"`
}

// CassandraConfig holds the Cassandra cluster settings.
type CassandraConfig struct {
	Hosts    []string `yaml:"hosts"`
	Keyspace string   `yaml:"keyspace"`
}

// IndexConfig names the shot and audio indices.
type IndexConfig struct {
	Shots string `yaml:"shots"`
	Audio string `yaml:"audio"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`
	Endpoint          string        `yaml:"endpoint"`
	APIKey            string        `yaml:"api_key"`
	TextModel         string        `yaml:"text_model"`
	ImageModel        string        `yaml:"image_model"`
	Dimensions        int           `yaml:"dimensions"`
	CacheSize         int           `yaml:"cache_size"`
	Cache             CacheConfig   `yaml:"cache"`
	ONNX              ONNXConfig    `yaml:"onnx"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
}

// CacheConfig selects the embedding cache.
type CacheConfig struct {
	Backend   string        `yaml:"backend"`
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

// ONNXConfig holds local model settings.
type ONNXConfig struct {
	ModelPath     string `yaml:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path"`
	MaxTokens     int    `yaml:"max_tokens"`
}

// VisionConfig holds the vision model used for names and shot descriptions.
type VisionConfig struct {
	Backend   string `yaml:"backend"`
	Endpoint  string `yaml:"endpoint"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// RerankConfig holds the rerank provider settings.
type RerankConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	ModelARN string `yaml:"model_arn"`
}

// EntitiesConfig holds the entity detector settings. An empty endpoint disables it.
type EntitiesConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Language string `yaml:"language"`
}

// IngestConfig holds pipeline settings.
type IngestConfig struct {
	SampleCount int        `yaml:"sample_count"`
	Workers     int        `yaml:"workers"`
	FramesDir   string     `yaml:"frames_dir"`
	ShotsDir    string     `yaml:"shots_dir"`
	WatchDir    string     `yaml:"watch_dir"`
	NATS        NATSConfig `yaml:"nats"`
}

// NATSConfig holds the job bus settings. An empty URL disables the bus.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// SearchConfig holds the query engine thresholds.
type SearchConfig struct {
	MaxResults         int     `yaml:"max_results"`
	RelevanceThreshold float64 `yaml:"relevance_threshold"`
	MaxRerank          int     `yaml:"max_rerank"`
	RerankThreshold    float64 `yaml:"rerank_threshold"`
	KNNK               int     `yaml:"knn_k"`
	DescBoost          float64 `yaml:"desc_boost"`
	TranscriptBoost    float64 `yaml:"transcript_boost"`
}

// Load reads and parses the config file at path, applies environment
// overrides and defaults, and expands paths.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	// .env next to the config file; existing environment variables win.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Embedding.ONNX.ModelPath = expandPath(cfg.Embedding.ONNX.ModelPath, configDir)
	cfg.Embedding.ONNX.TokenizerPath = expandPath(cfg.Embedding.ONNX.TokenizerPath, configDir)
	cfg.Ingest.FramesDir = expandPath(cfg.Ingest.FramesDir, configDir)
	cfg.Ingest.ShotsDir = expandPath(cfg.Ingest.ShotsDir, configDir)
	cfg.Ingest.WatchDir = expandPath(cfg.Ingest.WatchDir, configDir)

	return &cfg, nil
}

// ApplyEnv overrides endpoints and secrets from SHOTSEARCH_* environment variables.
func ApplyEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("SHOTSEARCH_STORAGE_BACKEND", &cfg.Storage.Backend)
	str("SHOTSEARCH_OPENSEARCH_ENDPOINT", &cfg.Storage.OpenSearch.Endpoint)
	str("SHOTSEARCH_OPENSEARCH_API_KEY", &cfg.Storage.OpenSearch.APIKey)
	str("SHOTSEARCH_QDRANT_HOST", &cfg.Storage.Qdrant.Host)
	str("SHOTSEARCH_QDRANT_API_KEY", &cfg.Storage.Qdrant.APIKey)
	str("SHOTSEARCH_EMBEDDING_PROVIDER", &cfg.Embedding.Provider)
	str("SHOTSEARCH_EMBEDDING_ENDPOINT", &cfg.Embedding.Endpoint)
	str("SHOTSEARCH_EMBEDDING_API_KEY", &cfg.Embedding.APIKey)
	str("SHOTSEARCH_VISION_ENDPOINT", &cfg.Vision.Endpoint)
	str("SHOTSEARCH_VISION_API_KEY", &cfg.Vision.APIKey)
	str("SHOTSEARCH_RERANK_ENDPOINT", &cfg.Rerank.Endpoint)
	str("SHOTSEARCH_RERANK_API_KEY", &cfg.Rerank.APIKey)
	str("SHOTSEARCH_ENTITIES_ENDPOINT", &cfg.Entities.Endpoint)
	str("SHOTSEARCH_REDIS_ADDR", &cfg.Embedding.Cache.RedisAddr)
	str("SHOTSEARCH_NATS_URL", &cfg.Ingest.NATS.URL)
	if v := os.Getenv("SHOTSEARCH_CASSANDRA_HOSTS"); v != "" {
		cfg.Catalog.Cassandra.Hosts = strings.Split(v, ",")
	}
	if v := os.Getenv("SHOTSEARCH_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("SHOTSEARCH_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
}

// Validate checks that the selected backends have the identifiers they need.
func (c *Config) Validate() error {
	if c.Index.Shots == "" {
		return apperr.NewConfigError("index.shots", "shot index name is required")
	}
	switch c.Storage.Backend {
	case "local":
	case "opensearch":
		if c.Storage.OpenSearch.Endpoint == "" {
			return apperr.NewConfigError("storage.opensearch.endpoint", "required for the opensearch backend")
		}
	case "qdrant":
		if c.Storage.Qdrant.Host == "" {
			return apperr.NewConfigError("storage.qdrant.host", "required for the qdrant backend")
		}
	default:
		return apperr.NewConfigError("storage.backend", fmt.Sprintf("unknown backend %q", c.Storage.Backend))
	}
	switch c.Catalog.Backend {
	case "sqlite":
	case "cassandra":
		if len(c.Catalog.Cassandra.Hosts) == 0 || c.Catalog.Cassandra.Keyspace == "" {
			return apperr.NewConfigError("catalog.cassandra", "hosts and keyspace are required")
		}
	default:
		return apperr.NewConfigError("catalog.backend", fmt.Sprintf("unknown backend %q", c.Catalog.Backend))
	}
	switch c.Embedding.Provider {
	case "mock":
	case "onnx":
		if c.Embedding.ONNX.ModelPath == "" {
			return apperr.NewConfigError("embedding.onnx.model_path", "required for the onnx provider")
		}
	case "bedrock":
		if c.Embedding.Endpoint == "" {
			return apperr.NewConfigError("embedding.endpoint", "required for the bedrock provider")
		}
		if c.Embedding.TextModel == "" {
			return apperr.NewConfigError("embedding.text_model", "text model id is required")
		}
		if c.Embedding.ImageModel == "" {
			return apperr.NewConfigError("embedding.image_model", "image model id is required")
		}
	default:
		return apperr.NewConfigError("embedding.provider", fmt.Sprintf("unknown provider %q", c.Embedding.Provider))
	}
	if c.Embedding.Cache.Backend == "redis" && c.Embedding.Cache.RedisAddr == "" {
		return apperr.NewConfigError("embedding.cache.redis_addr", "required for the redis cache")
	}
	switch c.Vision.Backend {
	case "none":
	case "chat", "invoke":
		if c.Vision.Endpoint == "" || c.Vision.Model == "" {
			return apperr.NewConfigError("vision", "endpoint and model are required")
		}
	default:
		return apperr.NewConfigError("vision.backend", fmt.Sprintf("unknown backend %q", c.Vision.Backend))
	}
	if c.Rerank.Enabled && (c.Rerank.Endpoint == "" || c.Rerank.ModelARN == "") {
		return apperr.NewConfigError("rerank", "endpoint and model_arn are required when enabled")
	}
	if c.Ingest.SampleCount < 1 {
		return apperr.NewConfigError("ingest.sample_count", "must be at least 1")
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
