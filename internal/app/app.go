// Package app wires the configured components together for the server and
// the command line.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/hyperjump/shotsearch/internal/config"
	"github.com/hyperjump/shotsearch/internal/embedding"
	"github.com/hyperjump/shotsearch/internal/entities"
	"github.com/hyperjump/shotsearch/internal/frames"
	"github.com/hyperjump/shotsearch/internal/indexer"
	"github.com/hyperjump/shotsearch/internal/models"
	"github.com/hyperjump/shotsearch/internal/pipeline"
	"github.com/hyperjump/shotsearch/internal/record"
	"github.com/hyperjump/shotsearch/internal/rerank"
	"github.com/hyperjump/shotsearch/internal/search"
	"github.com/hyperjump/shotsearch/internal/storage"
	"github.com/hyperjump/shotsearch/internal/store"
	"github.com/hyperjump/shotsearch/internal/store/local"
	"github.com/hyperjump/shotsearch/internal/store/opensearch"
	"github.com/hyperjump/shotsearch/internal/store/qdrant"
	"github.com/hyperjump/shotsearch/internal/vision"
	"github.com/hyperjump/shotsearch/pkg/httpx"
	"github.com/hyperjump/shotsearch/pkg/utils"
)

// App holds the initialized components.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Catalog  storage.Catalog
	Store    store.Store
	Gateway  embedding.Gateway
	Engine   *search.Engine
	Writer   *indexer.Writer
	Builder  *record.Builder
	Pipeline *pipeline.Pipeline

	closers []func() error
}

// Option overrides a component, mainly for tests.
type Option func(*overrides)

type overrides struct {
	gateway embedding.Gateway
	frames  frames.Source
}

// WithGateway uses gw instead of the configured embedding provider.
func WithGateway(gw embedding.Gateway) Option {
	return func(o *overrides) { o.gateway = gw }
}

// WithFrameSource uses src instead of the configured frames directory.
func WithFrameSource(src frames.Source) Option {
	return func(o *overrides) { o.frames = src }
}

// New validates cfg and builds every component. Close releases them.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o overrides
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err := a.openStorage(); err != nil {
		return nil, err
	}

	a.Gateway = o.gateway
	if a.Gateway == nil {
		if a.Gateway, err = a.newGateway(ctx); err != nil {
			return nil, err
		}
	}

	reranker, err := a.newReranker()
	if err != nil {
		return nil, err
	}
	a.Engine = search.NewEngine(a.Store, a.Gateway, reranker, &cfg.Search,
		search.WithModels(cfg.Embedding.TextModel, cfg.Embedding.ImageModel),
		search.WithIndex(cfg.Index.Shots),
		search.WithLogger(utils.Named(logger, "search")),
	)

	writerOpts := []indexer.WriterOption{indexer.WithLogger(utils.Named(logger, "indexer"))}
	if cfg.Index.Audio != "" {
		writerOpts = append(writerOpts, indexer.WithAudioIndex(cfg.Index.Audio, a.Gateway, cfg.Embedding.TextModel))
	}
	a.Writer = indexer.NewWriter(a.Store, cfg.Index.Shots, writerOpts...)

	src := o.frames
	if src == nil {
		src = frames.NewDirSource(cfg.Ingest.FramesDir, frames.WithLogger(utils.Named(logger, "frames")))
	}
	builderOpts, err := a.builderOptions()
	if err != nil {
		return nil, err
	}
	a.Builder = record.NewBuilder(src, a.Gateway, cfg.Embedding.TextModel, cfg.Embedding.ImageModel, builderOpts...)

	a.Pipeline = pipeline.New(a.Catalog, a.Builder, a.Writer,
		pipeline.WithSampleCount(cfg.Ingest.SampleCount),
		pipeline.WithWorkers(cfg.Ingest.Workers),
		pipeline.WithLogger(utils.Named(logger, "pipeline")),
	)
	return a, nil
}

// openStorage opens the catalog and the search store. The sqlite database is
// shared when both the catalog and the local store use it.
func (a *App) openStorage() error {
	cfg := a.Config
	var db *storage.SQLiteStorage
	if cfg.Catalog.Backend == "sqlite" || cfg.Storage.Backend == "local" {
		var err error
		if db, err = storage.NewSQLiteStorage(cfg.Storage.DatabasePath); err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
	}

	if cfg.Catalog.Backend == "sqlite" {
		a.Catalog = db
	} else {
		catalog, err := storage.OpenCatalog(cfg)
		if err != nil {
			return err
		}
		a.Catalog = catalog
		a.closers = append(a.closers, catalog.Close)
	}

	logger := utils.Named(a.Logger, "store")
	switch cfg.Storage.Backend {
	case "local":
		a.Store = local.New(db,
			local.WithBleveDir(cfg.Storage.BleveIndexPath),
			local.WithTextFields(models.PhraseFields...),
			local.WithLogger(logger),
		)
	case "opensearch":
		st, err := opensearch.New(cfg.Storage.OpenSearch.Endpoint,
			opensearch.WithAPIKey(cfg.Storage.OpenSearch.APIKey),
			opensearch.WithLogger(logger))
		if err != nil {
			return err
		}
		a.Store = st
	case "qdrant":
		addr := net.JoinHostPort(cfg.Storage.Qdrant.Host, strconv.Itoa(cfg.Storage.Qdrant.Port))
		st, err := qdrant.New(addr,
			qdrant.WithAPIKey(cfg.Storage.Qdrant.APIKey),
			qdrant.WithTLS(cfg.Storage.Qdrant.UseTLS),
			qdrant.WithTextFields(models.PhraseFields...),
			qdrant.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		a.Store = st
	}
	a.closers = append(a.closers, a.Store.Close)
	return nil
}

func (a *App) newGateway(ctx context.Context) (embedding.Gateway, error) {
	cfg := a.Config.Embedding
	var gw embedding.Gateway
	switch cfg.Provider {
	case "mock":
		mock := embedding.NewMockEmbedder(cfg.Dimensions)
		lg := embedding.NewLocalGateway(mock, mock)
		a.closers = append(a.closers, lg.Close)
		gw = lg
	case "onnx":
		onnx, err := embedding.NewONNXEmbedder(cfg.ONNX.ModelPath, cfg.ONNX.TokenizerPath, cfg.Dimensions, cfg.ONNX.MaxTokens, cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize onnx embedder: %w", err)
		}
		lg := embedding.NewLocalGateway(onnx, nil)
		a.closers = append(a.closers, lg.Close)
		gw = lg
	case "bedrock":
		client := httpx.New(
			httpx.WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
			httpx.WithTimeout(cfg.Timeout),
			httpx.WithAPIKey(cfg.APIKey),
		)
		gw = embedding.NewBedrockGateway(cfg.Endpoint,
			embedding.WithClient(client),
			embedding.WithDimensions(cfg.Dimensions),
			embedding.WithLogger(utils.Named(a.Logger, "embedding")),
		)
	}

	switch cfg.Cache.Backend {
	case "memory":
		return embedding.NewCachedGateway(gw, embedding.NewEmbeddingCache(cfg.CacheSize)), nil
	case "redis":
		cache, err := embedding.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.TTL, utils.Named(a.Logger, "cache"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, cache.Close)
		return embedding.NewCachedGateway(gw, cache), nil
	}
	return gw, nil
}

// newReranker returns nil when reranking is disabled.
func (a *App) newReranker() (rerank.Reranker, error) {
	cfg := a.Config.Rerank
	if !cfg.Enabled {
		return nil, nil
	}
	client, err := rerank.NewClient(cfg.Endpoint, cfg.ModelARN, httpx.New(httpx.WithAPIKey(cfg.APIKey)))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (a *App) builderOptions() ([]record.Option, error) {
	cfg := a.Config
	dims := cfg.Embedding.Dimensions
	opts := []record.Option{
		record.WithDimensions(dims, dims),
		record.WithShotsDir(cfg.Ingest.ShotsDir),
		record.WithLogger(utils.Named(a.Logger, "record")),
	}
	if cfg.Vision.Backend != "none" {
		backend, err := vision.New(cfg.Vision.Backend, cfg.Vision.Endpoint, cfg.Vision.Model,
			httpx.New(httpx.WithAPIKey(cfg.Vision.APIKey)))
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			record.WithDescriber(vision.NewDescriber(backend, cfg.Vision.MaxTokens)),
			record.WithRecognizer(vision.NewRecognizer(backend, cfg.Vision.MaxTokens)),
		)
	}
	if cfg.Entities.Endpoint != "" {
		detector := entities.NewClient(cfg.Entities.Endpoint, cfg.Entities.Language,
			httpx.New(httpx.WithAPIKey(cfg.Entities.APIKey)))
		opts = append(opts, record.WithDetector(detector))
	}
	return opts, nil
}

// Close releases components in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
