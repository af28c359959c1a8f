package storage

import (
	"github.com/hyperjump/shotsearch/internal/apperr"
	"github.com/hyperjump/shotsearch/internal/config"
)

// OpenCatalog returns the catalog selected by cfg. The sqlite catalog reuses
// the storage database path.
func OpenCatalog(cfg *config.Config) (Catalog, error) {
	switch cfg.Catalog.Backend {
	case "", "sqlite":
		return NewSQLiteStorage(cfg.Storage.DatabasePath)
	case "cassandra":
		return NewCassandraCatalog(cfg.Catalog.Cassandra.Hosts, cfg.Catalog.Cassandra.Keyspace)
	default:
		return nil, apperr.NewConfigError("catalog.backend", "unknown backend "+cfg.Catalog.Backend)
	}
}
