// Package pool opens adapter handles from endpoint configuration.
package pool

import (
	"context"
	"fmt"

	"github.com/andresilva/fb-mssql-migrate/internal/adapter"
	"github.com/andresilva/fb-mssql-migrate/internal/adapter/firebird"
	"github.com/andresilva/fb-mssql-migrate/internal/adapter/mssql"
	"github.com/andresilva/fb-mssql-migrate/internal/config"
)

// MetadataHandle is the connection surface needed by the model comparison.
type MetadataHandle interface {
	adapter.MetadataReader
	Version(ctx context.Context) (string, error)
	Close() error
}

// OpenSource connects to the configured source database. Only Firebird
// sources are supported.
func OpenSource(ctx context.Context, cfg *config.Endpoint, sqlLog adapter.SQLLogger) (adapter.Source, error) {
	if cfg.Type != config.EngineFirebird {
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Type)
	}
	return firebird.Open(ctx, cfg.DSN(), sqlLog)
}

// OpenDestination connects to the configured destination database.
func OpenDestination(ctx context.Context, cfg *config.Endpoint, sqlLog adapter.SQLLogger) (adapter.Destination, error) {
	switch cfg.Type {
	case config.EngineMSSQL:
		return mssql.Open(ctx, cfg.DSN(), sqlLog)
	case config.EngineFirebird:
		return firebird.Open(ctx, cfg.DSN(), sqlLog)
	default:
		return nil, fmt.Errorf("unsupported destination type: %s", cfg.Type)
	}
}

// OpenMetadata connects to a database for metadata reads only, used for the
// model schema in the post-migration comparison.
func OpenMetadata(ctx context.Context, cfg *config.Endpoint, sqlLog adapter.SQLLogger) (MetadataHandle, error) {
	switch cfg.Type {
	case config.EngineMSSQL:
		return mssql.Open(ctx, cfg.DSN(), sqlLog)
	case config.EngineFirebird:
		return firebird.Open(ctx, cfg.DSN(), sqlLog)
	default:
		return nil, fmt.Errorf("unsupported model type: %s", cfg.Type)
	}
}
