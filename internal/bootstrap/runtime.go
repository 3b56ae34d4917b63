// Package bootstrap wires configuration into a ready-to-use runtime: the
// selected store backend plus tracing.
package bootstrap

import (
	"context"
	"fmt"

	"inkwell/internal/config"
	"inkwell/internal/docstore"
	"inkwell/internal/docstore/gormstore"
	"inkwell/internal/docstore/memstore"
	"inkwell/internal/docstore/redistore"
	"inkwell/internal/observability"
)

// Runtime holds the shared process-wide resources.
type Runtime struct {
	Store docstore.Store

	shutdownTracing func(context.Context) error
}

// InitRuntime opens the configured store backend and initializes tracing.
func InitRuntime(cfg *config.Config) (*Runtime, error) {
	sampler := 1.0
	if cfg.TracingSample == "ratio" {
		sampler = 0.1
	}
	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "inkwell",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.TracingEndpoint,
		SamplerRatio:   sampler,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing initialization failed: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return nil, err
	}

	return &Runtime{Store: store, shutdownTracing: shutdownTracing}, nil
}

// Shutdown closes the store and flushes tracing.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var first error
	if err := r.Store.Close(); err != nil {
		first = err
	}
	if r.shutdownTracing != nil {
		if err := r.shutdownTracing(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func openStore(cfg *config.Config) (docstore.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return memstore.New(), nil
	case config.BackendRedis:
		store, err := redistore.Open(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis store connection failed: %w", err)
		}
		return store, nil
	case config.BackendSQLite:
		store, err := gormstore.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite store open failed: %w", err)
		}
		return store, nil
	case config.BackendPostgres:
		store, err := gormstore.OpenPostgres(cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("postgres store connection failed: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
