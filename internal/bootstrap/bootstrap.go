// Package bootstrap wires configuration into the graph store, the prefix
// registry and the mapping store shared by the server and the tools.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/apperrors"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/config"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/discovery"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/namespace"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/retry"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/server/graph"
)

// OpenGraph connects to the configured backend, retrying transient failures.
func OpenGraph(ctx context.Context, cfg *config.Config, logger *zap.Logger) (graph.Repository, error) {
	switch cfg.Graph.Backend {
	case config.BackendSQLite:
		repo, err := graph.NewSQLite(ctx, cfg.Graph.SQLite.Path, logger)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.BackendNeo4j:
		neo := cfg.Graph.Neo4j
		return retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() (graph.Repository, error) {
			repo, err := graph.NewNeo4j(ctx, graph.Config{
				URI:        neo.URI,
				Username:   neo.User,
				Password:   neo.Password,
				Database:   neo.Database,
				IDProperty: neo.IDProperty,
			}, logger)
			if err != nil {
				logger.Warn("Neo4j connection attempt failed", zap.Error(err))
				return nil, err
			}
			return repo, nil
		})
	default:
		return nil, fmt.Errorf("unknown graph backend %q", cfg.Graph.Backend)
	}
}

// Registry loads the embedded prefix table and the optional prefix file.
func Registry(cfg *config.Config) (*namespace.Registry, error) {
	reg, err := namespace.DefaultRegistry()
	if err != nil {
		return nil, err
	}
	if cfg.Identifiers.PrefixFile != "" {
		if err := reg.LoadFile(cfg.Identifiers.PrefixFile); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Denylist is the built-in denylist plus configured entries.
func Denylist(cfg *config.Config) *namespace.Denylist {
	entries := append(append([]string{}, namespace.DefaultDenylist...), cfg.Discovery.Denylist...)
	return namespace.NewDenylist(entries...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// MappingStore opens the configured mapping table store. The closer releases
// its connection.
func MappingStore(ctx context.Context, cfg *config.Config, path string) (discovery.MappingStore, io.Closer, error) {
	switch cfg.Discovery.Store {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return discovery.NewRedisStore(client, cfg.Redis.Key), client, nil
	default:
		if path == "" {
			path = cfg.Discovery.OutputPath
		}
		return &discovery.FileStore{Path: path}, nopCloser{}, nil
	}
}

// PublishMappings loads a stored mapping table into the normalizer. A missing
// table is not an error.
func PublishMappings(ctx context.Context, store discovery.MappingStore, n *namespace.Normalizer, logger *zap.Logger) error {
	table, err := store.Load(ctx)
	if errors.Is(err, apperrors.ErrNotFound) {
		logger.Info("No prefix mapping table found, starting from the registry alone")
		return nil
	}
	if err != nil {
		return err
	}
	n.Publish(table.Mappings)
	logger.Info("Loaded prefix mapping table",
		zap.String("run_id", table.RunID),
		zap.Time("generated_at", table.GeneratedAt),
		zap.Int("mappings", len(table.Mappings)))
	return nil
}
