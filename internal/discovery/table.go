package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/apperrors"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/namespace"
)

// MappingTable is the persisted output of a discovery run.
type MappingTable struct {
	RunID       string                    `yaml:"run_id"`
	GeneratedAt time.Time                 `yaml:"generated_at"`
	Mappings    []namespace.PrefixMapping `yaml:"mappings"`
	Skipped     []string                  `yaml:"skipped,omitempty"`
}

// NewMappingTable stamps a run result with a fresh run id.
func NewMappingTable(r *Result) *MappingTable {
	return &MappingTable{
		RunID:       uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		Mappings:    r.Mappings(),
		Skipped:     r.Skipped,
	}
}

// MappingStore persists mapping tables.
type MappingStore interface {
	Load(ctx context.Context) (*MappingTable, error)
	Save(ctx context.Context, t *MappingTable) error
}

// FileStore keeps the table in a YAML file.
type FileStore struct {
	Path string
}

// Load reads the table. A missing file is ErrNotFound.
func (s *FileStore) Load(ctx context.Context) (*MappingTable, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("mapping file %s: %w", s.Path, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("reading mapping file: %w", err)
	}
	var t MappingTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing mapping file %s: %w", s.Path, err)
	}
	return &t, nil
}

// Save writes the table through a temporary file so readers never see a
// partial document.
func (s *FileStore) Save(ctx context.Context, t *MappingTable) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding mapping table: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".mapping-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing mapping table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replacing mapping file: %w", err)
	}
	return nil
}

// RedisStore keeps the table under a key prefix: a hash of uri prefix ->
// curie prefix, a set of skipped identifiers and a hash of run metadata.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store writing under key.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "beacon:prefix-mappings"
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) mappingsKey() string { return s.key + ":mappings" }
func (s *RedisStore) skippedKey() string  { return s.key + ":skipped" }
func (s *RedisStore) metaKey() string     { return s.key + ":meta" }

// Load reads the current table.
func (s *RedisStore) Load(ctx context.Context) (*MappingTable, error) {
	meta, err := s.client.HGetAll(ctx, s.metaKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("reading mapping metadata: %w", err)
	}
	if len(meta) == 0 {
		return nil, fmt.Errorf("mapping table %s: %w", s.key, apperrors.ErrNotFound)
	}

	pairs, err := s.client.HGetAll(ctx, s.mappingsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("reading mappings: %w", err)
	}
	skipped, err := s.client.SMembers(ctx, s.skippedKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("reading skipped identifiers: %w", err)
	}

	t := &MappingTable{RunID: meta["run_id"], Skipped: skipped}
	if ts, ok := meta["generated_at"]; ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			t.GeneratedAt = parsed
		}
	}
	res := &Result{Mapping: pairs}
	t.Mappings = res.Mappings()
	sort.Strings(t.Skipped)
	return t, nil
}

// Save replaces the stored table in one transaction.
func (s *RedisStore) Save(ctx context.Context, t *MappingTable) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.mappingsKey(), s.skippedKey(), s.metaKey())
		if len(t.Mappings) > 0 {
			values := make([]any, 0, len(t.Mappings)*2)
			for _, m := range t.Mappings {
				values = append(values, m.URIPrefix, m.CURIEPrefix)
			}
			pipe.HSet(ctx, s.mappingsKey(), values...)
		}
		if len(t.Skipped) > 0 {
			members := make([]any, len(t.Skipped))
			for i, v := range t.Skipped {
				members[i] = v
			}
			pipe.SAdd(ctx, s.skippedKey(), members...)
		}
		pipe.HSet(ctx, s.metaKey(),
			"run_id", t.RunID,
			"generated_at", t.GeneratedAt.Format(time.RFC3339Nano))
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving mapping table: %w", err)
	}
	return nil
}
