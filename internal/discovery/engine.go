// Package discovery builds the URI prefix -> CURIE namespace table by
// sampling every identifier in a graph store.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/apperrors"
	"github.com/NCATS-Tangerine/tkg-beacon/internal/namespace"
)

const (
	DefaultBatchSize     = 2000
	DefaultSkipThreshold = 100
	DefaultFetchTimeout  = 30 * time.Second
)

// IdentifierSource returns up to limit distinct identifiers that do not start
// with any of the excluded prefixes.
type IdentifierSource interface {
	DistinctIdentifiers(ctx context.Context, excludePrefixes []string, limit int) ([]string, error)
}

// Contractor lists the CURIE candidates for a URI.
type Contractor interface {
	Contractions(uri string) []string
}

// Config tunes a discovery run. Zero values take the defaults.
type Config struct {
	BatchSize     int
	SkipThreshold int
	FetchTimeout  time.Duration
}

// Result is the outcome of a run.
type Result struct {
	// Mapping is uri prefix -> curie prefix.
	Mapping map[string]string
	// Skipped holds the sorted identifiers that could not be contracted.
	Skipped []string
	Batches int
}

// Mappings returns the mapping as a sorted slice.
func (r *Result) Mappings() []namespace.PrefixMapping {
	out := make([]namespace.PrefixMapping, 0, len(r.Mapping))
	for uri, ns := range r.Mapping {
		out = append(out, namespace.PrefixMapping{URIPrefix: uri, CURIEPrefix: ns})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CURIEPrefix != out[j].CURIEPrefix {
			return out[i].CURIEPrefix < out[j].CURIEPrefix
		}
		return out[i].URIPrefix < out[j].URIPrefix
	})
	return out
}

// Engine runs prefix discovery against an identifier source.
type Engine struct {
	source     IdentifierSource
	contractor Contractor
	denylist   *namespace.Denylist
	cfg        Config
	logger     *zap.Logger
}

// NewEngine creates a discovery engine.
func NewEngine(source IdentifierSource, contractor Contractor, denylist *namespace.Denylist, cfg Config, logger *zap.Logger) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.SkipThreshold <= 0 {
		cfg.SkipThreshold = DefaultSkipThreshold
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		source:     source,
		contractor: contractor,
		denylist:   denylist,
		cfg:        cfg,
		logger:     logger,
	}
}

// DiscoverMappings fetches batches of unexplained identifiers until the store
// has none left. When more than SkipThreshold identifiers cannot be
// contracted the run stops and returns them with ErrSkipThresholdExceeded so
// an operator can triage them.
func (e *Engine) DiscoverMappings(ctx context.Context) (*Result, error) {
	mapping := make(map[string]string)
	skipped := make(map[string]struct{})
	seen := make(map[string]struct{})
	result := &Result{Mapping: mapping}

	for {
		batch, err := e.fetch(ctx, e.exclusions(mapping, skipped))
		if err != nil {
			result.Skipped = sortedKeys(skipped)
			return result, err
		}
		result.Batches++

		fresh := 0
		for _, uri := range batch {
			if _, dup := seen[uri]; dup {
				continue
			}
			seen[uri] = struct{}{}
			fresh++

			if e.denylist.Matches(uri) {
				continue
			}

			uriPrefix, ns, ok := e.contract(uri)
			if !ok {
				skipped[uri] = struct{}{}
				continue
			}
			if _, known := mapping[uriPrefix]; !known {
				e.logger.Info("Discovered prefix",
					zap.String("curie_prefix", ns),
					zap.String("uri_prefix", uriPrefix))
			}
			mapping[uriPrefix] = ns
		}

		discoveryBatchesTotal.Inc()
		discoverySkipped.Set(float64(len(skipped)))

		if len(skipped) > e.cfg.SkipThreshold {
			result.Skipped = sortedKeys(skipped)
			e.logger.Warn("Too many identifiers could not be contracted, stopping for manual triage",
				zap.Int("skipped", len(skipped)),
				zap.Int("threshold", e.cfg.SkipThreshold))
			return result, fmt.Errorf("%d identifiers skipped: %w", len(skipped), apperrors.ErrSkipThresholdExceeded)
		}

		if fresh == 0 {
			result.Skipped = sortedKeys(skipped)
			e.logger.Info("Prefix discovery finished",
				zap.Int("mappings", len(mapping)),
				zap.Int("skipped", len(skipped)),
				zap.Int("batches", result.Batches))
			return result, nil
		}
	}
}

func (e *Engine) fetch(ctx context.Context, exclude []string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	batch, err := e.source.DistinctIdentifiers(ctx, exclude, e.cfg.BatchSize)
	if err != nil {
		if errors.Is(err, apperrors.ErrStoreUnavailable) {
			return nil, fmt.Errorf("fetching identifiers: %w", err)
		}
		return nil, fmt.Errorf("fetching identifiers: %w: %w", apperrors.ErrStoreUnavailable, err)
	}
	return batch, nil
}

// contract returns the literal URI prefix and namespace of uri's shortest
// CURIE. ok is false when there is no candidate or the local id is empty.
func (e *Engine) contract(uri string) (uriPrefix, ns string, ok bool) {
	c, found := namespace.Shortest(e.contractor.Contractions(uri))
	if !found {
		return "", "", false
	}
	ns, local, valid := namespace.Split(c)
	if !valid {
		return "", "", false
	}
	return uri[:len(uri)-len(local)], ns, true
}

func (e *Engine) exclusions(mapping map[string]string, skipped map[string]struct{}) []string {
	exclude := make([]string, 0, len(mapping)+len(skipped))
	for p := range mapping {
		exclude = append(exclude, p)
	}
	exclude = append(exclude, e.denylist.Entries()...)
	for s := range skipped {
		exclude = append(exclude, s)
	}
	sort.Strings(exclude)
	return exclude
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
