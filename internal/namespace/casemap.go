package namespace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
)

// PrefixSource lists the distinct identifier prefixes stored in the graph.
type PrefixSource interface {
	IdentifierPrefixes(ctx context.Context) ([]string, error)
}

// CaseMap maps folded CURIE prefixes to the casing used by the graph store.
// The map is built by one scan of the store, at most once per process; a
// failed scan is not remembered, so a later call tries again.
type CaseMap struct {
	source  PrefixSource
	timeout time.Duration
	logger  *zap.Logger

	group singleflight.Group

	mu       sync.RWMutex
	prefixes map[string]string
}

// NewCaseMap creates a lazily built case map. timeout bounds the store scan;
// zero means no bound beyond the caller's context.
func NewCaseMap(source PrefixSource, timeout time.Duration, logger *zap.Logger) *CaseMap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CaseMap{source: source, timeout: timeout, logger: logger}
}

// Prefixes returns the case map, scanning the store on first use. Every
// caller gets the same map, which must not be modified. A caller whose
// context ends first gets its context error.
func (c *CaseMap) Prefixes(ctx context.Context) (map[string]string, error) {
	if m := c.cached(); m != nil {
		return m, nil
	}

	ch := c.group.DoChan("prefixes", func() (any, error) {
		if m := c.cached(); m != nil {
			return m, nil
		}
		m, err := c.build(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.prefixes = m
		c.mu.Unlock()
		return m, nil
	})
	// A caller that gives up leaves the shared scan running for the others.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]string), nil
	}
}

// Warm builds the map ahead of the first request.
func (c *CaseMap) Warm(ctx context.Context) error {
	_, err := c.Prefixes(ctx)
	return err
}

// Ready reports whether the map has been built.
func (c *CaseMap) Ready() bool {
	return c.cached() != nil
}

// NormalizeCase rewrites the namespace of curie to the casing stored in the
// graph. Identifiers without a namespace, unknown namespaces and store
// failures all leave the input unchanged.
func (c *CaseMap) NormalizeCase(ctx context.Context, curie string) string {
	ns, local, found := cutNamespace(curie)
	if !found {
		return curie
	}

	m, err := c.Prefixes(ctx)
	if err != nil {
		c.logger.Warn("Case map unavailable, passing identifier through",
			zap.String("curie", curie),
			zap.Error(err))
		return curie
	}

	canonical, ok := m[foldKey(ns)]
	if !ok || canonical == ns {
		return curie
	}
	caseCorrectionsTotal.Inc()
	return Join(canonical, local)
}

func (c *CaseMap) cached() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prefixes
}

func (c *CaseMap) build(ctx context.Context) (map[string]string, error) {
	// The scan is shared by every waiting caller, so it must not die with
	// whichever request happened to start it.
	ctx = context.WithoutCancel(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	prefixes, err := c.source.IdentifierPrefixes(ctx)
	if err != nil {
		caseMapBuildsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("scanning identifier prefixes: %w", err)
	}

	m := make(map[string]string, len(prefixes))
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		key := foldKey(p)
		if existing, ok := m[key]; ok && existing != p {
			c.logger.Warn("Identifier prefix appears in the graph with multiple cases",
				zap.String("kept", p),
				zap.String("replaced", existing))
		}
		m[key] = p
	}

	caseMapBuildsTotal.WithLabelValues("ok").Inc()
	c.logger.Info("Built identifier case map",
		zap.Int("prefixes", len(m)),
		zap.Duration("duration", time.Since(start)))
	return m, nil
}

// foldKey is the case-insensitive lookup key for a namespace. A Caser is
// stateful, so each call gets its own.
func foldKey(ns string) string {
	return cases.Fold().String(ns)
}
