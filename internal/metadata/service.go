// Package metadata serves the beacon's concept categories, knowledge map and
// predicates from precomputed summary files.
package metadata

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/NCATS-Tangerine/tkg-beacon/internal/biolink"
	"github.com/NCATS-Tangerine/tkg-beacon/pkg/types"
)

// DefaultTTL is how long a computed summary is served before the files are
// read again.
const DefaultTTL = 7 * 24 * time.Hour

const (
	keyCategories   = "categories"
	keyKnowledgeMap = "knowledge_map"
	keyPredicates   = "predicates"
)

type cacheEntry struct {
	value   any
	expires time.Time
}

// Service computes and caches the metadata endpoints.
type Service struct {
	dir    string
	model  *biolink.Model
	ttl    time.Duration
	logger *zap.Logger

	group   singleflight.Group
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
	ready   atomic.Bool
}

// NewService reads summaries from dir, normally <data_dir>/<beacon_name>.
func NewService(dir string, model *biolink.Model, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		dir:     dir,
		model:   model,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Warm computes all three summaries concurrently. The service reports ready
// once they have all succeeded.
func (s *Service) Warm(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.Categories(ctx)
		return err
	})
	g.Go(func() error {
		_, err := s.KnowledgeMap(ctx)
		return err
	})
	g.Go(func() error {
		_, err := s.Predicates(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("warming metadata: %w", err)
	}
	s.ready.Store(true)
	s.logger.Info("Metadata cache warmed", zap.String("dir", s.dir))
	return nil
}

// Ready reports whether Warm has completed.
func (s *Service) Ready() bool {
	return s.ready.Load()
}

// Categories sums node frequencies per category, highest first. Categories
// outside the Biolink model are reported as the default category with the
// original name kept as local_category.
func (s *Service) Categories(ctx context.Context) ([]types.BeaconConceptCategory, error) {
	return cached(ctx, s, keyCategories, s.computeCategories)
}

// KnowledgeMap groups edges by (subject category, edge type, object category).
func (s *Service) KnowledgeMap(ctx context.Context) ([]types.BeaconKnowledgeMapStatement, error) {
	return cached(ctx, s, keyKnowledgeMap, s.computeKnowledgeMap)
}

// Predicates groups edges by edge type and relation.
func (s *Service) Predicates(ctx context.Context) ([]types.BeaconPredicate, error) {
	return cached(ctx, s, keyPredicates, s.computePredicates)
}

func cached[T any](ctx context.Context, s *Service, key string, compute func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	s.mu.Lock()
	entry, ok := s.entries[key]
	s.mu.Unlock()
	if ok && s.now().Before(entry.expires) {
		cacheRequests.WithLabelValues(key, "hit").Inc()
		return entry.value.(T), nil
	}
	cacheRequests.WithLabelValues(key, "miss").Inc()

	v, err, _ := s.group.Do(key, func() (any, error) {
		value, err := compute()
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.entries[key] = cacheEntry{value: value, expires: s.now().Add(s.ttl)}
		s.mu.Unlock()
		return value, nil
	})
	if err != nil {
		s.logger.Error("Failed to compute metadata", zap.String("kind", key), zap.Error(err))
		return zero, err
	}
	return v.(T), nil
}

func (s *Service) computeCategories() ([]types.BeaconConceptCategory, error) {
	rows, err := ReadNodeSummary(filepath.Join(s.dir, NodeSummaryFile))
	if err != nil {
		return nil, err
	}

	freq := make(map[string]int64)
	for _, row := range rows {
		freq[row.Category] += row.Frequency
	}

	def, _ := s.model.Class(biolink.DefaultCategory)
	out := make([]types.BeaconConceptCategory, 0, len(freq))
	for category, n := range freq {
		c := types.BeaconConceptCategory{
			Category:      category,
			LocalCategory: category,
			Frequency:     n,
		}
		if el, ok := s.model.Class(category); ok {
			c.Description = el.Description
		} else {
			c.Category = biolink.DefaultCategory
			c.Description = def.Description
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].LocalCategory < out[j].LocalCategory
	})
	return out, nil
}

type triple struct {
	subject, edgeType, object string
}

func (s *Service) computeKnowledgeMap() ([]types.BeaconKnowledgeMapStatement, error) {
	rows, err := ReadEdgeSummary(filepath.Join(s.dir, EdgeSummaryFile))
	if err != nil {
		return nil, err
	}

	freq := make(map[triple]int64)
	subjectPrefixes := make(map[triple]map[string]struct{})
	objectPrefixes := make(map[triple]map[string]struct{})
	for _, row := range rows {
		k := triple{row.SubjectCategory, row.EdgeType, row.ObjectCategory}
		freq[k] += row.Frequency
		addTo(subjectPrefixes, k, row.SubjectPrefix)
		addTo(objectPrefixes, k, row.ObjectPrefix)
	}

	out := make([]types.BeaconKnowledgeMapStatement, 0, len(freq))
	for k, n := range freq {
		out = append(out, types.BeaconKnowledgeMapStatement{
			Subject: types.BeaconKnowledgeMapSubject{
				Category: k.subject,
				Prefixes: sortedSet(subjectPrefixes[k]),
			},
			Predicate: types.BeaconKnowledgeMapPredicate{EdgeLabel: k.edgeType},
			Object: types.BeaconKnowledgeMapObject{
				Category: k.object,
				Prefixes: sortedSet(objectPrefixes[k]),
			},
			Frequency: n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		ka := a.Subject.Category + "|" + a.Predicate.EdgeLabel + "|" + a.Object.Category
		kb := b.Subject.Category + "|" + b.Predicate.EdgeLabel + "|" + b.Object.Category
		return ka < kb
	})
	return out, nil
}

func (s *Service) computePredicates() ([]types.BeaconPredicate, error) {
	rows, err := ReadEdgeSummary(filepath.Join(s.dir, EdgeSummaryFile))
	if err != nil {
		return nil, err
	}

	type key struct{ edgeType, relation string }
	freq := make(map[key]int64)
	for _, row := range rows {
		freq[key{row.EdgeType, row.Relation}] += row.Frequency
	}

	def, _ := s.model.Slot(biolink.DefaultEdgeLabel)
	out := make([]types.BeaconPredicate, 0, len(freq))
	for k, n := range freq {
		p := types.BeaconPredicate{
			EdgeLabel: k.edgeType,
			Relation:  k.relation,
			Frequency: n,
		}
		if el, ok := s.model.Slot(k.edgeType); ok {
			p.Description = el.Description
		} else {
			p.EdgeLabel = biolink.DefaultEdgeLabel
			p.Description = def.Description
			if p.Relation == "" {
				p.Relation = k.edgeType
			}
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		if out[i].EdgeLabel != out[j].EdgeLabel {
			return out[i].EdgeLabel < out[j].EdgeLabel
		}
		return out[i].Relation < out[j].Relation
	})
	return out, nil
}

func addTo(m map[triple]map[string]struct{}, k triple, v string) {
	if strings.TrimSpace(v) == "" {
		return
	}
	set, ok := m[k]
	if !ok {
		set = make(map[string]struct{})
		m[k] = set
	}
	set[v] = struct{}{}
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
