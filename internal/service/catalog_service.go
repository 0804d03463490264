package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"bizadmin/internal/domain"
	"bizadmin/internal/repository"
)

// CatalogService loads, heals and synthesizes a tenant's feature catalog.
// Policy: storage errors never propagate outward; callers get the computed
// static defaults instead.
type CatalogService struct {
	logger *zap.Logger

	mu     sync.Mutex
	healed map[string]bool // tenantID -> heal attempted this process
}

func NewCatalogService(logger *zap.Logger) *CatalogService {
	return &CatalogService{logger: logger, healed: map[string]bool{}}
}

// StaticDefaults are the seed rows: basic features enabled by default,
// advanced features disabled.
func StaticDefaults() []domain.Feature {
	rows := make([]domain.Feature, 0, len(domain.BasicFeatures)+len(domain.AdvancedFeatures))
	for _, d := range domain.BasicFeatures {
		rows = append(rows, domain.Feature{
			FeatureKey:     d.Key,
			Label:          d.Label,
			FeatureGroup:   d.Group,
			DefaultEnabled: true,
		})
	}
	for _, d := range domain.AdvancedFeatures {
		rows = append(rows, domain.Feature{
			FeatureKey:     d.Key,
			Label:          d.Label,
			FeatureGroup:   d.Group,
			DefaultEnabled: false,
		})
	}
	return rows
}

// Load returns the tenant's catalog sorted by (group, label) case-insensitive.
// Heals a legacy key type once per tenant per process; synthesizes the static
// defaults in memory when the table is absent, empty, or unreachable.
func (s *CatalogService) Load(ctx context.Context, store repository.CatalogStore, tenantID string) []domain.Feature {
	exists, err := store.Exists(ctx)
	if err != nil {
		s.logger.Warn("catalog probe failed, serving synthesized defaults",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return s.synthesize()
	}
	if !exists {
		return s.synthesize()
	}

	if healErr := s.healIfNeeded(ctx, store, tenantID); healErr != nil {
		s.logger.Warn("catalog heal failed, serving synthesized defaults",
			zap.String("tenant_id", tenantID), zap.Error(healErr))
		return s.synthesize()
	}

	if err := store.EnsureFeatures(ctx, StaticDefaults()); err != nil {
		s.logger.Warn("catalog seed failed",
			zap.String("tenant_id", tenantID), zap.Error(err))
	}

	features, err := store.List(ctx)
	if err != nil || len(features) == 0 {
		if err != nil {
			s.logger.Warn("catalog read failed, serving synthesized defaults",
				zap.String("tenant_id", tenantID), zap.Error(err))
		}
		return s.synthesize()
	}
	return features
}

// EnsureKeys auto-creates catalog rows for unknown feature keys referenced by
// an update payload: title-cased label, group "custom", disabled by default.
func (s *CatalogService) EnsureKeys(ctx context.Context, store repository.CatalogStore, keys []string) error {
	rows := make([]domain.Feature, 0, len(keys))
	for _, key := range keys {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		rows = append(rows, domain.Feature{
			FeatureKey:     key,
			Label:          titleCase(key),
			FeatureGroup:   "custom",
			DefaultEnabled: false,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return store.EnsureFeatures(ctx, rows)
}

// healIfNeeded rewrites a catalog whose key column drifted from the uniform
// BIGINT surrogate type. At most one attempt per tenant per process.
func (s *CatalogService) healIfNeeded(ctx context.Context, store repository.CatalogStore, tenantID string) error {
	keyType, err := store.KeyType(ctx)
	if err != nil {
		return err
	}
	if keyType == "bigint" {
		return nil
	}

	s.mu.Lock()
	if s.healed[tenantID] {
		s.mu.Unlock()
		return nil
	}
	s.healed[tenantID] = true
	s.mu.Unlock()

	snapshot, err := store.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := store.Rebuild(ctx, snapshot); err != nil {
		return err
	}
	s.logger.Info("catalog key type healed",
		zap.String("tenant_id", tenantID),
		zap.String("old_key_type", keyType),
		zap.Int("rows_preserved", len(snapshot)))
	return nil
}

func (s *CatalogService) synthesize() []domain.Feature {
	rows := StaticDefaults()
	sort.Slice(rows, func(i, j int) bool {
		gi, gj := strings.ToLower(rows[i].FeatureGroup), strings.ToLower(rows[j].FeatureGroup)
		if gi != gj {
			return gi < gj
		}
		li, lj := strings.ToLower(rows[i].Label), strings.ToLower(rows[j].Label)
		if li != lj {
			return li < lj
		}
		return rows[i].FeatureKey < rows[j].FeatureKey
	})
	return rows
}

// titleCase turns "credit_management" into "Credit Management".
func titleCase(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
