package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"bizadmin/internal/domain"
	"bizadmin/internal/repository"
)

// EntitlementService merges per-user overrides from the two coexisting
// schemas into one effective feature set, and performs full-replace updates.
type EntitlementService struct {
	catalog *CatalogService
	audit   repository.AuditRepository
	logger  *zap.Logger
}

func NewEntitlementService(catalog *CatalogService, audit repository.AuditRepository, logger *zap.Logger) *EntitlementService {
	return &EntitlementService{catalog: catalog, audit: audit, logger: logger}
}

// GetEffectiveFeatures resolves the user's entitlements against the catalog:
// flat overrides replace legacy overrides for the same feature; absence of
// any override falls back to the catalog default.
func (s *EntitlementService) GetEffectiveFeatures(ctx context.Context, stores *TenantStores, tenantID string, userID int64) ([]domain.EffectiveFeature, error) {
	features := s.catalog.Load(ctx, stores.Catalog, tenantID)
	if len(features) == 0 {
		return []domain.EffectiveFeature{}, nil
	}

	merged, err := s.mergedOverrides(ctx, stores, features, userID)
	if err != nil {
		return nil, err
	}

	effective := make([]domain.EffectiveFeature, 0, len(features))
	for _, f := range features {
		allowed := f.DefaultEnabled
		isOverride := false
		if o, ok := merged[f.FeatureKey]; ok {
			allowed = o.Allowed
			isOverride = o.Allowed != f.DefaultEnabled
		}
		effective = append(effective, domain.EffectiveFeature{
			FeatureKey: f.FeatureKey,
			Label:      f.Label,
			Group:      f.FeatureGroup,
			Allowed:    allowed,
			IsOverride: isOverride,
		})
	}
	return effective, nil
}

// mergedOverrides indexes legacy rows by catalog id, flat rows by key, and
// lets flat replace legacy per feature. Never summed or intersected.
func (s *EntitlementService) mergedOverrides(ctx context.Context, stores *TenantStores, features []domain.Feature, userID int64) (map[string]domain.Override, error) {
	keyByID := make(map[int64]string, len(features))
	for _, f := range features {
		if f.FeatureID != 0 {
			keyByID[f.FeatureID] = f.FeatureKey
		}
	}

	merged := map[string]domain.Override{}

	if stores.Legacy != nil && stores.Legacy.Present(ctx) {
		legacy, err := stores.Legacy.ListForUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to read legacy overrides: %w", err)
		}
		for _, o := range legacy {
			key, ok := keyByID[o.FeatureID]
			if !ok {
				// Orphan row pointing at a feature the catalog no longer has.
				continue
			}
			o.FeatureKey = key
			merged[key] = o
		}
	}

	if stores.Flat != nil && stores.Flat.Present(ctx) {
		flat, err := stores.Flat.ListForUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to read flat overrides: %w", err)
		}
		for _, o := range flat {
			merged[o.FeatureKey] = o
		}
	}

	return merged, nil
}

// SetFeatures is the full-replace entitlement write: the desired set becomes
// the user's complete override state. An empty desired set means "every
// feature explicitly disabled", not "no change".
func (s *EntitlementService) SetFeatures(ctx context.Context, stores *TenantStores, tenantID string, user *domain.TenantUser, desired []domain.DesiredFeature, developerEmail string) ([]domain.EffectiveFeature, error) {
	normalized, err := normalizeDesired(desired)
	if err != nil {
		return nil, err
	}

	features := s.catalog.Load(ctx, stores.Catalog, tenantID)

	if len(normalized) == 0 {
		// Preserved legacy contract: an empty payload disables everything.
		s.logger.Warn("empty entitlement payload, disabling every feature",
			zap.String("tenant_id", tenantID), zap.Int64("user_id", user.UserID))
		for _, f := range features {
			normalized = append(normalized, domain.Override{FeatureKey: f.FeatureKey, Allowed: false})
		}
	}

	// Unknown keys become catalog rows instead of rejections.
	known := make(map[string]bool, len(features))
	for _, f := range features {
		known[f.FeatureKey] = true
	}
	var missing []string
	for _, o := range normalized {
		if !known[o.FeatureKey] {
			missing = append(missing, o.FeatureKey)
		}
	}
	if len(missing) > 0 {
		if err := s.catalog.EnsureKeys(ctx, stores.Catalog, missing); err != nil {
			s.logger.Warn("failed to auto-create catalog rows",
				zap.String("tenant_id", tenantID), zap.Strings("keys", missing), zap.Error(err))
		}
		features = s.catalog.Load(ctx, stores.Catalog, tenantID)
	}

	before, err := s.GetEffectiveFeatures(ctx, stores, tenantID, user.UserID)
	if err != nil {
		return nil, err
	}

	// Primary write: the flat schema is the system of record.
	if err := stores.Flat.ReplaceForUser(ctx, user.UserID, normalized); err != nil {
		return nil, fmt.Errorf("failed to replace overrides: %w", err)
	}

	// Best-effort mirror into the legacy schema when it exists.
	if stores.Legacy != nil && stores.Legacy.Present(ctx) {
		idByKey := make(map[string]int64, len(features))
		for _, f := range features {
			idByKey[f.FeatureKey] = f.FeatureID
		}
		mirror := make([]domain.Override, 0, len(normalized))
		for _, o := range normalized {
			o.FeatureID = idByKey[o.FeatureKey]
			mirror = append(mirror, o)
		}
		if err := stores.Legacy.ReplaceForUser(ctx, user.UserID, mirror); err != nil {
			s.logger.Warn("legacy override mirror failed",
				zap.String("tenant_id", tenantID), zap.Int64("user_id", user.UserID), zap.Error(err))
		}
	}

	after, err := s.GetEffectiveFeatures(ctx, stores, tenantID, user.UserID)
	if err != nil {
		return nil, err
	}

	s.recordChanges(ctx, developerEmail, user.Email, before, after)
	return after, nil
}

// recordChanges appends one audit entry per feature whose effective value
// changed. Audit failures never block the functional write.
func (s *EntitlementService) recordChanges(ctx context.Context, developerEmail, targetEmail string, before, after []domain.EffectiveFeature) {
	prev := make(map[string]bool, len(before))
	for _, f := range before {
		prev[f.FeatureKey] = f.Allowed
	}
	for _, f := range after {
		old, existed := prev[f.FeatureKey]
		if existed && old == f.Allowed {
			continue
		}
		action := domain.AuditActionDisabled
		if f.Allowed {
			action = domain.AuditActionEnabled
		}
		entry := &domain.AuditEntry{
			DeveloperEmail:  developerEmail,
			TargetUserEmail: targetEmail,
			FeatureKey:      f.FeatureKey,
			Action:          action,
		}
		if err := s.audit.Append(ctx, entry); err != nil {
			s.logger.Warn("audit append failed",
				zap.String("feature_key", f.FeatureKey), zap.Error(err))
		}
	}
}

func normalizeDesired(desired []domain.DesiredFeature) ([]domain.Override, error) {
	out := make([]domain.Override, 0, len(desired))
	seen := map[string]int{}
	for _, d := range desired {
		key := strings.ToLower(strings.TrimSpace(d.FeatureKey))
		if key == "" {
			return nil, fmt.Errorf("feature_key is required: %w", domain.ErrValidation)
		}
		if d.Allowed == nil {
			return nil, fmt.Errorf("allowed is required for feature %q: %w", key, domain.ErrValidation)
		}
		if i, ok := seen[key]; ok {
			out[i].Allowed = *d.Allowed // last entry wins
			continue
		}
		seen[key] = len(out)
		out = append(out, domain.Override{FeatureKey: key, Allowed: *d.Allowed})
	}
	return out, nil
}
