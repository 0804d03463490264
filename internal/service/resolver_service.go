package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"bizadmin/internal/domain"
	"bizadmin/internal/repository"
)

// ResolverService decides which tenant membership is authoritative for a user
// identity. Explicit tenant selection always wins; everything below it is a
// clearly-labeled best-effort heuristic.
type ResolverService struct {
	tenants          repository.TenantsRepository
	memberships      repository.MembershipsRepository
	provider         StoreProvider
	internalTenantID string
	logger           *zap.Logger
}

func NewResolverService(
	tenants repository.TenantsRepository,
	memberships repository.MembershipsRepository,
	provider StoreProvider,
	internalTenantID string,
	logger *zap.Logger,
) *ResolverService {
	if internalTenantID == "" {
		internalTenantID = domain.SystemTenantID
	}
	return &ResolverService{
		tenants:          tenants,
		memberships:      memberships,
		provider:         provider,
		internalTenantID: internalTenantID,
		logger:           logger,
	}
}

// Resolution is the routing answer for one request.
type Resolution struct {
	TenantID     string
	TenantUserID int64
	Email        string
	Heuristic    bool // true when the tenant was picked without an explicit selector
}

// Resolve maps an identifier (email, or a tenant-local numeric id when an
// explicit tenant is given) to an authoritative (tenant, local user) pair.
func (s *ResolverService) Resolve(ctx context.Context, identifier, explicitTenantID string) (*Resolution, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("user identifier is required: %w", domain.ErrValidation)
	}

	if !strings.Contains(identifier, "@") {
		// A bare surrogate id is tenant-local; it only means something inside
		// an explicitly selected tenant.
		userID, err := strconv.ParseInt(identifier, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("identifier must be an email or a numeric user id: %w", domain.ErrValidation)
		}
		if explicitTenantID == "" {
			return nil, fmt.Errorf("tenantId is required when addressing a user by numeric id: %w", domain.ErrValidation)
		}
		return s.resolveByLocalID(ctx, explicitTenantID, userID)
	}

	email := strings.ToLower(identifier)
	if explicitTenantID != "" {
		return s.resolveExplicit(ctx, explicitTenantID, email)
	}
	return s.resolveHeuristic(ctx, email)
}

func (s *ResolverService) resolveByLocalID(ctx context.Context, tenantID string, userID int64) (*Resolution, error) {
	if _, err := s.tenants.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	stores, err := s.provider.Stores(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	user, err := stores.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Keep the master index in step with what we just verified.
	if err := s.memberships.UpsertMembership(ctx, tenantID, user.Email, user.UserID); err != nil {
		s.logger.Warn("membership refresh failed",
			zap.String("tenant_id", tenantID), zap.Error(err))
	}
	return &Resolution{TenantID: tenantID, TenantUserID: user.UserID, Email: strings.ToLower(user.Email)}, nil
}

// resolveExplicit verifies the membership for the chosen tenant and
// self-heals a stale tenant-local user id by re-lookup-by-email.
func (s *ResolverService) resolveExplicit(ctx context.Context, tenantID, email string) (*Resolution, error) {
	if _, err := s.tenants.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	stores, err := s.provider.Stores(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var storedID int64
	rows, err := s.memberships.ListByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	for _, m := range rows {
		if m.TenantID == tenantID {
			storedID = m.TenantUserID
			break
		}
	}

	if storedID != 0 {
		if u, err := stores.Users.GetByID(ctx, storedID); err == nil && strings.EqualFold(u.Email, email) {
			return &Resolution{TenantID: tenantID, TenantUserID: storedID, Email: email}, nil
		}
	}

	// Stale or missing mapping: the tenant database is the source of truth.
	user, err := stores.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("user %s not found in tenant %s: %w", email, tenantID, domain.ErrNotFound)
		}
		return nil, err
	}
	if err := s.memberships.UpsertMembership(ctx, tenantID, email, user.UserID); err != nil {
		s.logger.Warn("membership self-heal failed",
			zap.String("tenant_id", tenantID), zap.String("email", email), zap.Error(err))
	}
	return &Resolution{TenantID: tenantID, TenantUserID: user.UserID, Email: email}, nil
}

// resolveHeuristic picks among all memberships for the email: the internal
// tenant is excluded while other candidates remain, an organization whose
// name correlates with the email's local-part is preferred, and otherwise the
// earliest-registered candidate wins deterministically.
func (s *ResolverService) resolveHeuristic(ctx context.Context, email string) (*Resolution, error) {
	rows, err := s.memberships.ListByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no tenant membership for %s: %w", email, domain.ErrNotFound)
	}

	candidates := make([]*domain.Membership, 0, len(rows))
	var internal *domain.Membership
	for _, m := range rows {
		if m.TenantID == s.internalTenantID {
			internal = m
			continue
		}
		candidates = append(candidates, m)
	}
	if len(candidates) == 0 {
		candidates = append(candidates, internal)
	}

	chosen := candidates[0] // rows come back earliest-created first
	if len(candidates) > 1 {
		if m := s.correlateByOrgName(ctx, email, candidates); m != nil {
			chosen = m
		}
		s.logger.Info("heuristic tenant resolution",
			zap.String("email", email),
			zap.String("tenant_id", chosen.TenantID),
			zap.Int("candidates", len(candidates)))
	}

	res := &Resolution{
		TenantID:     chosen.TenantID,
		TenantUserID: chosen.TenantUserID,
		Email:        email,
		Heuristic:    true,
	}
	if res.TenantUserID == 0 {
		// Stale index row; repair from the tenant database.
		stores, err := s.provider.Stores(ctx, res.TenantID)
		if err != nil {
			return nil, err
		}
		user, err := stores.Users.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		res.TenantUserID = user.UserID
		if err := s.memberships.UpsertMembership(ctx, res.TenantID, email, user.UserID); err != nil {
			s.logger.Warn("membership self-heal failed",
				zap.String("tenant_id", res.TenantID), zap.String("email", email), zap.Error(err))
		}
	}
	return res, nil
}

func (s *ResolverService) correlateByOrgName(ctx context.Context, email string, candidates []*domain.Membership) *domain.Membership {
	localPart := normalizeToken(strings.SplitN(email, "@", 2)[0])
	if len(localPart) < 3 {
		return nil
	}
	for _, m := range candidates {
		tenant, err := s.tenants.GetTenant(ctx, m.TenantID)
		if err != nil {
			continue
		}
		org := normalizeToken(tenant.OrgName)
		if len(org) < 3 {
			continue
		}
		if strings.Contains(org, localPart) || strings.Contains(localPart, org) {
			return m
		}
	}
	return nil
}

// normalizeToken lowers and strips everything but letters and digits, so
// "Acme Fuels Ltd." correlates with "acmefuels".
func normalizeToken(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
