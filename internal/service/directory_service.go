package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"bizadmin/internal/domain"
	"bizadmin/internal/repository"
)

// DirectoryService owns the cross-tenant views and mutations of the master
// membership index.
type DirectoryService struct {
	tenants     repository.TenantsRepository
	memberships repository.MembershipsRepository
	provider    StoreProvider
	resolver    *ResolverService
	logger      *zap.Logger
}

func NewDirectoryService(
	tenants repository.TenantsRepository,
	memberships repository.MembershipsRepository,
	provider StoreProvider,
	resolver *ResolverService,
	logger *zap.Logger,
) *DirectoryService {
	return &DirectoryService{
		tenants:     tenants,
		memberships: memberships,
		provider:    provider,
		resolver:    resolver,
		logger:      logger,
	}
}

// MasterUser is a deduplicated cross-tenant user with its membership list.
type MasterUser struct {
	Email       string             `json:"email"`
	Memberships []MasterMembership `json:"memberships"`
}

type MasterMembership struct {
	TenantID     string `json:"tenant_id"`
	OrgName      string `json:"org_name"`
	TenantUserID int64  `json:"tenant_user_id"`
}

// MasterUsers deduplicates the membership index by email. includeTest bypasses
// the fake-account filtering heuristics.
func (s *DirectoryService) MasterUsers(ctx context.Context, includeTest bool) ([]MasterUser, error) {
	rows, err := s.memberships.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	orgNames := map[string]string{}
	byEmail := map[string][]MasterMembership{}
	for _, m := range rows {
		if !includeTest && looksLikeTestAccount(m.UserEmail) {
			continue
		}
		org, ok := orgNames[m.TenantID]
		if !ok {
			if t, err := s.tenants.GetTenant(ctx, m.TenantID); err == nil {
				org = t.OrgName
			}
			orgNames[m.TenantID] = org
		}
		byEmail[m.UserEmail] = append(byEmail[m.UserEmail], MasterMembership{
			TenantID:     m.TenantID,
			OrgName:      org,
			TenantUserID: m.TenantUserID,
		})
	}

	users := make([]MasterUser, 0, len(byEmail))
	for email, ms := range byEmail {
		users = append(users, MasterUser{Email: email, Memberships: ms})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

// looksLikeTestAccount flags throwaway identities so routine admin views stay
// readable. Heuristic only; includeTest shows everything.
func looksLikeTestAccount(email string) bool {
	email = strings.ToLower(email)
	at := strings.Index(email, "@")
	if at < 0 {
		return true
	}
	local, domainPart := email[:at], email[at+1:]
	if strings.Contains(local, "+") {
		return true
	}
	for _, marker := range []string{"test", "demo", "fake", "sample", "dummy"} {
		if strings.Contains(local, marker) {
			return true
		}
	}
	switch {
	case domainPart == "example.com", domainPart == "example.org",
		strings.HasSuffix(domainPart, ".test"), strings.HasSuffix(domainPart, ".invalid"),
		domainPart == "mailinator.com":
		return true
	}
	return false
}

// MapUser is the explicit membership upsert. A zero userID is resolved from
// the tenant database by email.
func (s *DirectoryService) MapUser(ctx context.Context, tenantID, email string, userID int64) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if tenantID == "" || email == "" {
		return fmt.Errorf("tenant_id and email are required: %w", domain.ErrValidation)
	}
	if _, err := s.tenants.GetTenant(ctx, tenantID); err != nil {
		return err
	}
	if userID == 0 {
		stores, err := s.provider.Stores(ctx, tenantID)
		if err != nil {
			return err
		}
		user, err := stores.Users.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		userID = user.UserID
	}
	return s.memberships.UpsertMembership(ctx, tenantID, email, userID)
}

// UnmapUser deletes by (tenant, email) and reports the affected count.
func (s *DirectoryService) UnmapUser(ctx context.Context, tenantID, email string) (int64, error) {
	return s.memberships.DeleteMembership(ctx, tenantID, email)
}

// AutoMap resolves the single authoritative tenant for an email and corrects
// the membership row along the way.
func (s *DirectoryService) AutoMap(ctx context.Context, email string) (*Resolution, error) {
	res, err := s.resolver.Resolve(ctx, email, "")
	if err != nil {
		return nil, err
	}
	if err := s.memberships.UpsertMembership(ctx, res.TenantID, res.Email, res.TenantUserID); err != nil {
		return nil, err
	}
	return res, nil
}

// TenantUsers lists a tenant's local users.
func (s *DirectoryService) TenantUsers(ctx context.Context, tenantID string) ([]*domain.TenantUser, error) {
	if _, err := s.tenants.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}
	stores, err := s.provider.Stores(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return stores.Users.List(ctx)
}

// SyncTenantUsers backfills membership rows from a tenant's local users into
// the master directory. Idempotent: rerunning changes nothing.
func (s *DirectoryService) SyncTenantUsers(ctx context.Context, tenantID string) (int, error) {
	users, err := s.TenantUsers(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	synced := 0
	for _, u := range users {
		if u.Email == "" {
			continue
		}
		if err := s.memberships.UpsertMembership(ctx, tenantID, u.Email, u.UserID); err != nil {
			s.logger.Warn("membership sync failed",
				zap.String("tenant_id", tenantID), zap.String("email", u.Email), zap.Error(err))
			continue
		}
		synced++
	}
	return synced, nil
}
