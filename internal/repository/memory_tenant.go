package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"bizadmin/internal/domain"
)

// In-memory tenant-database stores. One set per simulated tenant.

type MemoryTenantUsersRepository struct {
	mu    sync.RWMutex
	users map[int64]domain.TenantUser
	next  int64
}

func NewMemoryTenantUsersRepository() *MemoryTenantUsersRepository {
	return &MemoryTenantUsersRepository{users: map[int64]domain.TenantUser{}, next: 1}
}

var _ TenantUsersRepository = (*MemoryTenantUsersRepository)(nil)

func (r *MemoryTenantUsersRepository) GetByID(_ context.Context, userID int64) (*domain.TenantUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, fmt.Errorf("user not found: user_id=%d: %w", userID, domain.ErrNotFound)
	}
	out := u
	return &out, nil
}

func (r *MemoryTenantUsersRepository) GetByEmail(_ context.Context, email string) (*domain.TenantUser, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id := range r.users {
		if strings.ToLower(r.users[id].Email) == email {
			out := r.users[id]
			return &out, nil
		}
	}
	return nil, fmt.Errorf("user not found: email=%s: %w", email, domain.ErrNotFound)
}

func (r *MemoryTenantUsersRepository) List(_ context.Context) ([]*domain.TenantUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*domain.TenantUser{}
	for id := range r.users {
		u := r.users[id]
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *MemoryTenantUsersRepository) Upsert(_ context.Context, user *domain.TenantUser) (int64, error) {
	if user == nil || user.Email == "" {
		return 0, fmt.Errorf("email is required: %w", domain.ErrValidation)
	}
	email := strings.ToLower(strings.TrimSpace(user.Email))

	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.users {
		if strings.ToLower(r.users[id].Email) == email {
			existing := r.users[id]
			existing.Username = user.Username
			existing.FullName = user.FullName
			r.users[id] = existing
			return id, nil
		}
	}
	id := r.next
	r.next++
	r.users[id] = domain.TenantUser{
		UserID:       id,
		Email:        email,
		PasswordHash: user.PasswordHash,
		Username:     user.Username,
		FullName:     user.FullName,
	}
	return id, nil
}

// MemoryCatalogStore emulates the catalog table, including a configurable
// "legacy" key type so the heal path is testable without Postgres.
type MemoryCatalogStore struct {
	mu       sync.RWMutex
	exists   bool
	keyType  string
	rows     map[string]domain.Feature // by feature_key
	next     int64
	failAll  bool // simulate an unreachable/broken tenant database
	rebuilds int
}

func NewMemoryCatalogStore() *MemoryCatalogStore {
	return &MemoryCatalogStore{rows: map[string]domain.Feature{}, keyType: "bigint", next: 1}
}

var _ CatalogStore = (*MemoryCatalogStore)(nil)

// SeedLegacy marks the store as an existing catalog with a non-uniform key
// type and the given rows.
func (s *MemoryCatalogStore) SeedLegacy(keyType string, rows []domain.Feature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exists = true
	s.keyType = keyType
	for _, f := range rows {
		f.FeatureID = s.next
		s.next++
		s.rows[f.FeatureKey] = f
	}
}

// FailAll makes every operation error, simulating connectivity loss.
func (s *MemoryCatalogStore) FailAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = true
}

// Rebuilds reports how many times Rebuild ran.
func (s *MemoryCatalogStore) Rebuilds() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rebuilds
}

func (s *MemoryCatalogStore) Exists(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failAll {
		return false, fmt.Errorf("catalog store unavailable")
	}
	return s.exists, nil
}

func (s *MemoryCatalogStore) KeyType(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failAll {
		return "", fmt.Errorf("catalog store unavailable")
	}
	return s.keyType, nil
}

func (s *MemoryCatalogStore) sortedRows() []domain.Feature {
	out := make([]domain.Feature, 0, len(s.rows))
	for key := range s.rows {
		out = append(out, s.rows[key])
	}
	sort.Slice(out, func(i, j int) bool {
		gi, gj := strings.ToLower(out[i].FeatureGroup), strings.ToLower(out[j].FeatureGroup)
		if gi != gj {
			return gi < gj
		}
		li, lj := strings.ToLower(out[i].Label), strings.ToLower(out[j].Label)
		if li != lj {
			return li < lj
		}
		return out[i].FeatureKey < out[j].FeatureKey
	})
	return out
}

func (s *MemoryCatalogStore) List(_ context.Context) ([]domain.Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failAll {
		return nil, fmt.Errorf("catalog store unavailable")
	}
	return s.sortedRows(), nil
}

func (s *MemoryCatalogStore) Snapshot(_ context.Context) ([]domain.Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failAll {
		return nil, fmt.Errorf("catalog store unavailable")
	}
	out := s.sortedRows()
	for i := range out {
		out[i].FeatureID = 0
	}
	return out, nil
}

func (s *MemoryCatalogStore) Rebuild(_ context.Context, rows []domain.Feature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return fmt.Errorf("catalog store unavailable")
	}
	s.rebuilds++
	s.exists = true
	s.keyType = "bigint"
	s.rows = map[string]domain.Feature{}
	s.next = 1
	for _, f := range rows {
		if _, ok := s.rows[f.FeatureKey]; ok {
			continue
		}
		f.FeatureID = s.next
		s.next++
		s.rows[f.FeatureKey] = f
	}
	return nil
}

func (s *MemoryCatalogStore) EnsureFeatures(_ context.Context, rows []domain.Feature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return fmt.Errorf("catalog store unavailable")
	}
	s.exists = true
	for _, f := range rows {
		if _, ok := s.rows[f.FeatureKey]; ok {
			continue
		}
		f.FeatureID = s.next
		s.next++
		s.rows[f.FeatureKey] = f
	}
	return nil
}

// MemoryOverrideStore backs either schema shape in tests; keyed by feature_key
// for the flat source and feature_id for the legacy source.
type MemoryOverrideStore struct {
	mu      sync.RWMutex
	source  string
	present bool
	rows    map[string]domain.Override
	failRep bool
}

func NewMemoryOverrideStore(source string) *MemoryOverrideStore {
	return &MemoryOverrideStore{source: source, present: true, rows: map[string]domain.Override{}}
}

var _ OverrideStore = (*MemoryOverrideStore)(nil)

func (s *MemoryOverrideStore) SetPresent(present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present = present
}

// FailReplace makes ReplaceForUser error (exercises the best-effort mirror).
func (s *MemoryOverrideStore) FailReplace() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRep = true
}

func (s *MemoryOverrideStore) Source() string { return s.source }

func (s *MemoryOverrideStore) Present(_ context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.present
}

func (s *MemoryOverrideStore) rowKey(userID int64, o domain.Override) string {
	if s.source == domain.OverrideSourceLegacy {
		return fmt.Sprintf("%d|%d", userID, o.FeatureID)
	}
	return fmt.Sprintf("%d|%s", userID, o.FeatureKey)
}

// Seed installs one override row directly.
func (s *MemoryOverrideStore) Seed(o domain.Override) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[s.rowKey(o.UserID, o)] = o
}

func (s *MemoryOverrideStore) ListForUser(_ context.Context, userID int64) ([]domain.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return []domain.Override{}, nil
	}
	out := []domain.Override{}
	for key := range s.rows {
		if s.rows[key].UserID == userID {
			o := s.rows[key]
			o.Source = s.source
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FeatureKey != out[j].FeatureKey {
			return out[i].FeatureKey < out[j].FeatureKey
		}
		return out[i].FeatureID < out[j].FeatureID
	})
	return out, nil
}

func (s *MemoryOverrideStore) ReplaceForUser(_ context.Context, userID int64, rows []domain.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRep {
		return fmt.Errorf("override store unavailable")
	}
	for key := range s.rows {
		if s.rows[key].UserID == userID {
			delete(s.rows, key)
		}
	}
	for _, o := range rows {
		o.UserID = userID
		o.Source = s.source
		o.UpdatedAt = time.Now()
		s.rows[s.rowKey(userID, o)] = o
	}
	s.present = true
	return nil
}
