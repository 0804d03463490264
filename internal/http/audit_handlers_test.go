package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bizadmin/internal/domain"
	"bizadmin/internal/repository"
)

func seedAudit(t *testing.T, repo *repository.MemoryAuditRepository, target string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, repo.Append(context.Background(), &domain.AuditEntry{
			DeveloperEmail:  "dev@platform.io",
			TargetUserEmail: target,
			FeatureKey:      "analytics",
			Action:          domain.AuditActionEnabled,
		}))
	}
}

func TestAuditList_EmptyLogIsAnEmptyPage(t *testing.T) {
	h := NewAuditHandler(repository.NewMemoryAuditRepository(), zap.NewNop())
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/admin/api/v1/audit-logs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	require.Equal(t, float64(0), result["total"])
	require.Empty(t, result["items"])
}

func TestAuditList_FiltersByTargetEmail(t *testing.T) {
	repo := repository.NewMemoryAuditRepository()
	seedAudit(t, repo, "a@acme.com", 2)
	seedAudit(t, repo, "b@acme.com", 1)
	h := NewAuditHandler(repo, zap.NewNop())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/admin/api/v1/audit-logs?email=a@acme.com", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	require.Equal(t, float64(2), result["total"])
}

func TestAuditList_Paginates(t *testing.T) {
	repo := repository.NewMemoryAuditRepository()
	seedAudit(t, repo, "a@acme.com", 5)
	h := NewAuditHandler(repo, zap.NewNop())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/admin/api/v1/audit-logs?page=2&size=3", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	require.Equal(t, float64(5), result["total"])
	require.Len(t, result["items"].([]any), 2)
}

func TestAuditExport_ProducesWorkbook(t *testing.T) {
	repo := repository.NewMemoryAuditRepository()
	seedAudit(t, repo, "a@acme.com", 3)
	h := NewAuditHandler(repo, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Export(rec, httptest.NewRequest(http.MethodGet, "/admin/api/v1/audit-logs/export", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	require.NotZero(t, rec.Body.Len())
}
