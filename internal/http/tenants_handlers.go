package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"bizadmin/internal/repository"
	"bizadmin/internal/service"
)

// TenantsHandler: 租户目录 + provisioning（platform-level）
type TenantsHandler struct {
	Tenants      repository.TenantsRepository
	Provisioning *service.ProvisioningService
	Directory    *service.DirectoryService
	logger       *zap.Logger
}

func NewTenantsHandler(
	tenants repository.TenantsRepository,
	provisioning *service.ProvisioningService,
	directory *service.DirectoryService,
	logger *zap.Logger,
) *TenantsHandler {
	return &TenantsHandler{
		Tenants:      tenants,
		Provisioning: provisioning,
		Directory:    directory,
		logger:       logger,
	}
}

func (h *TenantsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repository.TenantFilters{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
	}
	page := parseInt(r.URL.Query().Get("page"), 1)
	size := parseInt(r.URL.Query().Get("size"), 50)

	items, total, err := h.Tenants.ListTenants(r.Context(), filter, page, size)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(items))
	for _, t := range items {
		out = append(out, map[string]any{
			"tenant_id":         t.TenantID,
			"org_name":          t.OrgName,
			"status":            t.Status,
			"super_admin_email": t.SuperAdminEmail,
			"created_at":        t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": out, "total": total}))
}

func (h *TenantsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OrgName    string `json:"org_name"`
		AdminEmail string `json:"admin_email"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	result, err := h.Provisioning.Start(r.Context(), payload.OrgName, payload.AdminEmail)
	if err != nil && result == nil {
		writeError(w, err)
		return
	}

	respPayload := map[string]any{
		"tenant_id":      result.Tenant.TenantID,
		"org_name":       result.Tenant.OrgName,
		"status":         result.Status,
		"admin_email":    result.AdminEmail,
		"admin_password": result.AdminPassword,
	}
	if err != nil {
		// Failed within the wait. Error envelope, but the tenant id stays in
		// the payload so the caller can still poll GET /tenants/{id}.
		writeJSON(w, http.StatusInternalServerError, FailWith(err.Error(), respPayload))
		return
	}
	status := http.StatusOK
	if result.Status == service.ProvisionStatusPending {
		// Work continues in the background; poll GET /tenants/{id}.
		status = http.StatusAccepted
	}
	writeJSON(w, status, Ok(respPayload))
}

// Get serves the idempotent provisioning poll alongside the tenant row.
func (h *TenantsHandler) Get(w http.ResponseWriter, r *http.Request, tenantID string) {
	tenant, err := h.Tenants.GetTenant(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	provStatus, err := h.Provisioning.Status(r.Context(), tenantID)
	if err != nil {
		provStatus = ""
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"tenant_id":           tenant.TenantID,
		"org_name":            tenant.OrgName,
		"status":              tenant.Status,
		"super_admin_email":   tenant.SuperAdminEmail,
		"created_at":          tenant.CreatedAt,
		"provisioning_status": provStatus,
	}))
}

func (h *TenantsHandler) Users(w http.ResponseWriter, r *http.Request, tenantID string) {
	users, err := h.Directory.TenantUsers(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		out = append(out, map[string]any{
			"user_id":   u.UserID,
			"email":     u.Email,
			"username":  u.Username,
			"full_name": u.FullName,
		})
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": out, "total": len(out)}))
}

// ServeByID routes /tenants/{id} and /tenants/{id}/users.
func (h *TenantsHandler) ServeByID(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.SplitN(rest, "/", 2)
	tenantID := parts[0]
	if tenantID == "" {
		writeJSON(w, http.StatusNotFound, Fail("tenant id is required"))
		return
	}
	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Get(w, r, tenantID)
		return
	}
	if parts[1] == "users" && r.Method == http.MethodGet {
		h.Users(w, r, tenantID)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}
