package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"bizadmin/internal/service"
)

// MasterUsersHandler: 跨租户用户索引管理（master directory）
type MasterUsersHandler struct {
	Directory *service.DirectoryService
	logger    *zap.Logger
}

func NewMasterUsersHandler(directory *service.DirectoryService, logger *zap.Logger) *MasterUsersHandler {
	return &MasterUsersHandler{Directory: directory, logger: logger}
}

func (h *MasterUsersHandler) List(w http.ResponseWriter, r *http.Request) {
	includeTest := r.URL.Query().Get("includeTest") == "true"
	users, err := h.Directory.MasterUsers(r.Context(), includeTest)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": users, "total": len(users)}))
}

type mapPayload struct {
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	UserID   int64  `json:"user_id"`
}

// Map handles POST (upsert) and DELETE on /tenant-users/map.
func (h *MasterUsersHandler) Map(w http.ResponseWriter, r *http.Request) {
	var payload mapPayload
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}

	switch r.Method {
	case http.MethodPost:
		if err := h.Directory.MapUser(r.Context(), payload.TenantID, payload.Email, payload.UserID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(map[string]any{
			"tenant_id": payload.TenantID,
			"email":     payload.Email,
		}))
	case http.MethodDelete:
		deleted, err := h.Directory.UnmapUser(r.Context(), payload.TenantID, payload.Email)
		if err != nil {
			writeError(w, err)
			return
		}
		// Zero deletions is a valid outcome, not an error.
		writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": deleted}))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *MasterUsersHandler) AutoMap(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	res, err := h.Directory.AutoMap(r.Context(), payload.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"tenant_id":      res.TenantID,
		"tenant_user_id": res.TenantUserID,
		"email":          res.Email,
		"heuristic":      res.Heuristic,
	}))
}

func (h *MasterUsersHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TenantID string `json:"tenant_id"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	synced, err := h.Directory.SyncTenantUsers(r.Context(), payload.TenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"synced": synced}))
}
