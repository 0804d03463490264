package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"bizadmin/internal/repository"
)

// AuditHandler: 授权变更审计日志的查询与导出
type AuditHandler struct {
	Audit  repository.AuditRepository
	logger *zap.Logger
}

func NewAuditHandler(audit repository.AuditRepository, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{Audit: audit, logger: logger}
}

// List serves GET /audit-logs?page=&size=&email=. Missing audit storage
// yields an empty page, not an error.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	page := parseInt(r.URL.Query().Get("page"), 1)
	size := parseInt(r.URL.Query().Get("size"), 20)
	email := r.URL.Query().Get("email")

	entries, total, err := h.Audit.List(r.Context(), email, page, size)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, map[string]any{
			"audit_id":          e.AuditID,
			"developer_email":   e.DeveloperEmail,
			"target_user_email": e.TargetUserEmail,
			"feature_key":       e.FeatureKey,
			"action":            e.Action,
			"created_at":        e.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": items,
		"total": total,
		"page":  page,
		"size":  size,
	}))
}

// Export serves GET /audit-logs/export?email= as an xlsx download.
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")

	// Pull pages until exhausted. The per-page cap lives in the repository.
	var all []map[string]any
	for page := 1; ; page++ {
		entries, total, err := h.Audit.List(r.Context(), email, page, 100)
		if err != nil {
			writeError(w, err)
			return
		}
		for _, e := range entries {
			all = append(all, map[string]any{
				"developer": e.DeveloperEmail,
				"target":    e.TargetUserEmail,
				"feature":   e.FeatureKey,
				"action":    e.Action,
				"time":      e.CreatedAt,
			})
		}
		if len(all) >= total || len(entries) == 0 {
			break
		}
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "AuditLog"
	f.SetSheetName("Sheet1", sheet)
	headers := []string{"Time", "Developer", "Target User", "Feature", "Action"}
	for i, hd := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, hd)
	}
	for row, rec := range all {
		t := rec["time"].(time.Time)
		values := []any{
			t.Format("2006-01-02 15:04:05"),
			rec["developer"],
			rec["target"],
			rec["feature"],
			rec["action"],
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "E", 24)

	filename := fmt.Sprintf("audit-log-%s.xlsx", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := f.Write(w); err != nil {
		h.logger.Warn("write audit export", zap.Error(err))
	}
}
