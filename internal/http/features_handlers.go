package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"bizadmin/internal/domain"
	"bizadmin/internal/service"
)

// FeaturesHandler: 功能目录 + 用户授权（entitlements）
type FeaturesHandler struct {
	Catalog      *service.CatalogService
	Entitlements *service.EntitlementService
	Resolver     *service.ResolverService
	Provider     service.StoreProvider
	jwtSecret    string
	logger       *zap.Logger
}

func NewFeaturesHandler(
	catalog *service.CatalogService,
	entitlements *service.EntitlementService,
	resolver *service.ResolverService,
	provider service.StoreProvider,
	jwtSecret string,
	logger *zap.Logger,
) *FeaturesHandler {
	return &FeaturesHandler{
		Catalog:      catalog,
		Entitlements: entitlements,
		Resolver:     resolver,
		Provider:     provider,
		jwtSecret:    jwtSecret,
		logger:       logger,
	}
}

// Catalog serves GET /features?tenantId=. Degrades to the synthesized
// defaults instead of erroring when the tenant database cannot serve one.
func (h *FeaturesHandler) CatalogList(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenantId")
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("tenantId query parameter is required"))
		return
	}

	var features []domain.Feature
	stores, err := h.Provider.Stores(r.Context(), tenantID)
	if err != nil {
		h.logger.Warn("tenant unreachable, serving synthesized catalog",
			zap.String("tenant_id", tenantID), zap.Error(err))
		features = service.StaticDefaults()
	} else {
		features = h.Catalog.Load(r.Context(), stores.Catalog, tenantID)
	}

	out := make([]map[string]any, 0, len(features))
	for _, f := range features {
		out = append(out, map[string]any{
			"feature_key":     f.FeatureKey,
			"label":           f.Label,
			"description":     f.Description,
			"feature_group":   f.FeatureGroup,
			"default_enabled": f.DefaultEnabled,
		})
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": out, "total": len(out)}))
}

// UserFeatures routes GET/PUT /users/{userId}/features. The path parameter
// accepts a surrogate id or an email; ?tenantId= disambiguates.
func (h *FeaturesHandler) UserFeatures(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] != "features" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	identifier := parts[0]
	explicitTenantID := r.URL.Query().Get("tenantId")

	res, err := h.Resolver.Resolve(r.Context(), identifier, explicitTenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	stores, err := h.Provider.Stores(r.Context(), res.TenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		effective, err := h.Entitlements.GetEffectiveFeatures(r.Context(), stores, res.TenantID, res.TenantUserID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(map[string]any{
			"tenant_id": res.TenantID,
			"user_id":   res.TenantUserID,
			"items":     effective,
		}))

	case http.MethodPut:
		var desired []domain.DesiredFeature
		if err := readBodyJSON(r, 1<<20, &desired); err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
			return
		}
		user, err := stores.Users.GetByID(r.Context(), res.TenantUserID)
		if err != nil {
			writeError(w, err)
			return
		}
		developer := DeveloperEmail(r, h.jwtSecret)
		effective, err := h.Entitlements.SetFeatures(r.Context(), stores, res.TenantID, user, desired, developer)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(map[string]any{
			"tenant_id": res.TenantID,
			"user_id":   res.TenantUserID,
			"items":     effective,
		}))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
