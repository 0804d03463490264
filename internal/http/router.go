package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterAdminRoutes 注册管理后台路由
func (r *Router) RegisterAdminRoutes(
	tenants *TenantsHandler,
	masterUsers *MasterUsersHandler,
	features *FeaturesHandler,
	audit *AuditHandler,
) {
	// tenants
	r.Handle("/admin/api/v1/tenants", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			tenants.List(w, req)
		case http.MethodPost:
			tenants.Create(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	// tenants/{id} and tenants/{id}/users
	r.Handle("/admin/api/v1/tenants/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/admin/api/v1/tenants/")
		if rest == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		tenants.ServeByID(w, req, rest)
	})

	// master directory
	r.Handle("/admin/api/v1/master-users", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		masterUsers.List(w, req)
	})
	r.Handle("/admin/api/v1/tenant-users/map", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost, http.MethodDelete:
			masterUsers.Map(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle("/admin/api/v1/tenant-users/auto-map", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		masterUsers.AutoMap(w, req)
	})
	r.Handle("/admin/api/v1/sync-tenant-users", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		masterUsers.Sync(w, req)
	})

	// feature catalog
	r.Handle("/admin/api/v1/features", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		features.CatalogList(w, req)
	})

	// users/{id}/features
	r.Handle("/admin/api/v1/users/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/admin/api/v1/users/")
		if rest == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		features.UserFeatures(w, req, rest)
	})

	// audit
	r.Handle("/admin/api/v1/audit-logs", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		audit.List(w, req)
	})
	r.Handle("/admin/api/v1/audit-logs/export", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		audit.Export(w, req)
	})

	// health
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
