package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/auth"
	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/httpserver/handlers"
	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/services/portal"
	"github.com/joaovitorbelortee-cpu/gamepass-portal/internal/services/relay"
)

// Options carries presentation values the handlers embed in responses and
// relay payloads.
type Options struct {
	PortalLink string
}

func NewRouter(db *gorm.DB, svc *portal.Service, rly *relay.Client, lg *zap.SugaredLogger, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Logger)

	// Public portal surface.
	r.Post("/v1/auth/login", handlers.PortalLogin(svc, lg))
	r.Post("/v1/auth/register", handlers.PortalRegister(svc, lg))

	// Client surface behind the portal bearer token.
	r.Group(func(client chi.Router) {
		client.Use(auth.PortalAuth(svc.Verify))
		client.Get("/v1/me", handlers.Me(svc, lg))
		client.Get("/v1/me/account", handlers.MyAccount(svc, lg))
		client.Get("/v1/me/purchases", handlers.MyPurchases(svc, lg))
	})

	// Operator surface.
	r.Post("/v1/auth/admin/login", handlers.AdminLogin(db, lg))
	r.Group(func(protected chi.Router) {
		protected.Use(auth.JWTAuth(db))
		protected.Post("/v1/auth/logout", handlers.Logout(db))
		protected.Post("/v1/auth/password", handlers.ChangePassword(db, lg))
		protected.Group(func(admin chi.Router) {
			admin.Use(auth.RequireRole("Administrator"))
			admin.Get("/v1/admin/users", handlers.ListUsers(db, lg))
			admin.Post("/v1/admin/users", handlers.CreateUser(db, lg))
			admin.Patch("/v1/admin/users/{id}", handlers.UpdateUser(db, lg))
			admin.Delete("/v1/admin/users/{id}", handlers.DeleteUser(db, lg))
			admin.Get("/v1/admin/accounts", handlers.ListAccounts(db, lg))
			admin.Post("/v1/admin/accounts", handlers.CreateAccount(db, lg))
			admin.Post("/v1/admin/accounts/{id}/renew", handlers.RenewAccount(svc, rly, lg))
			admin.Get("/v1/admin/clients", handlers.ListClients(db, lg))
			admin.Get("/v1/admin/sales", handlers.ListSales(db, lg))
			admin.Post("/v1/admin/sales", handlers.RecordSale(svc, rly, opts.PortalLink, lg))
		})
		protected.Get("/v1/logs", handlers.AuditLogs(db, lg))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}
