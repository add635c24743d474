package main

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/diewo77/maritime-billing/internal/auth"
	"github.com/diewo77/maritime-billing/internal/config"
	"github.com/diewo77/maritime-billing/internal/handlers"
	"github.com/diewo77/maritime-billing/internal/services"
)

// App is the main application handler that sets up all routes.
type App struct {
	mux      *http.ServeMux
	handler  http.Handler
	db       *gorm.DB
	sessions *auth.Sessions
}

func newInvoiceService(db *gorm.DB, cfg *config.Config) *services.InvoiceService {
	return services.NewInvoiceService(
		db,
		services.NewGormLookup(db),
		services.NewNumberGenerator(cfg.Billing.NumberRetries),
		services.WithLocation(cfg.Billing.Location()),
	)
}

// NewApp creates a new application with all routes configured.
func NewApp(db *gorm.DB, cfg *config.Config) *App {
	app := &App{
		mux:      http.NewServeMux(),
		db:       db,
		sessions: auth.NewSessions(cfg.Auth.SessionSecret, auth.TrustHeader(cfg.Auth.TrustActorHeader)),
	}
	app.setupRoutes(cfg)
	// recover outermost so a panic in logging is caught too
	app.handler = withRecover(withLogging(app.sessions.Middleware(app.mux)))
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

func (a *App) setupRoutes(cfg *config.Config) {
	hh := handlers.NewHealthHandler(a.db)
	a.mux.HandleFunc("GET /health", hh.Live)
	a.mux.HandleFunc("GET /healthz", hh.Ready)

	a.mux.HandleFunc("DELETE /api/session", auth.Logout)
	if cfg.App.Dev {
		a.mux.HandleFunc("POST /api/dev/session", a.sessions.DevLogin)
	}

	invoices := newInvoiceService(a.db, cfg)
	handlers.NewInvoiceHandler(invoices, cfg.Billing.DefaultTaxRate).Register(a.mux, auth.RequireActor)

	expenses := services.NewExpenseService(a.db, services.NewGormLookup(a.db))
	handlers.NewExpenseHandler(expenses).Register(a.mux, auth.RequireActor)
}
