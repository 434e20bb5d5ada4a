// Package router assembles the chi route tree. Route guards live here;
// handlers stay guard-free and rely on the actor installed upstream.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/peegflow-code/peegflow/internal/http/handlers"
	httpmiddleware "github.com/peegflow-code/peegflow/internal/http/middleware"
	"github.com/peegflow-code/peegflow/internal/observability/metrics"
	"github.com/peegflow-code/peegflow/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger *logging.Logger

	Sessions      httpmiddleware.SessionVerifier
	PatientLinker httpmiddleware.PatientLinker

	AuthHandler         *handlers.AuthHandler
	AppointmentsHandler *handlers.AppointmentsHandler
	PatientsHandler     *handlers.PatientsHandler
	FinanceHandler      *handlers.FinanceHandler
	PlatformHandler     *handlers.PlatformHandler

	PlatformToken      string
	LoginRateRPS       float64
	LoginRateBurst     int
	HTTPMetrics        *metrics.HTTPMetrics
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.HTTPMetrics != nil {
		r.Use(httpmiddleware.Metrics(cfg.HTTPMetrics))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.AuthHandler != nil {
			login := public
			if cfg.LoginRateRPS > 0 {
				login = public.With(httpmiddleware.RateLimit(cfg.LoginRateRPS, cfg.LoginRateBurst))
			}
			login.Post("/auth/login/{tenantSlug}", cfg.AuthHandler.Login)
		}
	})

	// Cross-tenant provisioning, guarded by the static platform token.
	if cfg.PlatformHandler != nil {
		r.Route("/platform", func(pf chi.Router) {
			pf.Use(httpmiddleware.RequirePlatformToken(cfg.PlatformToken))
			pf.Post("/tenants", cfg.PlatformHandler.CreateTenant)
			pf.Get("/tenants", cfg.PlatformHandler.ListTenants)
		})
	}

	// Tenant-scoped routes behind a session token.
	r.Group(func(tenant chi.Router) {
		tenant.Use(httpmiddleware.Authenticate(cfg.Sessions, cfg.PatientLinker))

		if cfg.AuthHandler != nil {
			tenant.Get("/auth/me", cfg.AuthHandler.Me)
			tenant.Post("/auth/logout", cfg.AuthHandler.Logout)
		}

		if cfg.AppointmentsHandler != nil {
			tenant.Route("/appointments", func(a chi.Router) {
				a.Get("/range", cfg.AppointmentsHandler.Range)
				a.Get("/available", cfg.AppointmentsHandler.Available)
				a.Get("/mine", cfg.AppointmentsHandler.Mine)
				a.Post("/book", cfg.AppointmentsHandler.Book)
				a.Post("/cancel", cfg.AppointmentsHandler.Cancel)

				a.With(httpmiddleware.RequireAdmin).Post("/bulk", cfg.AppointmentsHandler.BulkCreate)
				a.With(httpmiddleware.RequireAdmin).Post("/set-status", cfg.AppointmentsHandler.SetStatus)
			})
		}

		tenant.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.RequireAdmin)

			if cfg.PatientsHandler != nil {
				admin.Route("/patients", func(p chi.Router) {
					p.Get("/", cfg.PatientsHandler.List)
					p.Post("/", cfg.PatientsHandler.Create)
					p.Get("/{patientID}", cfg.PatientsHandler.Get)
					p.Patch("/{patientID}", cfg.PatientsHandler.Update)
					p.Delete("/{patientID}", cfg.PatientsHandler.Delete)
					p.Post("/{patientID}/access", cfg.PatientsHandler.GrantAccess)
					p.Delete("/{patientID}/access", cfg.PatientsHandler.RevokeAccess)
				})
			}

			if cfg.FinanceHandler != nil {
				admin.Get("/finance/summary", cfg.FinanceHandler.Summary)
				admin.Route("/expenses", func(e chi.Router) {
					e.Get("/", cfg.FinanceHandler.ListExpenses)
					e.Post("/", cfg.FinanceHandler.CreateExpense)
					e.Delete("/{expenseID}", cfg.FinanceHandler.DeleteExpense)
				})
			}
		})
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
