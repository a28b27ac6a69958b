package http

import (
	"net/http"

	"github.com/appointment-watch/internal/application/accesscode"
	"github.com/appointment-watch/internal/application/registration"
	"github.com/appointment-watch/internal/config"
	"github.com/appointment-watch/internal/domain"
	jwtinfra "github.com/appointment-watch/internal/infrastructure/jwt"
	"github.com/appointment-watch/internal/transport/http/handler"
	appmiddleware "github.com/appointment-watch/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	SubscriptionRepo SubscriptionRepository
	AccessCodeRepo   AccessCodeRepository
	Mailer           Mailer
	JWTProvider      *jwtinfra.Provider
	// MetricsHandler serves /metrics; nil uses the default Prometheus registry.
	MetricsHandler http.Handler
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10, on the public registration endpoint.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	codeSvc := accesscode.NewService(accesscode.ServiceDeps{
		Repo:         deps.AccessCodeRepo,
		Mailer:       deps.Mailer,
		LinkTemplate: cfg.AccessLinkTmpl,
	})
	registrationSvc := registration.NewService(registration.ServiceDeps{
		Repo:  deps.SubscriptionRepo,
		Codes: codeSvc,
	})

	healthH := handler.NewHealthHandler()
	subscriptionH := handler.NewSubscriptionHandler(registrationSvc)
	accessCodeH := handler.NewAccessCodeHandler(codeSvc)

	metricsH := deps.MetricsHandler
	if metricsH == nil {
		metricsH = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsH)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/subscriptions", subscriptionH.Upsert)

		// Issuing codes needs an admin token; without a key pair the route is not mounted.
		if deps.JWTProvider != nil {
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.Auth(deps.JWTProvider))
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Post("/access-codes", accessCodeH.Issue)
			})
		}
	})

	return r
}
