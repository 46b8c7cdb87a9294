// Package server собирает HTTP API: chi-роутер, общие мидлвари и маршруты.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"serotonyl.ru/monad-curator/internal/features/admin"
	"serotonyl.ru/monad-curator/internal/features/alerts"
	"serotonyl.ru/monad-curator/internal/features/criteria"
	"serotonyl.ru/monad-curator/internal/features/members"
	"serotonyl.ru/monad-curator/internal/features/projects"
	"serotonyl.ru/monad-curator/internal/features/voting"
	"serotonyl.ru/monad-curator/internal/httpapi"
	"serotonyl.ru/monad-curator/internal/middleware"
)

// Pinger проверяет доступность хранилища (pgxpool.Pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps: всё, что нужно роутеру.
type Deps struct {
	JWTSecret      string
	FrontendURL    string
	RequestTimeout time.Duration

	Actors      httpapi.ActorLoader
	RateLimiter *middleware.RateLimiter
	DB          Pinger
	Events      http.Handler
	Metrics     http.Handler

	Projects *projects.Handler
	Voting   *voting.Handler
	Criteria *criteria.Handler
	Alerts   *alerts.Handler
	Members  *members.Handler
	Admin    *admin.Handler
}

// NewRouter возвращает корневой обработчик API.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CORS(d.FrontendURL))

	r.Get("/health", health(d.DB))
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		if d.RateLimiter != nil {
			r.Use(d.RateLimiter.Handler)
		}
		r.Use(httpapi.Authenticate(d.JWTSecret, d.Actors))

		// SSE живёт дольше таймаута запроса
		if d.Events != nil {
			r.Get("/events", d.Events.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			if d.RequestTimeout > 0 {
				r.Use(chimiddleware.Timeout(d.RequestTimeout))
			}
			mountAPI(r, d)
		})
	})

	return r
}

func mountAPI(r chi.Router, d Deps) {
	r.Get("/stats", d.Projects.Stats)
	r.Get("/criteria", d.Criteria.List)
	r.Get("/alerts", d.Alerts.List)

	r.Route("/projects", func(r chi.Router) {
		r.Get("/", d.Projects.List)
		r.Get("/{id}", d.Voting.Detail)
		r.Get("/{id}/votes", d.Voting.ProjectVotes)

		r.With(httpapi.RequireAdmin).Post("/", d.Projects.Create)
		r.With(httpapi.RequireUser).Put("/{id}", d.Projects.Update)
		r.With(httpapi.RequireModerator).Put("/{id}/status", d.Voting.ChangeStatus)
		r.With(httpapi.RequireUser).Post("/{id}/reviews", d.Voting.Review)
	})

	r.Route("/votes", func(r chi.Router) {
		r.Use(httpapi.RequireUser)
		r.Get("/me", d.Voting.Mine)
		r.Post("/{projectId}", d.Voting.Submit)
		r.Delete("/{projectId}", d.Voting.Retract)
		r.Get("/{projectId}/check", d.Voting.Check)
	})

	r.Group(func(r chi.Router) {
		r.Use(httpapi.RequireAdmin)
		r.Post("/criteria", d.Criteria.Create)
		r.Put("/criteria/{id}", d.Criteria.Update)
	})

	r.With(httpapi.RequireModerator).Post("/alerts", d.Alerts.Create)

	r.Group(func(r chi.Router) {
		r.Use(httpapi.RequireUser)
		r.Get("/auth/me", d.Members.Me)
		r.Post("/wallet", d.Members.LinkWallet)
		r.Post("/admin/login", d.Admin.Login)
	})
	r.With(httpapi.RequireModerator).Put("/admin/users/{id}/roles", d.Members.UpdateRoles)
}

func health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				httpapi.JSON(w, http.StatusServiceUnavailable, httpapi.Envelope{Code: 50301, Message: "database unavailable"})
				return
			}
		}
		httpapi.OK(w, map[string]string{"status": "ok"})
	}
}
