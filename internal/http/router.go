package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/signalix/phoneauth/internal/auth"
	"github.com/signalix/phoneauth/internal/http/handlers"
	"github.com/signalix/phoneauth/internal/middleware"
	"github.com/signalix/phoneauth/internal/repo"
)

// RouterDeps groups what NewRouter wires together.
type RouterDeps struct {
	AuthService    *auth.AuthService
	JWTService     *auth.JWTService
	UserRepo       repo.UserRepo
	Logger         *zap.Logger
	AllowedOrigins []string
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(corsOptions(deps.AllowedOrigins)))

	authHandler := handlers.NewAuthHandler(deps.AuthService, deps.Logger)
	profileHandler := handlers.NewProfileHandler(deps.AuthService, deps.Logger)
	healthHandler := handlers.NewHealthHandler(deps.Logger)

	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/initiate", authHandler.HandleInitiate)
		r.Post("/verify", authHandler.HandleVerify)
		r.Post("/federated", authHandler.HandleFederated)
		r.Post("/token/refresh", authHandler.HandleRefresh)
	})

	// Protected routes (require valid JWT)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(deps.JWTService, deps.UserRepo, deps.Logger))
		r.Get("/profile", profileHandler.HandleGet)
		r.Patch("/profile", profileHandler.HandlePatch)
	})

	return r
}

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}
}
