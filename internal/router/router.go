package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"timekill-backend/internal/handlers"
	"timekill-backend/internal/middleware"
	"timekill-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	humanizerHandler *handlers.HumanizerHandler,
	pairsHandler *handlers.PairsHandler,
	userHandler *handlers.UserHandler,
	jobsHandler *handlers.JobsHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
			r.Get("/verify-email", authHandler.VerifyEmail)
			r.Post("/resend-verification", authHandler.ResendVerification)

			// Logout requires auth
			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", authHandler.Logout)
			})
		})

		// ──── Humanizer Routes ────
		r.Route("/humanize", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", humanizerHandler.Humanize)
			r.Get("/runs", humanizerHandler.ListRuns)
			r.Get("/stats", humanizerHandler.GetStats)
		})

		// ──── Pair Extraction Routes ────
		r.Route("/sets", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/generate", pairsHandler.Generate)
			r.Post("/upload", pairsHandler.Upload)
			r.Get("/", pairsHandler.ListSets)
			r.Get("/{id}", pairsHandler.GetSet)
			r.Delete("/{id}", pairsHandler.DeleteSet)
		})

		// ──── User Routes ────
		r.Route("/user", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/me", userHandler.Me)
			r.Get("/usage", userHandler.Usage)
			r.Delete("/me", userHandler.DeleteAccount)
		})

		// ──── Job Routes ────
		r.Route("/jobs", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", jobsHandler.GetJob)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
