// ABOUTME: HTTP router wiring for the messaging API
// ABOUTME: chi routes with CORS, request logging, and JWT auth middleware

package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Qhojoblinks-7/vukalink-sub000/internal/auth"
	"github.com/Qhojoblinks-7/vukalink-sub000/internal/messaging"
)

// Dependencies holds everything the API handlers need.
type Dependencies struct {
	Service     *messaging.Service
	Broadcaster *messaging.Broadcaster
	Verifier    auth.TokenVerifier

	// SendTimeout bounds how long a send may wait on the store.
	// Zero means no server-side bound beyond the request context.
	SendTimeout time.Duration

	// AllowedOrigins restricts CORS and websocket origins. Empty
	// allows any origin (development mode).
	AllowedOrigins []string

	Logger *slog.Logger
}

// NewRouter builds the chi router for the messaging API.
func NewRouter(deps Dependencies) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{
		service:     deps.Service,
		broadcaster: deps.Broadcaster,
		sendTimeout: deps.SendTimeout,
		origins:     deps.AllowedOrigins,
		logger:      logger.With("component", "api"),
	}

	allowedOrigins := deps.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"https://*", "http://*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(deps.Verifier))

		r.Route("/api/conversations", func(r chi.Router) {
			r.Post("/", h.startConversation)
			r.Get("/", h.listConversations)
			r.Route("/{conversationID}", func(r chi.Router) {
				r.Get("/messages", h.listMessages)
				r.Post("/messages", h.sendMessage)
				r.Post("/read", h.markRead)
				r.Get("/subscribe", h.subscribe)
			})
		})
	})

	return r
}

// requestLogger logs each request at debug level with method, path,
// status, and duration.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start))
		})
	}
}
