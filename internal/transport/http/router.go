package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"quiz-leaderboard-service/internal/auth"
)

// RouterConfig carries the HTTP-level settings of the service.
type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewRouter wires the REST endpoints, the WebSocket endpoint and the health
// check. Everything except /healthz requires an identity.
func NewRouter(h *Handler, ws *WSHandler, authn *auth.Authenticator, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(logger), middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", auth.HeaderUserID, auth.HeaderUserName},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(pr chi.Router) {
		pr.Use(authn.Middleware)
		pr.Get("/ws", ws.ServeWS)

		pr.Group(func(api chi.Router) {
			api.Use(middleware.Timeout(timeout))
			api.Route("/quizzes/{quizID}", func(qr chi.Router) {
				qr.Post("/register", h.Register)
				qr.Post("/submit", h.Submit)
				qr.Get("/attempts/{attemptID}/result", h.Result)
				qr.Get("/attempts/{attemptID}/review", h.Review)
				qr.Get("/leaderboard", h.Leaderboard)
			})
		})
	})
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
