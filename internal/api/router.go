package api

import (
	"net/http"

	"github.com/ashureev/remodel-intake/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// maxUpdateBytes bounds webhook payloads.
const maxUpdateBytes = 1 << 20

// RouterConfig collects the handlers mounted by NewRouter. Nil members are
// not mounted.
type RouterConfig struct {
	WebhookPath    string
	Webhook        *WebhookHandler
	Health         *HealthHandler
	Submissions    *SubmissionHandler
	Metrics        http.Handler
	Events         http.Handler
	AllowedOrigins []string
}

// NewRouter builds the chi router.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Health)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	if cfg.Events != nil {
		r.Method(http.MethodGet, "/ws/events", cfg.Events)
	}

	if cfg.Webhook != nil {
		path := cfg.WebhookPath
		if path == "" {
			path = "/webhook"
		}
		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBody(maxUpdateBytes))
			r.Post(path, cfg.Webhook.Receive)
			r.Get(path, cfg.Webhook.Liveness)
		})
	}

	if cfg.Submissions != nil {
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Logger)
			r.Use(middleware.CORS(cfg.AllowedOrigins))
			cfg.Submissions.RegisterRoutes(r)
		})
	}

	return r
}
