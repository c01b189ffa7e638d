package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpmiddleware "github.com/vidaplena/intake-ai-platform/internal/http/middleware"
	"github.com/vidaplena/intake-ai-platform/internal/intake"
	"github.com/vidaplena/intake-ai-platform/internal/leads"
	"github.com/vidaplena/intake-ai-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	IntakeHandler      *intake.Handler
	LeadsHandler       *leads.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// MessageRateLimit caps inbound intake messages per second per IP.
	// Zero disables rate limiting.
	MessageRateLimit float64
	MessageRateBurst int

	// ReadyCheck reports backing store health. Nil means always healthy.
	ReadyCheck func(r *http.Request) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
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

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(cfg.ReadyCheck))

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.IntakeHandler != nil {
		r.Route("/intake", func(r chi.Router) {
			if cfg.MessageRateLimit > 0 {
				burst := cfg.MessageRateBurst
				if burst <= 0 {
					burst = int(cfg.MessageRateLimit) + 1
				}
				r.With(httpmiddleware.RateLimit(cfg.MessageRateLimit, burst)).Post("/message", cfg.IntakeHandler.Message)
			} else {
				r.Post("/message", cfg.IntakeHandler.Message)
			}
			r.Get("/jobs/{jobID}", cfg.IntakeHandler.Job)
		})
	}

	if cfg.LeadsHandler != nil {
		r.Route("/leads", func(r chi.Router) {
			r.Post("/web", cfg.LeadsHandler.CreateWebLead)
			r.Get("/", cfg.LeadsHandler.ListLeads)
			r.Get("/{leadID}", cfg.LeadsHandler.GetLead)
		})
	}

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func readyHandler(check func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	}
}
