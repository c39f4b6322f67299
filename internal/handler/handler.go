package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appI18n "github.com/pavelanni/testmaker/internal/i18n"
	"github.com/pavelanni/testmaker/internal/llm"
	"github.com/pavelanni/testmaker/internal/model"
	"github.com/pavelanni/testmaker/internal/store"
	"github.com/pavelanni/testmaker/internal/webhook"
)

// DefaultOrigins are the frontends always allowed by CORS.
var DefaultOrigins = []string{
	"http://localhost:5173",
	"https://testmaker-omega.vercel.app",
}

// Generator produces and grades tests.
type Generator interface {
	GenerateQuestions(ctx context.Context, req model.CreateTestRequest) (*model.QuestionSet, error)
	EvaluateAttempt(ctx context.Context, req model.EvaluateRequest) (*llm.Evaluation, error)
}

// IdentityVerifier resolves the caller of a request.
type IdentityVerifier interface {
	VerifyRequest(r *http.Request) (*model.Identity, error)
}

// WebhookVerifier checks signed webhook deliveries.
type WebhookVerifier interface {
	Verify(payload []byte, headers http.Header) (*webhook.Event, error)
}

// EventApplier applies a verified webhook event.
type EventApplier interface {
	Apply(ctx context.Context, evt *webhook.Event) error
}

// Config holds handler settings.
type Config struct {
	// LLMTimeout bounds each generation or grading call. Zero means no bound.
	LLMTimeout time.Duration
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	gen      Generator
	identity IdentityVerifier
	hooks    WebhookVerifier
	syncer   EventApplier
	config   Config
	now      func() time.Time
}

// New creates a new Handler. hooks may be nil when no webhook secret is
// configured; deliveries are then rejected.
func New(s *store.Store, gen Generator, identity IdentityVerifier, hooks WebhookVerifier, cfg Config) *Handler {
	return &Handler{
		store:    s,
		gen:      gen,
		identity: identity,
		hooks:    hooks,
		syncer:   webhook.NewSyncer(s),
		config:   cfg,
		now:      time.Now,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Get("/healthz", h.handleHealth)
	r.Post("/api/webhooks/clerk", h.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(h.requireIdentity)
		r.Post("/api/auth/sync", h.handleSyncUser)

		r.Group(func(r chi.Router) {
			r.Use(h.requireUser)
			r.Get("/profile", h.handleProfile)
			r.Route("/api/tests", func(r chi.Router) {
				r.Post("/create", h.handleCreateTest)
				r.Post("/evaluate", h.handleEvaluateTest)
				r.Get("/getTests", h.handleGetTest)
				r.Get("/getResult", h.handleGetResult)
				r.Get("/getMyTest", h.handleMyTests)
				r.Get("/getPublicTests", h.handlePublicTests)
				r.Get("/getAttempted", h.handleAttempted)
				r.Get("/stats", h.handleStats)
			})
		})
	})
}

// CORS returns middleware allowing DefaultOrigins plus extra, with credentials.
func CORS(extra ...string) func(http.Handler) http.Handler {
	origins := append([]string{}, DefaultOrigins...)
	for _, o := range extra {
		if o != "" {
			origins = append(origins, o)
		}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, appI18n.T(r.Context(), "BackendRunning"))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.UserFromContext(r.Context()))
}

// llmContext bounds ctx by the configured LLM timeout.
func (h *Handler) llmContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.config.LLMTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.config.LLMTimeout)
}
