package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/bandcoach/internal/apperr"
	"github.com/pavelanni/bandcoach/internal/attempt"
	"github.com/pavelanni/bandcoach/internal/content"
	"github.com/pavelanni/bandcoach/internal/gate"
	appI18n "github.com/pavelanni/bandcoach/internal/i18n"
	"github.com/pavelanni/bandcoach/internal/llm"
	"github.com/pavelanni/bandcoach/internal/model"
	"github.com/pavelanni/bandcoach/internal/store"
)

// maxBodyBytes bounds request bodies; drafts may carry two inline images.
const maxBodyBytes = 16 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	llm      *llm.Client
	gate     *gate.Gate
	attempts *attempt.Registry
	content  *content.Catalog
	tokens   *tokenIssuer
	config   model.AppConfig
}

// Deps are the collaborators a Handler serves.
type Deps struct {
	Store    *store.Store
	LLM      *llm.Client
	Gate     *gate.Gate
	Attempts *attempt.Registry
	Content  *content.Catalog
	// Secret signs profile cookies.
	Secret string
}

// New creates a new Handler.
func New(d Deps, cfg model.AppConfig) (*Handler, error) {
	if d.Store == nil || d.LLM == nil || d.Gate == nil || d.Attempts == nil || d.Content == nil {
		return nil, errors.New("handler: missing dependency")
	}
	if len(d.Secret) < 16 {
		return nil, errors.New("handler: session secret must be at least 16 bytes")
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = store.DefaultHistoryCap
	}
	return &Handler{
		store:    d.Store,
		llm:      d.LLM,
		gate:     d.Gate,
		attempts: d.Attempts,
		content:  d.Content,
		tokens:   newTokenIssuer(d.Secret),
		config:   cfg,
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.profileMiddleware)
		r.Use(appI18n.Middleware(h.preferredLang))

		r.Get("/profile", h.handleGetProfile)
		r.Put("/profile/preferences", h.handleSetPreferences)
		r.Post("/access", h.handleAccess)
		r.Delete("/access", h.handleLogout)
		r.Get("/credits", h.handleCredits)
		r.Post("/credits/refill", h.handleRefill)

		r.Route("/drafts/{mode}", func(r chi.Router) {
			r.Get("/", h.handleGetDraft)
			r.Put("/", h.handleSaveDraft)
			r.Delete("/", h.handleClearDraft)
			r.Post("/timer/{action}", h.handleTimer)
		})
		r.Route("/attempts/{mode}", func(r chi.Router) {
			r.Get("/", h.handleAttemptState)
			r.Post("/", h.handleSubmit)
			r.Delete("/", h.handleResetAttempt)
		})

		r.Get("/history", h.handleListHistory)
		r.Delete("/history", h.handleClearHistory)
		r.Get("/history/{id}", h.handleGetSubmission)
		r.Get("/history/{id}/report", h.handleReport)

		r.Route("/tools", func(r chi.Router) {
			r.Post("/topic", h.handleTopic)
			r.Post("/brainstorm", h.handleBrainstorm)
			r.Post("/vocabulary", h.handleVocabulary)
			r.Post("/sentence", h.handleSentence)
			r.Post("/quick-scan", h.handleQuickScan)
			r.Post("/speech", h.handleSpeech)
		})
		r.Post("/chat", h.handleChat)
		r.Get("/chat/stream", h.handleChatStream)

		r.Get("/content/faq", h.handleFAQ)
		r.Get("/content/contact", h.handleContact)
		r.Get("/content/updates", h.handleUpdates)
	})
}

// BasePathMiddleware injects the configured base path into the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"llmConfigured": h.llm.Configured(),
	})
}

// modeParam parses the {mode} URL parameter.
func modeParam(r *http.Request) (model.Mode, error) {
	m, ok := model.ParseMode(chi.URLParam(r, "mode"))
	if !ok {
		return "", apperr.NewInvalidRequest(fmt.Sprintf("unknown mode %q", chi.URLParam(r, "mode")))
	}
	return m, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.NewInvalidRequest("empty request body")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.NewInvalidRequest("request body too large")
		}
		return apperr.NewInvalidRequest("invalid JSON: " + err.Error())
	}
	return nil
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    apperr.Code    `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// describe maps err to a status and a localised error body.
func describe(ctx context.Context, err error) (int, errorBody) {
	e, ok := apperr.As(err)
	if !ok {
		return http.StatusInternalServerError, errorBody{
			Code:    "INTERNAL",
			Message: appI18n.T(ctx, "ErrorInternal"),
		}
	}
	return e.Status, errorBody{
		Code:    e.Code,
		Message: appI18n.Td(ctx, e.MessageID, e.Details),
		Details: e.Details,
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := describe(r.Context(), err)
	switch {
	case status >= http.StatusInternalServerError:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "code", body.Code, "error", err)
	case status == http.StatusTooManyRequests:
		w.Header().Set("Retry-After", fmt.Sprint(body.Details["retryAfterSeconds"]))
		slog.Warn("request rate limited", "path", r.URL.Path)
	default:
		slog.Debug("request rejected", "path", r.URL.Path, "code", body.Code)
	}
	writeJSON(w, status, body)
}

func (h *Handler) preferredLang(r *http.Request) string {
	id := model.ProfileFromContext(r.Context())
	if id == "" {
		return ""
	}
	p, err := h.store.GetProfile(id)
	if err != nil || p == nil {
		return ""
	}
	return p.Language
}
