package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pavelanni/bandcoach/internal/apperr"
	appI18n "github.com/pavelanni/bandcoach/internal/i18n"
	"github.com/pavelanni/bandcoach/internal/model"
)

const (
	profileCookieName = "bandcoach_profile"
	profileTTL        = 365 * 24 * time.Hour
	tokenIssuerName   = "bandcoach"
)

// Claims identify an anonymous practice profile.
type Claims struct {
	jwt.RegisteredClaims
}

type tokenIssuer struct {
	secret []byte
	now    func() time.Time
}

func newTokenIssuer(secret string) *tokenIssuer {
	return &tokenIssuer{secret: []byte(secret), now: time.Now}
}

func (t *tokenIssuer) sign(profileID string) (string, error) {
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profileID,
			Issuer:    tokenIssuerName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(profileTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t *tokenIssuer) parse(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuerName),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", fmt.Errorf("invalid subject: %w", err)
	}
	return claims.Subject, nil
}

func (h *Handler) setProfileCookie(w http.ResponseWriter, token string) {
	cookiePath := "/"
	if h.config.BasePath != "" {
		cookiePath = h.config.BasePath + "/"
	}
	http.SetCookie(w, &http.Cookie{
		Name:     profileCookieName,
		Value:    token,
		Path:     cookiePath,
		MaxAge:   int(profileTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// profileMiddleware resolves the visitor's profile from the signed cookie,
// issuing a fresh profile on first visit or when the cookie is invalid.
func (h *Handler) profileMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(profileCookieName); err == nil && c.Value != "" {
			parsed, err := h.tokens.parse(c.Value)
			if err != nil {
				slog.Debug("profile cookie rejected", "error", err)
			} else {
				id = parsed
			}
		}

		if id == "" {
			id = uuid.NewString()
			token, err := h.tokens.sign(id)
			if err != nil {
				h.writeError(w, r, fmt.Errorf("sign profile token: %w", err))
				return
			}
			h.setProfileCookie(w, token)
			slog.Info("profile issued", "profile", id)
		}

		if _, err := h.gate.Profile(r.Context(), id); err != nil {
			h.writeError(w, r, err)
			return
		}
		ctx := model.ContextWithProfile(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// profileView is the client-facing profile state.
type profileView struct {
	ID             string      `json:"id"`
	Unlocked       bool        `json:"unlocked"`
	RequireAccess  bool        `json:"requireAccess"`
	CreditsEnabled bool        `json:"creditsEnabled"`
	Credits        int         `json:"credits"`
	InitialCredits int         `json:"initialCredits"`
	Theme          model.Theme `json:"theme"`
	Language       string      `json:"language"`
	LLMConfigured  bool        `json:"llmConfigured"`
}

func (h *Handler) currentProfile(r *http.Request) (profileView, error) {
	id := model.ProfileFromContext(r.Context())
	p, err := h.gate.Profile(r.Context(), id)
	if err != nil {
		return profileView{}, err
	}
	lang := p.Language
	if lang == "" {
		lang = appI18n.LangFromContext(r.Context())
	}
	return profileView{
		ID:             p.ID,
		Unlocked:       p.Unlocked,
		RequireAccess:  h.config.RequireAccess,
		CreditsEnabled: h.config.CreditsEnabled,
		Credits:        p.Credits,
		InitialCredits: h.gate.InitialCredits(),
		Theme:          p.Theme,
		Language:       lang,
		LLMConfigured:  h.llm.Configured(),
	}, nil
}

func (h *Handler) writeProfile(w http.ResponseWriter, r *http.Request) {
	v, err := h.currentProfile(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	h.writeProfile(w, r)
}

type preferencesRequest struct {
	Theme    model.Theme `json:"theme"`
	Language string      `json:"language"`
}

func (h *Handler) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	id := model.ProfileFromContext(r.Context())
	p, err := h.gate.Profile(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	theme, lang := p.Theme, p.Language
	if req.Theme != "" {
		if req.Theme != model.ThemeLight && req.Theme != model.ThemeDark {
			h.writeError(w, r, apperr.NewInvalidRequest(fmt.Sprintf("unknown theme %q", req.Theme)))
			return
		}
		theme = req.Theme
	}
	if req.Language != "" {
		if !appI18n.Supported(req.Language) {
			h.writeError(w, r, apperr.NewInvalidRequest(fmt.Sprintf("unsupported language %q", req.Language)))
			return
		}
		lang = appI18n.Resolve(req.Language, "")
	}
	if err := h.store.SetPreferences(id, theme, lang); err != nil {
		h.writeError(w, r, err)
		return
	}

	// The response is rendered in the newly chosen language.
	ctx := appI18n.WithLang(r.Context(), lang)
	ctx = appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(lang))
	w.Header().Set("Content-Language", lang)
	h.writeProfile(w, r.WithContext(ctx))
}

type accessRequest struct {
	Code string `json:"code"`
}

func (h *Handler) handleAccess(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	id := model.ProfileFromContext(r.Context())
	if err := h.gate.CheckAccessCode(r.Context(), id, req.Code); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeProfile(w, r)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.gate.Logout(r.Context(), model.ProfileFromContext(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeProfile(w, r)
}

type creditsView struct {
	Enabled bool `json:"enabled"`
	Balance int  `json:"balance"`
	Initial int  `json:"initial"`
}

func (h *Handler) writeCredits(w http.ResponseWriter, r *http.Request) {
	bal, err := h.gate.Balance(r.Context(), model.ProfileFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, creditsView{
		Enabled: h.config.CreditsEnabled,
		Balance: bal,
		Initial: h.gate.InitialCredits(),
	})
}

func (h *Handler) handleCredits(w http.ResponseWriter, r *http.Request) {
	h.writeCredits(w, r)
}

func (h *Handler) handleRefill(w http.ResponseWriter, r *http.Request) {
	if err := h.gate.Refill(r.Context(), model.ProfileFromContext(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeCredits(w, r)
}
