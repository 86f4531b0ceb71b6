package handler

import (
	"net/http"

	appI18n "github.com/pavelanni/bandcoach/internal/i18n"
)

func (h *Handler) handleFAQ(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.content.FAQ(appI18n.LangFromContext(r.Context())))
}

func (h *Handler) handleContact(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.content.Contact(appI18n.LangFromContext(r.Context())))
}

func (h *Handler) handleUpdates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.content.Updates(appI18n.LangFromContext(r.Context())))
}
