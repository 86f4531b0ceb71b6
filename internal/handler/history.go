package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/bandcoach/internal/apperr"
	appI18n "github.com/pavelanni/bandcoach/internal/i18n"
	"github.com/pavelanni/bandcoach/internal/model"
	"github.com/pavelanni/bandcoach/internal/report"
)

type historyView struct {
	Count       int                `json:"count"`
	AverageBand float64            `json:"averageBand"`
	Submissions []model.Submission `json:"submissions"`
}

func (h *Handler) handleListHistory(w http.ResponseWriter, r *http.Request) {
	profileID := model.ProfileFromContext(r.Context())
	subs, err := h.store.ListSubmissions(profileID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	v := historyView{Count: len(subs), Submissions: subs}
	if v.Submissions == nil {
		v.Submissions = []model.Submission{}
	}
	for _, sub := range subs {
		v.AverageBand += sub.Evaluation.OverallBand
	}
	if len(subs) > 0 {
		v.AverageBand /= float64(len(subs))
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearHistory(model.ProfileFromContext(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) submission(r *http.Request) (*model.Submission, error) {
	id := chi.URLParam(r, "id")
	sub, err := h.store.GetSubmission(model.ProfileFromContext(r.Context()), id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, apperr.NewNotFound(id)
	}
	return sub, nil
}

func (h *Handler) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := h.submission(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// handleReport renders a printable HTML report of one submission.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	sub, err := h.submission(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	title := appI18n.T(r.Context(), "AppTitle")
	page, err := report.HTML(r.Context(), title, report.Markdown(r.Context(), *sub))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}
