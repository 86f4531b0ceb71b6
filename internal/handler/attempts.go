package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/bandcoach/internal/apperr"
	"github.com/pavelanni/bandcoach/internal/attempt"
	appI18n "github.com/pavelanni/bandcoach/internal/i18n"
	"github.com/pavelanni/bandcoach/internal/model"
)

// machine returns the attempt machine for the request's profile and mode.
func (h *Handler) machine(r *http.Request) (*attempt.Machine, model.Mode, error) {
	mode, err := modeParam(r)
	if err != nil {
		return nil, "", err
	}
	return h.attempts.Get(model.ProfileFromContext(r.Context()), mode), mode, nil
}

// draftView adds derived counters to the stored draft.
type draftView struct {
	model.Draft
	Mode      model.Mode `json:"mode"`
	WordCount int        `json:"wordCount"`
	MinWords  int        `json:"minWords"`
	TimeLimit int        `json:"timeLimit"`
}

func newDraftView(mode model.Mode, d model.Draft) draftView {
	return draftView{
		Draft:     d,
		Mode:      mode,
		WordCount: model.WordCount(d.Essay),
		MinWords:  d.TaskType.MinWords(),
		TimeLimit: d.TaskType.TimeLimit(),
	}
}

func (h *Handler) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	m, mode, err := h.machine(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	d, err := m.Draft()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDraftView(mode, d))
}

func (h *Handler) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	m, mode, err := h.machine(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var d model.Draft
	if err := decodeJSON(w, r, &d); err != nil {
		h.writeError(w, r, err)
		return
	}
	if d.TaskType != "" {
		tt, ok := model.ParseTaskType(string(d.TaskType))
		if !ok {
			h.writeError(w, r, apperr.NewInvalidRequest(fmt.Sprintf("unknown task type %q", d.TaskType)))
			return
		}
		d.TaskType = tt
	}
	saved, err := m.SaveDraft(d)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDraftView(mode, saved))
}

func (h *Handler) handleClearDraft(w http.ResponseWriter, r *http.Request) {
	m, mode, err := h.machine(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := m.ClearDraft(); err != nil {
		h.writeError(w, r, err)
		return
	}
	d, err := m.Draft()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDraftView(mode, d))
}

func (h *Handler) handleTimer(w http.ResponseWriter, r *http.Request) {
	m, mode, err := h.machine(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	d, err := m.Timer(attempt.TimerAction(chi.URLParam(r, "action")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDraftView(mode, d))
}

// attemptView reports the machine status. Error holds the last failure.
type attemptView struct {
	Status     attempt.Status    `json:"status"`
	Error      *errorBody        `json:"error,omitempty"`
	Submission *model.Submission `json:"submission,omitempty"`
}

func (h *Handler) newAttemptView(r *http.Request, st attempt.State) attemptView {
	v := attemptView{Status: st.Status, Submission: st.Submission}
	if st.Error != nil {
		_, body := describe(r.Context(), st.Error)
		v.Error = &body
	}
	return v
}

func (h *Handler) handleAttemptState(w http.ResponseWriter, r *http.Request) {
	m, _, err := h.machine(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.newAttemptView(r, m.State()))
}

type submitRequest struct {
	Confirm bool `json:"confirm"`
}

type submitResponse struct {
	Submission *model.Submission `json:"submission"`
	Credits    int               `json:"credits"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	m, _, err := h.machine(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req submitRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	profileID := model.ProfileFromContext(r.Context())
	sub, err := m.Submit(r.Context(), attempt.SubmitRequest{
		Confirm:  req.Confirm,
		Language: appI18n.LangFromContext(r.Context()),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bal, err := h.gate.Balance(r.Context(), profileID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{Submission: sub, Credits: bal})
}

func (h *Handler) handleResetAttempt(w http.ResponseWriter, r *http.Request) {
	m, _, err := h.machine(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	m.Reset()
	writeJSON(w, http.StatusOK, h.newAttemptView(r, m.State()))
}
