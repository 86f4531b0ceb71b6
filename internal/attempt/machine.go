// Package attempt runs the submit-and-evaluate workflow for one practice mode.
package attempt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pavelanni/bandcoach/internal/apperr"
	"github.com/pavelanni/bandcoach/internal/llm"
	"github.com/pavelanni/bandcoach/internal/model"
)

// Status is the attempt's position in the workflow.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusValidating    Status = "validating"
	StatusLengthWarning Status = "length_warning"
	StatusSubmitting    Status = "submitting"
	StatusSuccess       Status = "success"
	StatusFailure       Status = "failure"
)

// DefaultTimeout bounds one evaluation call.
const DefaultTimeout = 2 * time.Minute

// DraftStore persists one draft per (profile, mode).
type DraftStore interface {
	LoadDraft(profileID string, mode model.Mode) (model.Draft, error)
	SaveDraft(profileID string, mode model.Mode, d model.Draft) error
	ClearDraft(profileID string, mode model.Mode) error
}

// Ledger records successful submissions.
type Ledger interface {
	AppendSubmission(sub *model.Submission, limit int) error
}

// Gate answers access and credit questions.
type Gate interface {
	Unlocked(ctx context.Context, profileID string) (bool, error)
	Balance(ctx context.Context, profileID string) (int, error)
	SpendCredit(ctx context.Context, profileID string) error
}

// Evaluator grades an essay.
type Evaluator interface {
	Evaluate(ctx context.Context, req llm.EvaluationRequest) (*model.Evaluation, error)
}

// Deps are the machine's collaborators.
type Deps struct {
	Drafts    DraftStore
	Ledger    Ledger
	Gate      Gate
	Evaluator Evaluator
}

// Options configure the checks a submission passes through.
type Options struct {
	RequireAccess  bool
	CreditsEnabled bool
	HistoryCap     int
	Timeout        time.Duration // per evaluation call
	TickInterval   time.Duration // exam timer step; one second in production
}

// SubmitRequest carries the caller's choices for one submit.
type SubmitRequest struct {
	// Confirm proceeds past a length warning.
	Confirm bool
	// Language selects the feedback language.
	Language string
}

// State is a snapshot of a machine.
type State struct {
	Status     Status            `json:"status"`
	Error      error             `json:"-"`
	Submission *model.Submission `json:"submission,omitempty"`
}

// Machine is the attempt workflow of one (profile, mode).
type Machine struct {
	profileID string
	mode      model.Mode
	deps      Deps
	opts      Options

	mu         sync.Mutex
	status     Status
	lastErr    error
	submission *model.Submission

	timerOn  bool
	stopTick chan struct{}
	// timerHeld is set when the user pauses, resets or clears while a
	// submission is in flight; the countdown then stays stopped on failure.
	timerHeld bool

	lastUsed time.Time
}

// NewMachine creates an idle machine.
func NewMachine(profileID string, mode model.Mode, deps Deps, opts Options) *Machine {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	return &Machine{
		profileID: profileID,
		mode:      mode,
		deps:      deps,
		opts:      opts,
		status:    StatusIdle,
	}
}

// State returns the current status with the last error or result.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{Status: m.status, Error: m.lastErr, Submission: m.submission}
}

// Reset returns the machine to Idle. A submission in flight is not cancelled.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusSubmitting {
		return
	}
	m.setStatus(StatusIdle)
	m.lastErr = nil
	m.submission = nil
}

func (m *Machine) touch(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUsed = t
}

// idleSince reports whether the machine was last used before cutoff and has
// neither a submission in flight nor a running countdown.
func (m *Machine) idleSince(cutoff time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status != StatusSubmitting && !m.timerOn && m.lastUsed.Before(cutoff)
}

func (m *Machine) setStatus(s Status) {
	if m.status != s {
		slog.Debug("attempt transition", "profile", m.profileID, "mode", m.mode, "from", m.status, "to", s)
	}
	m.status = s
}

// fail records err and returns to Idle. Callers hold mu.
func (m *Machine) fail(err error) error {
	m.lastErr = err
	m.setStatus(StatusIdle)
	return err
}

// Submit validates the current draft and, if it passes, sends it for
// evaluation. The model call is detached from ctx cancellation so a result is
// recorded even when the caller goes away.
func (m *Machine) Submit(ctx context.Context, req SubmitRequest) (*model.Submission, error) {
	m.mu.Lock()
	if m.status == StatusSubmitting {
		m.mu.Unlock()
		return nil, apperr.NewAttemptInFlight()
	}
	m.setStatus(StatusValidating)
	m.lastErr = nil
	m.submission = nil

	draft, err := m.validate(ctx, req)
	if err != nil {
		if apperr.Is(err, apperr.CodeLengthWarning) {
			m.lastErr = err
			m.setStatus(StatusLengthWarning)
		} else {
			m.fail(err)
		}
		m.mu.Unlock()
		return nil, err
	}

	m.setStatus(StatusSubmitting)
	m.timerHeld = false
	timerWasOn := m.pauseTimerLocked()
	m.mu.Unlock()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.Timeout)
	defer cancel()

	start := time.Now()
	eval, err := m.deps.Evaluator.Evaluate(callCtx, llm.EvaluationRequest{
		TaskType:        draft.TaskType,
		Prompt:          draft.Prompt,
		Essay:           draft.Essay,
		TaskImage:       draft.TaskImage,
		SubmissionImage: draft.SubmissionImage,
		Language:        req.Language,
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		slog.Warn("evaluation failed", "profile", m.profileID, "mode", m.mode,
			"kind", apperr.KindOf(err), "elapsed", time.Since(start), "error", err)
		m.setStatus(StatusFailure)
		if timerWasOn && !m.timerHeld {
			m.startTimerLocked()
		}
		return nil, m.fail(classify(err))
	}

	sub, err := m.record(callCtx, draft, eval)
	if err != nil {
		slog.Error("record submission", "profile", m.profileID, "mode", m.mode, "error", err)
		if timerWasOn && !m.timerHeld {
			m.startTimerLocked()
		}
		return nil, m.fail(err)
	}
	slog.Info("essay evaluated", "profile", m.profileID, "mode", m.mode, "submission", sub.ID,
		"band", eval.OverallBand, "elapsed", time.Since(start))

	m.submission = sub
	m.setStatus(StatusSuccess)
	return sub, nil
}

// validate checks the draft and the gate. Callers hold mu.
func (m *Machine) validate(ctx context.Context, req SubmitRequest) (model.Draft, error) {
	draft, err := m.deps.Drafts.LoadDraft(m.profileID, m.mode)
	if err != nil {
		return draft, fmt.Errorf("load draft: %w", err)
	}
	if strings.TrimSpace(draft.Prompt) == "" || strings.TrimSpace(draft.Essay) == "" {
		return draft, apperr.NewMissingFields()
	}

	words := model.WordCount(draft.Essay)
	minWords := draft.TaskType.MinWords()
	if words > 0 && words < minWords && !req.Confirm {
		return draft, apperr.NewLengthWarning(words, minWords)
	}

	if m.opts.RequireAccess {
		unlocked, err := m.deps.Gate.Unlocked(ctx, m.profileID)
		if err != nil {
			return draft, fmt.Errorf("check access: %w", err)
		}
		if !unlocked {
			return draft, apperr.NewAccessRequired()
		}
	}
	if m.opts.CreditsEnabled {
		balance, err := m.deps.Gate.Balance(ctx, m.profileID)
		if err != nil {
			return draft, fmt.Errorf("check credits: %w", err)
		}
		if balance <= 0 {
			return draft, apperr.NewInsufficientCredits()
		}
	}
	return draft, nil
}

// record appends the submission, then spends the credit and clears the
// draft. A failed append leaves the balance untouched. Callers hold mu.
func (m *Machine) record(ctx context.Context, draft model.Draft, eval *model.Evaluation) (*model.Submission, error) {
	sub := &model.Submission{
		ProfileID:       m.profileID,
		Mode:            m.mode,
		TaskType:        draft.TaskType,
		Prompt:          draft.Prompt,
		Essay:           draft.Essay,
		TaskImage:       draft.TaskImage,
		SubmissionImage: draft.SubmissionImage,
		Evaluation:      *eval,
	}
	if err := m.deps.Ledger.AppendSubmission(sub, m.opts.HistoryCap); err != nil {
		return nil, fmt.Errorf("append submission: %w", err)
	}

	if m.opts.CreditsEnabled {
		if err := m.deps.Gate.SpendCredit(ctx, m.profileID); err != nil {
			// Balance was checked before the call; a concurrent spend in another
			// mode can still empty it. The result is kept.
			slog.Warn("spend credit after evaluation", "profile", m.profileID, "error", err)
		}
	}

	m.stopTickerLocked()
	if err := m.deps.Drafts.ClearDraft(m.profileID, m.mode); err != nil {
		slog.Error("clear draft after submission", "profile", m.profileID, "mode", m.mode, "error", err)
	}
	return sub, nil
}

// classify wraps unclassified adapter errors as transient service failures.
func classify(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.NewTransient(err)
}
