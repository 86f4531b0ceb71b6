package attempt

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/bandcoach/internal/apperr"
	"github.com/pavelanni/bandcoach/internal/model"
)

// TimerAction is a client request on the exam countdown.
type TimerAction string

const (
	TimerStart TimerAction = "start"
	TimerPause TimerAction = "pause"
	TimerReset TimerAction = "reset"
)

// Draft returns the persisted draft.
func (m *Machine) Draft() (model.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deps.Drafts.LoadDraft(m.profileID, m.mode)
}

// SaveDraft stores a client edit. In exam mode the server owns the countdown:
// the remaining time is kept from the stored draft unless the task type
// changes, which resets it. The countdown starts on the first non-empty essay.
func (m *Machine) SaveDraft(d model.Draft) (model.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.TaskType == "" {
		d.TaskType = model.TaskType2
	}
	d.UpdatedAt = time.Time{}

	if m.mode != model.ModeExam {
		d.RemainingSeconds = 0
		d.TimerRunning = false
		return d, m.saveLocked(&d)
	}

	stored, err := m.deps.Drafts.LoadDraft(m.profileID, m.mode)
	if err != nil {
		return d, fmt.Errorf("load draft: %w", err)
	}
	if stored.TaskType != d.TaskType {
		m.holdTimerLocked()
		d.RemainingSeconds = d.TaskType.TimeLimit()
		d.TimerRunning = false
	} else {
		d.RemainingSeconds = stored.RemainingSeconds
		d.TimerRunning = m.timerOn
	}

	autoStart := !m.timerOn && m.status != StatusSubmitting &&
		strings.TrimSpace(stored.Essay) == "" && strings.TrimSpace(d.Essay) != "" && d.RemainingSeconds > 0
	if autoStart {
		d.TimerRunning = true
	}
	if err := m.saveLocked(&d); err != nil {
		return d, err
	}
	if autoStart {
		m.runTickerLocked()
	}
	return d, nil
}

// ClearDraft discards the draft and stops the countdown.
func (m *Machine) ClearDraft() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdTimerLocked()
	if err := m.deps.Drafts.ClearDraft(m.profileID, m.mode); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}

// Timer applies a countdown action and returns the updated draft.
func (m *Machine) Timer(action TimerAction) (model.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mode != model.ModeExam {
		return model.Draft{}, apperr.NewInvalidRequest("timer is only available in exam mode")
	}
	d, err := m.deps.Drafts.LoadDraft(m.profileID, m.mode)
	if err != nil {
		return d, fmt.Errorf("load draft: %w", err)
	}

	switch action {
	case TimerStart:
		if m.status == StatusSubmitting || d.RemainingSeconds <= 0 {
			return d, nil
		}
		d.TimerRunning = true
		if err := m.saveLocked(&d); err != nil {
			return d, err
		}
		m.runTickerLocked()
	case TimerPause:
		m.holdTimerLocked()
		d.TimerRunning = false
		if err := m.saveLocked(&d); err != nil {
			return d, err
		}
	case TimerReset:
		m.holdTimerLocked()
		d.TimerRunning = false
		d.RemainingSeconds = d.TaskType.TimeLimit()
		if err := m.saveLocked(&d); err != nil {
			return d, err
		}
	default:
		return d, apperr.NewInvalidRequest("unknown timer action: " + string(action))
	}
	return d, nil
}

// Tick advances the countdown by one second. It reports whether the countdown
// is still running.
func (m *Machine) Tick() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickLocked()
}

// tick is the goroutine step; a ticker replaced by a newer one stops.
func (m *Machine) tick(stop chan struct{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopTick != stop {
		return false
	}
	return m.tickLocked()
}

func (m *Machine) tickLocked() bool {
	if !m.timerOn {
		return false
	}
	d, err := m.deps.Drafts.LoadDraft(m.profileID, m.mode)
	if err != nil {
		slog.Error("timer load draft", "profile", m.profileID, "error", err)
		return true
	}
	if d.RemainingSeconds > 0 {
		d.RemainingSeconds--
	}
	if d.RemainingSeconds == 0 {
		d.TimerRunning = false
		m.timerOn = false
		m.stopTick = nil
		slog.Info("exam time is up", "profile", m.profileID)
	}
	if err := m.saveLocked(&d); err != nil {
		slog.Error("timer save draft", "profile", m.profileID, "error", err)
	}
	return m.timerOn
}

// Close stops the countdown goroutine without touching the stored draft.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTickerLocked()
}

// resume restarts the countdown of a draft persisted as running.
func (m *Machine) resume() {
	if m.mode != model.ModeExam {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.deps.Drafts.LoadDraft(m.profileID, m.mode)
	if err != nil {
		slog.Error("resume timer", "profile", m.profileID, "error", err)
		return
	}
	if d.TimerRunning && d.RemainingSeconds > 0 {
		m.runTickerLocked()
	}
}

func (m *Machine) saveLocked(d *model.Draft) error {
	if err := m.deps.Drafts.SaveDraft(m.profileID, m.mode, *d); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// pauseTimerLocked stops a running countdown and persists it as paused.
// It reports whether the countdown was running.
func (m *Machine) pauseTimerLocked() bool {
	if !m.timerOn {
		return false
	}
	m.stopTickerLocked()
	d, err := m.deps.Drafts.LoadDraft(m.profileID, m.mode)
	if err == nil {
		d.TimerRunning = false
		err = m.saveLocked(&d)
	}
	if err != nil {
		slog.Error("pause timer", "profile", m.profileID, "error", err)
	}
	return true
}

// startTimerLocked resumes the countdown and persists it as running.
func (m *Machine) startTimerLocked() {
	d, err := m.deps.Drafts.LoadDraft(m.profileID, m.mode)
	if err != nil {
		slog.Error("resume timer", "profile", m.profileID, "error", err)
		return
	}
	if d.RemainingSeconds <= 0 {
		return
	}
	d.TimerRunning = true
	if err := m.saveLocked(&d); err != nil {
		slog.Error("resume timer", "profile", m.profileID, "error", err)
		return
	}
	m.runTickerLocked()
}

func (m *Machine) runTickerLocked() {
	if m.timerOn {
		return
	}
	m.timerOn = true
	stop := make(chan struct{})
	m.stopTick = stop
	go func() {
		t := time.NewTicker(m.opts.TickInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if !m.tick(stop) {
					return
				}
			}
		}
	}()
}

// holdTimerLocked stops the countdown on a user action. During a submission
// it also keeps the failure path from restarting it.
func (m *Machine) holdTimerLocked() {
	if m.status == StatusSubmitting {
		m.timerHeld = true
	}
	m.stopTickerLocked()
}

func (m *Machine) stopTickerLocked() {
	m.timerOn = false
	if m.stopTick != nil {
		close(m.stopTick)
		m.stopTick = nil
	}
}

// TimerRunning reports whether the countdown goroutine is active.
func (m *Machine) TimerRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timerOn
}
