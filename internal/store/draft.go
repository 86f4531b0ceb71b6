package store

import (
	"database/sql"
	"time"

	"github.com/pavelanni/bandcoach/internal/model"
)

// LoadDraft returns the persisted draft for a mode, or a fresh default.
func (s *Store) LoadDraft(profileID string, mode model.Mode) (model.Draft, error) {
	var d model.Draft
	var running int
	var updated int64
	err := s.db.QueryRow(
		`SELECT task_type, prompt, essay, remaining_seconds, timer_running, task_image, submission_image, updated_at
		 FROM drafts WHERE profile_id = ? AND mode = ?`, profileID, mode,
	).Scan(&d.TaskType, &d.Prompt, &d.Essay, &d.RemainingSeconds, &running, &d.TaskImage, &d.SubmissionImage, &updated)
	if err == sql.ErrNoRows {
		return model.NewDraft(model.TaskType2), nil
	}
	if err != nil {
		return model.Draft{}, err
	}
	d.TimerRunning = running != 0
	d.UpdatedAt = time.UnixMilli(updated).UTC()
	return d, nil
}

// SaveDraft overwrites the draft for a mode.
func (s *Store) SaveDraft(profileID string, mode model.Mode, d model.Draft) error {
	updated := d.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO drafts (profile_id, mode, task_type, prompt, essay, remaining_seconds, timer_running, task_image, submission_image, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(profile_id, mode) DO UPDATE SET
			task_type = excluded.task_type,
			prompt = excluded.prompt,
			essay = excluded.essay,
			remaining_seconds = excluded.remaining_seconds,
			timer_running = excluded.timer_running,
			task_image = excluded.task_image,
			submission_image = excluded.submission_image,
			updated_at = excluded.updated_at`,
		profileID, mode, d.TaskType, d.Prompt, d.Essay, d.RemainingSeconds, boolToInt(d.TimerRunning),
		d.TaskImage, d.SubmissionImage, updated.UnixMilli(),
	)
	return err
}

// ClearDraft removes the draft for a mode.
func (s *Store) ClearDraft(profileID string, mode model.Mode) error {
	_, err := s.db.Exec(`DELETE FROM drafts WHERE profile_id = ? AND mode = ?`, profileID, mode)
	return err
}
