package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pavelanni/bandcoach/internal/model"
)

// DefaultHistoryCap is the number of submissions kept per profile.
const DefaultHistoryCap = 20

// AppendSubmission stores a submission as the newest history entry and evicts
// the oldest entries beyond limit. ID and CreatedAt are filled in when empty.
func (s *Store) AppendSubmission(sub *model.Submission, limit int) error {
	if limit <= 0 {
		limit = DefaultHistoryCap
	}
	if sub.ID == "" {
		id, err := generateULID()
		if err != nil {
			return fmt.Errorf("generate id: %w", err)
		}
		sub.ID = id
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	evalJSON, err := json.Marshal(sub.Evaluation)
	if err != nil {
		return fmt.Errorf("marshal evaluation: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO submissions (id, profile_id, mode, task_type, prompt, essay, task_image, submission_image, evaluation_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.ProfileID, sub.Mode, sub.TaskType, sub.Prompt, sub.Essay,
		sub.TaskImage, sub.SubmissionImage, string(evalJSON), sub.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		`DELETE FROM submissions WHERE profile_id = ? AND seq NOT IN (
			SELECT seq FROM submissions WHERE profile_id = ? ORDER BY seq DESC LIMIT ?
		 )`,
		sub.ProfileID, sub.ProfileID, limit,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

const submissionColumns = `id, profile_id, mode, task_type, prompt, essay, task_image, submission_image, evaluation_json, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (model.Submission, error) {
	var sub model.Submission
	var evalJSON string
	var created int64
	if err := row.Scan(&sub.ID, &sub.ProfileID, &sub.Mode, &sub.TaskType, &sub.Prompt, &sub.Essay,
		&sub.TaskImage, &sub.SubmissionImage, &evalJSON, &created); err != nil {
		return sub, err
	}
	if err := json.Unmarshal([]byte(evalJSON), &sub.Evaluation); err != nil {
		return sub, fmt.Errorf("decode evaluation for %s: %w", sub.ID, err)
	}
	sub.CreatedAt = time.UnixMilli(created).UTC()
	return sub, nil
}

// ListSubmissions returns the profile's history, newest first.
func (s *Store) ListSubmissions(profileID string) ([]model.Submission, error) {
	rows, err := s.db.Query(
		`SELECT `+submissionColumns+` FROM submissions WHERE profile_id = ? ORDER BY seq DESC`, profileID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// GetSubmission returns one submission, or nil if not found.
func (s *Store) GetSubmission(profileID, id string) (*model.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRow(
		`SELECT `+submissionColumns+` FROM submissions WHERE profile_id = ? AND id = ?`, profileID, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ClearHistory removes all submissions of a profile.
func (s *Store) ClearHistory(profileID string) error {
	_, err := s.db.Exec(`DELETE FROM submissions WHERE profile_id = ?`, profileID)
	return err
}

// CountSubmissions returns the history size of a profile.
func (s *Store) CountSubmissions(profileID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM submissions WHERE profile_id = ?`, profileID).Scan(&count)
	return count, err
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
