package store

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/pavelanni/bandcoach/internal/model"
)

// EnsureProfile creates the profile with the given starting balance if it does not exist.
func (s *Store) EnsureProfile(id string, initialCredits int) error {
	res, err := s.db.Exec(
		`INSERT INTO profiles (id, credits, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, initialCredits, time.Now().UnixMilli(),
	)
	if err != nil {
		slog.Error("failed to create profile", "id", id, "error", err)
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("created profile", "id", id, "credits", initialCredits)
	}
	return nil
}

// GetProfile returns a profile by ID, or nil if not found.
func (s *Store) GetProfile(id string) (*model.Profile, error) {
	var p model.Profile
	var unlocked int
	var created int64
	err := s.db.QueryRow(
		`SELECT id, unlocked, credits, theme, language, created_at FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &unlocked, &p.Credits, &p.Theme, &p.Language, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Unlocked = unlocked != 0
	p.CreatedAt = time.UnixMilli(created).UTC()
	return &p, nil
}

// SetUnlocked sets the access flag on a profile.
func (s *Store) SetUnlocked(id string, unlocked bool) error {
	_, err := s.db.Exec(`UPDATE profiles SET unlocked = ? WHERE id = ?`, boolToInt(unlocked), id)
	return err
}

// SpendCredit decrements the balance by one if it is positive.
// It reports false when the balance was already zero.
func (s *Store) SpendCredit(id string) (bool, error) {
	res, err := s.db.Exec(`UPDATE profiles SET credits = credits - 1 WHERE id = ? AND credits > 0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetCredits overwrites the balance.
func (s *Store) SetCredits(id string, credits int) error {
	_, err := s.db.Exec(`UPDATE profiles SET credits = ? WHERE id = ?`, credits, id)
	return err
}

// SetPreferences updates theme and language.
func (s *Store) SetPreferences(id string, theme model.Theme, language string) error {
	_, err := s.db.Exec(`UPDATE profiles SET theme = ?, language = ? WHERE id = ?`, theme, language, id)
	return err
}

// ProfileCount returns the total number of profiles.
func (s *Store) ProfileCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM profiles`).Scan(&count)
	return count, err
}
