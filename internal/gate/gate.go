// Package gate decides whether a profile may start an evaluation.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/bandcoach/internal/apperr"
	"github.com/pavelanni/bandcoach/internal/model"
)

// DefaultInitialCredits is the balance after creation or refill.
const DefaultInitialCredits = 10

// ProfileStore is the persistence the gate needs.
type ProfileStore interface {
	EnsureProfile(id string, initialCredits int) error
	GetProfile(id string) (*model.Profile, error)
	SetUnlocked(id string, unlocked bool) error
	SpendCredit(id string) (bool, error)
	SetCredits(id string, credits int) error
}

// Gate checks access codes and keeps the credit balance.
type Gate struct {
	store          ProfileStore
	codeHash       []byte
	initialCredits int
}

// New creates a gate. accessCode may be a bcrypt hash or a plain code, which is
// hashed on startup. An empty code disables unlocking.
func New(s ProfileStore, accessCode string, initialCredits int) (*Gate, error) {
	if initialCredits < 0 {
		return nil, fmt.Errorf("initial credits must not be negative: %d", initialCredits)
	}
	g := &Gate{store: s, initialCredits: initialCredits}
	switch {
	case accessCode == "":
	case isBcryptHash(accessCode):
		g.codeHash = []byte(accessCode)
	default:
		hash, err := bcrypt.GenerateFromPassword([]byte(accessCode), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash access code: %w", err)
		}
		g.codeHash = hash
	}
	return g, nil
}

func isBcryptHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil && strings.HasPrefix(s, "$2")
}

// InitialCredits returns the refill constant.
func (g *Gate) InitialCredits() int {
	return g.initialCredits
}

// Profile returns the profile, creating it on first sight.
func (g *Gate) Profile(_ context.Context, profileID string) (*model.Profile, error) {
	if err := g.store.EnsureProfile(profileID, g.initialCredits); err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}
	p, err := g.store.GetProfile(profileID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if p == nil {
		return nil, apperr.NewNotFound(profileID)
	}
	return p, nil
}

// CheckAccessCode unlocks the profile when input matches the configured code.
// A wrong code changes nothing and returns ACCESS_DENIED.
func (g *Gate) CheckAccessCode(ctx context.Context, profileID, input string) error {
	input = strings.TrimSpace(input)
	if len(g.codeHash) == 0 || input == "" {
		slog.Warn("access code rejected", "profile", profileID, "configured", len(g.codeHash) > 0)
		return apperr.NewAccessDenied()
	}
	if err := bcrypt.CompareHashAndPassword(g.codeHash, []byte(input)); err != nil {
		slog.Warn("access code rejected", "profile", profileID)
		return apperr.NewAccessDenied()
	}
	if _, err := g.Profile(ctx, profileID); err != nil {
		return err
	}
	if err := g.store.SetUnlocked(profileID, true); err != nil {
		return fmt.Errorf("persist unlock: %w", err)
	}
	slog.Info("profile unlocked", "profile", profileID)
	return nil
}

// Logout clears the unlocked flag.
func (g *Gate) Logout(_ context.Context, profileID string) error {
	if err := g.store.SetUnlocked(profileID, false); err != nil {
		return fmt.Errorf("persist logout: %w", err)
	}
	return nil
}

// Unlocked reports the profile's access flag.
func (g *Gate) Unlocked(ctx context.Context, profileID string) (bool, error) {
	p, err := g.Profile(ctx, profileID)
	if err != nil {
		return false, err
	}
	return p.Unlocked, nil
}

// Balance returns the current credit balance.
func (g *Gate) Balance(ctx context.Context, profileID string) (int, error) {
	p, err := g.Profile(ctx, profileID)
	if err != nil {
		return 0, err
	}
	return p.Credits, nil
}

// SpendCredit takes one credit, or returns INSUFFICIENT_CREDITS at zero.
func (g *Gate) SpendCredit(ctx context.Context, profileID string) error {
	if _, err := g.Profile(ctx, profileID); err != nil {
		return err
	}
	ok, err := g.store.SpendCredit(profileID)
	if err != nil {
		return fmt.Errorf("spend credit: %w", err)
	}
	if !ok {
		return apperr.NewInsufficientCredits()
	}
	return nil
}

// Refill resets the balance to the initial constant.
func (g *Gate) Refill(ctx context.Context, profileID string) error {
	if _, err := g.Profile(ctx, profileID); err != nil {
		return err
	}
	if err := g.store.SetCredits(profileID, g.initialCredits); err != nil {
		return fmt.Errorf("refill credits: %w", err)
	}
	slog.Info("credits refilled", "profile", profileID, "credits", g.initialCredits)
	return nil
}
