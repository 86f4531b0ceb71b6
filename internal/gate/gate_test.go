package gate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/bandcoach/internal/apperr"
	"github.com/pavelanni/bandcoach/internal/store"
)

func newTestGate(t *testing.T, code string, credits int) (*Gate, *store.Store) {
	t.Helper()
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	g, err := New(s, code, credits)
	require.NoError(t, err)
	return g, s
}

func TestCheckAccessCode(t *testing.T) {
	ctx := context.Background()
	g, s := newTestGate(t, "IELTS-2025", DefaultInitialCredits)

	err := g.CheckAccessCode(ctx, "p1", "wrong")
	require.True(t, apperr.Is(err, apperr.CodeAccessDenied))
	p, err := s.GetProfile("p1")
	require.NoError(t, err)
	assert.Nil(t, p, "a wrong code must not persist anything")

	require.NoError(t, g.CheckAccessCode(ctx, "p1", "  IELTS-2025 "))
	unlocked, err := g.Unlocked(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, unlocked)

	require.NoError(t, g.Logout(ctx, "p1"))
	unlocked, err = g.Unlocked(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, unlocked)
}

func TestCheckAccessCodeWithHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	g, _ := newTestGate(t, string(hash), 1)

	require.NoError(t, g.CheckAccessCode(context.Background(), "p1", "secret"))
	require.Error(t, g.CheckAccessCode(context.Background(), "p2", string(hash)))
}

func TestCheckAccessCodeDisabled(t *testing.T) {
	g, _ := newTestGate(t, "", 1)
	err := g.CheckAccessCode(context.Background(), "p1", "")
	assert.True(t, apperr.Is(err, apperr.CodeAccessDenied))
}

func TestSpendCreditNeverNegative(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGate(t, "", 2)

	require.NoError(t, g.SpendCredit(ctx, "p1"))
	require.NoError(t, g.SpendCredit(ctx, "p1"))

	for i := 0; i < 3; i++ {
		err := g.SpendCredit(ctx, "p1")
		require.True(t, apperr.Is(err, apperr.CodeInsufficientCredits), "spend at zero: %v", err)
		bal, err := g.Balance(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 0, bal)
	}
}

func TestRefill(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		spend int
	}{
		{"from full", 0},
		{"from partial", 3},
		{"from empty", DefaultInitialCredits + 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGate(t, "", DefaultInitialCredits)
			for i := 0; i < tt.spend; i++ {
				_ = g.SpendCredit(ctx, "p1")
			}
			require.NoError(t, g.Refill(ctx, "p1"))
			bal, err := g.Balance(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, DefaultInitialCredits, bal)
		})
	}
}

func TestNewRejectsNegativeCredits(t *testing.T) {
	_, err := New(nil, "", -1)
	assert.Error(t, err)
}
