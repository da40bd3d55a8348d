package credit

import (
	"context"
	"errors"
	"testing"

	"github.com/moodi-app/moodi/internal/domain"
	"github.com/moodi-app/moodi/internal/infra/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func grant(amount int64, reason domain.AwardReason) domain.GameStateFunc {
	return func(s domain.UserGameState) (domain.UserGameState, []domain.CoinAward) {
		s.Moodcoins += amount
		return s, []domain.CoinAward{{Reason: reason, Amount: amount}}
	}
}

var ctx = context.Background()

func TestService_InitialBalance(t *testing.T) {
	svc := NewService(newTestDB(t))

	bal, err := svc.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("Balance() error: %v", err)
	}
	if bal != 0 {
		t.Errorf("initial balance = %d, want 0", bal)
	}
}

func TestService_BalanceRequiresUser(t *testing.T) {
	svc := NewService(newTestDB(t))

	if _, err := svc.Balance(ctx, ""); !errors.Is(err, domain.ErrUserIDRequired) {
		t.Errorf("Balance(\"\") error = %v, want ErrUserIDRequired", err)
	}
}

func TestService_BalanceTracksAwards(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	db.UpdateGameState(ctx, "u1", "m1", grant(5, domain.AwardDailyPost))
	db.UpdateGameState(ctx, "u1", "m2", grant(25, domain.AwardReferral))

	bal, err := svc.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("Balance() error: %v", err)
	}
	if bal != 30 {
		t.Errorf("balance = %d, want 30", bal)
	}
}

func TestService_History(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	for i := 0; i < 5; i++ {
		db.UpdateGameState(ctx, "u1", "m", grant(5, domain.AwardDailyPost))
	}

	history, err := svc.History(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(history) != 3 {
		t.Errorf("History(3) returned %d entries, want 3", len(history))
	}
	if history[0].Balance != 25 {
		t.Errorf("newest balance = %d, want 25", history[0].Balance)
	}
}

func TestService_HistoryEmpty(t *testing.T) {
	svc := NewService(newTestDB(t))

	history, err := svc.History(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if history == nil || len(history) != 0 {
		t.Errorf("History() = %v, want empty slice", history)
	}
}

func TestService_VerifyBalanced(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	db.UpdateGameState(ctx, "u1", "m1", grant(5, domain.AwardDailyPost))
	db.UpdateGameState(ctx, "u2", "r1", grant(25, domain.AwardReferral))

	if err := svc.Verify(ctx, "u1", "u2", "never-seen"); err != nil {
		t.Errorf("Verify() error: %v", err)
	}
}

func TestService_VerifyDetectsDrift(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)

	// Coins added to state without a matching ledger posting.
	db.UpdateGameState(ctx, "u1", "", func(s domain.UserGameState) (domain.UserGameState, []domain.CoinAward) {
		s.Moodcoins += 10
		return s, nil
	})

	err := svc.Verify(ctx, "u1")
	if !errors.Is(err, ErrLedgerImbalance) {
		t.Errorf("Verify() error = %v, want ErrLedgerImbalance", err)
	}
}
