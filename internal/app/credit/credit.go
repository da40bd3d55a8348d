// Package credit reads and audits the MoodCoin ledger.
// Every award is posted as matched DEBIT (system_pool) and CREDIT (user:<id>)
// entries. SUM(debits) == SUM(credits) is an invariant, and each user's
// running credit balance equals the moodcoins on their game record.
package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/moodi-app/moodi/internal/domain"
)

// DefaultHistoryLimit caps History when the caller passes limit <= 0.
const DefaultHistoryLimit = 50

// ErrLedgerImbalance is returned by Verify when an invariant does not hold.
var ErrLedgerImbalance = errors.New("ledger imbalance")

// Service exposes the coin ledger.
type Service struct {
	store domain.GameStore
}

// NewService creates a credit service.
func NewService(store domain.GameStore) *Service {
	return &Service{store: store}
}

// Balance returns the user's ledger balance.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, domain.ErrUserIDRequired
	}
	return s.store.LedgerBalance(ctx, domain.UserAccount(userID))
}

// History returns the user's recent ledger entries, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]domain.LedgerEntry, error) {
	if userID == "" {
		return nil, domain.ErrUserIDRequired
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	entries, err := s.store.LedgerEntries(ctx, domain.UserAccount(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("ledger history: %w", err)
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	return entries, nil
}

// Verify checks that the ledger balances and, for each given user, that the
// ledger balance matches the stored moodcoins.
func (s *Service) Verify(ctx context.Context, userIDs ...string) error {
	totals, err := s.store.LedgerTotals(ctx)
	if err != nil {
		return fmt.Errorf("ledger totals: %w", err)
	}
	if totals.Debits != totals.Credits {
		return fmt.Errorf("%w: debits %d != credits %d", ErrLedgerImbalance, totals.Debits, totals.Credits)
	}

	for _, id := range userIDs {
		bal, err := s.Balance(ctx, id)
		if err != nil {
			return fmt.Errorf("balance %s: %w", id, err)
		}
		st, err := s.store.GameState(ctx, id)
		if errors.Is(err, domain.ErrStateNotFound) {
			st = domain.NewUserGameState(id)
		} else if err != nil {
			return fmt.Errorf("game state %s: %w", id, err)
		}
		if bal != st.Moodcoins {
			return fmt.Errorf("%w: user %s ledger %d != moodcoins %d", ErrLedgerImbalance, id, bal, st.Moodcoins)
		}
	}
	return nil
}
