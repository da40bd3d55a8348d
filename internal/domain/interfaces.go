package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// GameStateFunc computes the next state from the current one and returns the
// coin awards to post to the ledger. It must be pure: stores may call it
// inside a transaction.
type GameStateFunc func(current UserGameState) (next UserGameState, awards []CoinAward)

// GameStore persists per-user game state, the coin ledger, referrals and mood
// history. UpdateGameState and AcceptReferral run fn inside one transaction
// that serializes concurrent updates for the same user.
type GameStore interface {
	// GameState returns ErrStateNotFound if the user has no record yet.
	GameState(ctx context.Context, userID string) (UserGameState, error)

	// UpdateGameState loads (or zero-initializes) the user's state, applies fn,
	// and persists the new state, new unlocks and ledger postings atomically.
	UpdateGameState(ctx context.Context, userID, reference string, fn GameStateFunc) (UserGameState, error)

	CreateReferral(ctx context.Context, r Referral) error
	GetReferral(ctx context.Context, id string) (*Referral, error)

	// AcceptReferral flips the referral's accepted flag and applies fn to the
	// inviter's state in the same transaction. A second call for the same id
	// returns ErrReferralAlreadyAccepted without touching state.
	AcceptReferral(ctx context.Context, id string, at time.Time, fn GameStateFunc) (Referral, UserGameState, error)

	LedgerEntries(ctx context.Context, account string, limit int) ([]LedgerEntry, error)
	LedgerBalance(ctx context.Context, account string) (int64, error)
	LedgerTotals(ctx context.Context) (LedgerTotals, error)

	InsertMood(ctx context.Context, m MoodRecord) error
	ListMoods(ctx context.Context, userID string, limit int) ([]MoodRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// ChatMessage is one message of an LLM chat exchange.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a JSON-mode chat completion request.
type ChatRequest struct {
	Messages    []ChatMessage
	Temperature float32
}

// ChatCompleter abstracts the external LLM. Complete returns the raw JSON
// object the model produced as its message content.
type ChatCompleter interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// Moderator flags unsafe free text.
type Moderator interface {
	Moderate(ctx context.Context, text string) (flagged bool, err error)
}

// ArtifactCache stores validated artifacts keyed on the full payload.
// Get returns ErrCacheMiss when nothing is stored.
type ArtifactCache interface {
	Get(ctx context.Context, key string) (Artifact, error)
	Set(ctx context.Context, key string, a Artifact) error
	Ping(ctx context.Context) error
}
