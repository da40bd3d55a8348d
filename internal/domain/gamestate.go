// Package domain holds MOODI's core types.
// The gamification types model one per-user record (streak, MoodCoins,
// unlocks) plus the ledger and referral rows that surround it.
package domain

import (
	"slices"
	"sort"
	"time"
)

// ─── Game State ─────────────────────────────────────────────────────────────

// UserGameState is the per-user gamification record.
// StreakDays == 0 iff LastMoodDate == nil.
type UserGameState struct {
	UserID       string    `json:"user_id"`
	StreakDays   int       `json:"streak_days"`
	Moodcoins    int64     `json:"moodcoins"`
	LastMoodDate *Date     `json:"last_mood_date"`
	Unlocks      []string  `json:"unlocks"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// NewUserGameState returns the zero-valued state for a user.
func NewUserGameState(userID string) UserGameState {
	return UserGameState{UserID: userID, Unlocks: []string{}}
}

// HasUnlock reports whether id has already been granted.
func (s UserGameState) HasUnlock(id string) bool {
	return slices.Contains(s.Unlocks, id)
}

// Clone returns a copy that shares no memory with s.
func (s UserGameState) Clone() UserGameState {
	c := s
	if s.LastMoodDate != nil {
		d := *s.LastMoodDate
		c.LastMoodDate = &d
	}
	c.Unlocks = append([]string{}, s.Unlocks...)
	return c
}

// ─── Unlocks ────────────────────────────────────────────────────────────────

// Unlock identifiers.
const (
	UnlockCustomGradient  = "custom_gradient"
	UnlockVoiceReflection = "voice_reflection"
)

// UnlockDef is one catalog entry: a feature granted once the coin
// balance reaches Threshold.
type UnlockDef struct {
	ID        string `json:"id" toml:"id"`
	Threshold int64  `json:"threshold" toml:"threshold"`
}

// UnlockCatalog is static configuration, scanned in ascending threshold order.
type UnlockCatalog []UnlockDef

// DefaultUnlockCatalog returns the shipped catalog.
func DefaultUnlockCatalog() UnlockCatalog {
	return UnlockCatalog{
		{ID: UnlockCustomGradient, Threshold: 50},
		{ID: UnlockVoiceReflection, Threshold: 120},
	}
}

// Sorted returns a copy ordered by ascending threshold. Ties keep catalog order.
func (c UnlockCatalog) Sorted() UnlockCatalog {
	out := append(UnlockCatalog{}, c...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Threshold < out[j].Threshold })
	return out
}

// ─── Coin Awards & Ledger ───────────────────────────────────────────────────

// AwardReason categorizes how MoodCoins were earned.
type AwardReason string

const (
	AwardDailyPost   AwardReason = "daily_post"
	AwardStreakBonus AwardReason = "streak_bonus"
	AwardReferral    AwardReason = "referral"
)

// CoinAward is a single reason-tagged coin grant.
type CoinAward struct {
	Reason AwardReason `json:"reason"`
	Amount int64       `json:"amount"`
}

// EntryType is the side of a double-entry posting.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// PoolAccount is the system account every award is drawn from.
const PoolAccount = "system_pool"

// UserAccount returns the ledger account name for a user.
func UserAccount(userID string) string { return "user:" + userID }

// LedgerEntry is one row of the MoodCoin ledger.
// Every award produces a DEBIT on PoolAccount and a CREDIT on the user's account.
type LedgerEntry struct {
	ID          int64       `json:"id"`
	Timestamp   time.Time   `json:"timestamp"`
	Reason      AwardReason `json:"reason"`
	EntryType   EntryType   `json:"entry_type"`
	Account     string      `json:"account"`
	Amount      int64       `json:"amount"`
	Reference   string      `json:"reference,omitempty"`
	Description string      `json:"description,omitempty"`
	Balance     int64       `json:"balance"`
}

// PostAward builds the matched DEBIT/CREDIT pair for one award given the
// current balances of the pool and the user account.
func PostAward(a CoinAward, userID, reference string, poolBal, userBal int64, at time.Time) [2]LedgerEntry {
	desc := string(a.Reason)
	return [2]LedgerEntry{
		{
			Timestamp: at, Reason: a.Reason, EntryType: EntryDebit,
			Account: PoolAccount, Amount: a.Amount, Reference: reference,
			Description: desc, Balance: poolBal - a.Amount,
		},
		{
			Timestamp: at, Reason: a.Reason, EntryType: EntryCredit,
			Account: UserAccount(userID), Amount: a.Amount, Reference: reference,
			Description: desc, Balance: userBal + a.Amount,
		},
	}
}

// LedgerTotals sums both sides of the ledger. Debits == Credits always.
type LedgerTotals struct {
	Debits  int64 `json:"debits"`
	Credits int64 `json:"credits"`
}

// ─── Referrals ──────────────────────────────────────────────────────────────

// Referral records an invitation. Accepted flips false -> true exactly once.
type Referral struct {
	ID            string     `json:"id"`
	InviterUserID string     `json:"inviter_user_id"`
	InviteeUserID string     `json:"invitee_user_id"`
	Accepted      bool       `json:"accepted"`
	CreatedAt     time.Time  `json:"created_at"`
	AcceptedAt    *time.Time `json:"accepted_at,omitempty"`
}
