// Package engagement implements the MOODI gamification engine.
// Streaks, MoodCoins, unlocks and referral rewards over one per-user record.
// The engine is pure; Service adds persistence and per-user serialization.
package engagement

import "github.com/moodi-app/moodi/internal/domain"

// Reward rules.
const (
	DailyPostCoins      int64 = 5
	StreakBonusCoins    int64 = 5
	StreakBonusInterval       = 3 // bonus on every 3rd consecutive day
	ReferralCoins       int64 = 25
)

// Engine applies mood-submission and referral-acceptance events to a
// UserGameState. It holds no mutable state; every call is a function of its
// explicit inputs.
type Engine struct {
	catalog domain.UnlockCatalog
}

// NewEngine creates an engine over the given unlock catalog.
// A nil catalog means domain.DefaultUnlockCatalog().
func NewEngine(catalog domain.UnlockCatalog) *Engine {
	if catalog == nil {
		catalog = domain.DefaultUnlockCatalog()
	}
	return &Engine{catalog: catalog.Sorted()}
}

// Catalog returns the unlock catalog in scan order.
func (e *Engine) Catalog() domain.UnlockCatalog {
	return append(domain.UnlockCatalog{}, e.catalog...)
}

// MoodOutcome is the result of applying one mood submission.
type MoodOutcome struct {
	State         domain.UserGameState `json:"state"`
	CoinsAwarded  int64                `json:"coins_awarded"`
	StreakDelta   int                  `json:"streak_delta"`
	StreakReset   bool                 `json:"streak_reset"`
	NewlyUnlocked []string             `json:"newly_unlocked"`
	Awards        []domain.CoinAward   `json:"awards"`
}

// ReferralOutcome is the result of crediting an inviter.
type ReferralOutcome struct {
	State         domain.UserGameState `json:"state"`
	CoinsAwarded  int64                `json:"coins_awarded"`
	NewlyUnlocked []string             `json:"newly_unlocked"`
	Awards        []domain.CoinAward   `json:"awards"`
}

// ApplyMoodSubmission applies a mood recorded on eventDate.
//
// Streak: first ever -> 1, same day -> unchanged, next day -> +1,
// any other gap (including backdated events) -> 1.
// Coins: +5 when the previous date is unset or strictly before eventDate;
// +5 more when the streak grew and landed on a multiple of 3.
// The stored date always becomes eventDate, even for a backdated event.
func (e *Engine) ApplyMoodSubmission(state domain.UserGameState, eventDate domain.Date) MoodOutcome {
	prev := state.Clone()
	next := state.Clone()
	reset := false

	switch {
	case prev.LastMoodDate == nil:
		next.StreakDays = 1
	default:
		switch days := eventDate.DaysSince(*prev.LastMoodDate); days {
		case 0:
			// already posted today
		case 1:
			next.StreakDays = prev.StreakDays + 1
		default:
			next.StreakDays = 1
			reset = true
		}
	}

	d := eventDate
	next.LastMoodDate = &d

	var awards []domain.CoinAward
	if prev.LastMoodDate == nil || prev.LastMoodDate.Before(eventDate) {
		awards = append(awards, domain.CoinAward{Reason: domain.AwardDailyPost, Amount: DailyPostCoins})
	}
	if next.StreakDays > prev.StreakDays && next.StreakDays%StreakBonusInterval == 0 {
		awards = append(awards, domain.CoinAward{Reason: domain.AwardStreakBonus, Amount: StreakBonusCoins})
	}

	var total int64
	for _, a := range awards {
		total += a.Amount
	}
	next.Moodcoins += total

	next, unlocked := e.CheckUnlocks(next)

	return MoodOutcome{
		State:         next,
		CoinsAwarded:  total,
		StreakDelta:   next.StreakDays - prev.StreakDays,
		StreakReset:   reset,
		NewlyUnlocked: unlocked,
		Awards:        awards,
	}
}

// ApplyReferralAcceptance credits the inviter with ReferralCoins and re-runs
// the unlock scan. Callers guarantee at most one call per accepted referral.
func (e *Engine) ApplyReferralAcceptance(inviter domain.UserGameState) ReferralOutcome {
	next := inviter.Clone()
	next.Moodcoins += ReferralCoins
	next, unlocked := e.CheckUnlocks(next)

	return ReferralOutcome{
		State:         next,
		CoinsAwarded:  ReferralCoins,
		NewlyUnlocked: unlocked,
		Awards:        []domain.CoinAward{{Reason: domain.AwardReferral, Amount: ReferralCoins}},
	}
}

// CheckUnlocks grants every catalog entry whose threshold the balance has
// reached and the user does not hold yet. Unlocks are never revoked.
func (e *Engine) CheckUnlocks(state domain.UserGameState) (domain.UserGameState, []string) {
	state = state.Clone()
	unlocked := []string{}
	for _, def := range e.catalog {
		if state.Moodcoins >= def.Threshold && !state.HasUnlock(def.ID) {
			state.Unlocks = append(state.Unlocks, def.ID)
			unlocked = append(unlocked, def.ID)
		}
	}
	return state, unlocked
}
