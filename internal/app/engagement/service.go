package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/moodi-app/moodi/internal/domain"
	"github.com/moodi-app/moodi/internal/infra/metrics"
)

// Service applies engine events to persisted game state.
// Same-user operations are serialized by a keyed mutex in-process and by the
// store transaction across processes.
type Service struct {
	engine *Engine
	store  domain.GameStore
	locks  *userLocks
	log    *zap.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewService creates a game service. A nil logger disables logging and a nil
// location means UTC.
func NewService(store domain.GameStore, engine *Engine, log *zap.Logger, loc *time.Location) *Service {
	if engine == nil {
		engine = NewEngine(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		engine: engine,
		store:  store,
		locks:  newUserLocks(),
		log:    log.Named("engagement"),
		loc:    loc,
		now:    time.Now,
	}
}

// Engine returns the underlying rules engine.
func (s *Service) Engine() *Engine { return s.engine }

// Today returns the current calendar date in the service's timezone.
func (s *Service) Today() domain.Date {
	return domain.DateIn(s.now(), s.loc)
}

// DateOf returns the calendar date of t in the service's timezone.
func (s *Service) DateOf(t time.Time) domain.Date {
	return domain.DateIn(t, s.loc)
}

// State returns the user's game state, or the zero state if none exists yet.
func (s *Service) State(ctx context.Context, userID string) (domain.UserGameState, error) {
	if userID == "" {
		return domain.UserGameState{}, domain.ErrUserIDRequired
	}
	st, err := s.store.GameState(ctx, userID)
	if errors.Is(err, domain.ErrStateNotFound) {
		return domain.NewUserGameState(userID), nil
	}
	if err != nil {
		return domain.UserGameState{}, fmt.Errorf("load game state: %w", err)
	}
	return st, nil
}

// EnsureState creates the zero record for userID if it does not exist.
func (s *Service) EnsureState(ctx context.Context, userID string) (domain.UserGameState, error) {
	if userID == "" {
		return domain.UserGameState{}, domain.ErrUserIDRequired
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	st, err := s.store.UpdateGameState(ctx, userID, "", func(cur domain.UserGameState) (domain.UserGameState, []domain.CoinAward) {
		return cur, nil
	})
	if err != nil {
		return domain.UserGameState{}, fmt.Errorf("ensure game state: %w", err)
	}
	return st, nil
}

// RecordMood applies a mood submission dated eventDate. reference tags the
// ledger postings (usually the mood id).
func (s *Service) RecordMood(ctx context.Context, userID, reference string, eventDate domain.Date) (MoodOutcome, error) {
	if userID == "" {
		return MoodOutcome{}, domain.ErrUserIDRequired
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	var out MoodOutcome
	_, err := s.store.UpdateGameState(ctx, userID, reference, func(cur domain.UserGameState) (domain.UserGameState, []domain.CoinAward) {
		out = s.engine.ApplyMoodSubmission(cur, eventDate)
		return out.State, out.Awards
	})
	if err != nil {
		return MoodOutcome{}, fmt.Errorf("record mood: %w", err)
	}

	metrics.MoodsRecorded.Inc()
	if out.StreakReset {
		metrics.StreakResets.Inc()
	}
	s.observe(out.Awards, out.NewlyUnlocked)

	s.log.Info("mood recorded",
		zap.String("user_id", userID),
		zap.Stringer("event_date", eventDate),
		zap.Int("streak_days", out.State.StreakDays),
		zap.Int("streak_delta", out.StreakDelta),
		zap.Int64("coins_awarded", out.CoinsAwarded),
		zap.Int64("moodcoins", out.State.Moodcoins),
		zap.Strings("newly_unlocked", out.NewlyUnlocked),
	)
	return out, nil
}

// CreateReferral records that inviter invited invitee.
func (s *Service) CreateReferral(ctx context.Context, inviterID, inviteeID string) (domain.Referral, error) {
	if inviterID == "" || inviteeID == "" {
		return domain.Referral{}, domain.ErrUserIDRequired
	}
	if inviterID == inviteeID {
		return domain.Referral{}, domain.ErrSelfReferral
	}
	r := domain.Referral{
		ID:            uuid.NewString(),
		InviterUserID: inviterID,
		InviteeUserID: inviteeID,
		CreatedAt:     s.now().Truncate(time.Second),
	}
	if err := s.store.CreateReferral(ctx, r); err != nil {
		return domain.Referral{}, fmt.Errorf("create referral: %w", err)
	}
	s.log.Info("referral created",
		zap.String("referral_id", r.ID),
		zap.String("inviter_user_id", inviterID),
		zap.String("invitee_user_id", inviteeID),
	)
	return r, nil
}

// AcceptReferral marks the referral accepted and credits the inviter once.
// A repeated acceptance returns domain.ErrReferralAlreadyAccepted.
func (s *Service) AcceptReferral(ctx context.Context, referralID string) (domain.Referral, ReferralOutcome, error) {
	ref, err := s.store.GetReferral(ctx, referralID)
	if err != nil {
		return domain.Referral{}, ReferralOutcome{}, fmt.Errorf("accept referral: %w", err)
	}
	if ref.Accepted {
		return *ref, ReferralOutcome{}, fmt.Errorf("accept referral: %w", domain.ErrReferralAlreadyAccepted)
	}

	unlock := s.locks.Lock(ref.InviterUserID)
	defer unlock()

	var out ReferralOutcome
	accepted, _, err := s.store.AcceptReferral(ctx, referralID, s.now(), func(cur domain.UserGameState) (domain.UserGameState, []domain.CoinAward) {
		out = s.engine.ApplyReferralAcceptance(cur)
		return out.State, out.Awards
	})
	if err != nil {
		return domain.Referral{}, ReferralOutcome{}, fmt.Errorf("accept referral: %w", err)
	}

	metrics.ReferralsAccepted.Inc()
	s.observe(out.Awards, out.NewlyUnlocked)

	s.log.Info("referral accepted",
		zap.String("referral_id", referralID),
		zap.String("inviter_user_id", accepted.InviterUserID),
		zap.Int64("coins_awarded", out.CoinsAwarded),
		zap.Int64("moodcoins", out.State.Moodcoins),
		zap.Strings("newly_unlocked", out.NewlyUnlocked),
	)
	return accepted, out, nil
}

func (s *Service) observe(awards []domain.CoinAward, unlocked []string) {
	for _, a := range awards {
		metrics.CoinsAwarded.WithLabelValues(string(a.Reason)).Add(float64(a.Amount))
	}
	for _, id := range unlocked {
		metrics.UnlocksGranted.WithLabelValues(id).Inc()
	}
}
