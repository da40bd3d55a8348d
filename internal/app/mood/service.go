// Package mood runs the mood submission pipeline: safety pre-check,
// reflection generation, mood history, then the game-state update.
package mood

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/moodi-app/moodi/internal/app/engagement"
	"github.com/moodi-app/moodi/internal/app/reflection"
	"github.com/moodi-app/moodi/internal/domain"
)

// History limits.
const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// MaxClockSkew is how far past the server clock a client timestamp may be.
const MaxClockSkew = 5 * time.Minute

// Submission is the result of one accepted mood.
type Submission struct {
	MoodID         string                 `json:"mood_id"`
	MoodDate       domain.Date            `json:"mood_date"`
	Artifact       domain.Artifact        `json:"reflection"`
	SafetyPrecheck reflection.Precheck    `json:"safety_precheck"`
	Outcome        engagement.MoodOutcome `json:"game"`
}

// Service wires generation to game state.
type Service struct {
	gen    *reflection.Generator
	safety *reflection.SafetyChecker
	game   *engagement.Service
	store  domain.GameStore
	log    *zap.Logger
	now    func() time.Time
}

// NewService creates the pipeline. safety may be nil to skip the pre-check.
func NewService(gen *reflection.Generator, safety *reflection.SafetyChecker, game *engagement.Service, store domain.GameStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		gen:    gen,
		safety: safety,
		game:   game,
		store:  store,
		log:    log.Named("mood"),
		now:    time.Now,
	}
}

// Submit validates p, generates its artifact and applies the submission to
// the user's game state. submittedAt decides the event date in the game
// timezone; the zero time means now. A client timestamp may not run ahead of
// the server clock by more than MaxClockSkew, nor fall on a day before the
// user's last recorded mood. A failed generation returns before any state is
// written.
func (s *Service) Submit(ctx context.Context, userID string, p domain.MoodPayload, submittedAt time.Time) (Submission, error) {
	if userID == "" {
		return Submission{}, domain.ErrUserIDRequired
	}
	if err := s.gen.ValidatePayload(p); err != nil {
		return Submission{}, err
	}
	now := s.now()
	if submittedAt.IsZero() {
		submittedAt = now
	}
	if err := s.checkSubmittedAt(ctx, userID, submittedAt, now); err != nil {
		return Submission{}, err
	}

	pre := reflection.Precheck{Flag: domain.SafetyOK}
	if s.safety != nil {
		pre = s.safety.Check(ctx, p.ContextText)
	}

	artifact, err := s.gen.Generate(ctx, p)
	if err != nil {
		return Submission{}, err
	}

	sub := Submission{
		MoodID:         uuid.NewString(),
		MoodDate:       s.game.DateOf(submittedAt),
		Artifact:       artifact,
		SafetyPrecheck: pre,
	}

	err = s.store.InsertMood(ctx, domain.MoodRecord{
		ID:           sub.MoodID,
		UserID:       userID,
		MoodDate:     sub.MoodDate,
		MoodEmoji:    p.MoodEmoji,
		MoodColor:    p.MoodColor,
		Intensity:    p.IntensityValue(),
		TimeBucket:   p.TimeBucket,
		UserLocale:   p.UserLocale,
		MediaPresent: p.MediaPresent,
		Artifact:     artifact,
		CreatedAt:    submittedAt,
	})
	if err != nil {
		return Submission{}, fmt.Errorf("store mood: %w", err)
	}

	sub.Outcome, err = s.game.RecordMood(ctx, userID, sub.MoodID, sub.MoodDate)
	if err != nil {
		return Submission{}, err
	}

	if pre.Flag == domain.SafetyElevate || artifact.SafetyFlag == domain.SafetyElevate {
		s.log.Warn("mood requires escalation",
			zap.String("user_id", userID),
			zap.String("mood_id", sub.MoodID),
			zap.String("precheck_flag", string(pre.Flag)),
			zap.String("artifact_flag", string(artifact.SafetyFlag)),
		)
	}
	return sub, nil
}

// checkSubmittedAt rejects future instants and days before the stored
// last mood date.
func (s *Service) checkSubmittedAt(ctx context.Context, userID string, at, now time.Time) error {
	if at.After(now.Add(MaxClockSkew)) {
		return &domain.ValidationError{
			Subject:  "submission",
			Problems: []string{fmt.Sprintf("submitted_at %s is in the future", at.UTC().Format(time.RFC3339))},
		}
	}
	st, err := s.game.State(ctx, userID)
	if err != nil {
		return err
	}
	if day := s.game.DateOf(at); st.LastMoodDate != nil && day.Before(*st.LastMoodDate) {
		return &domain.ValidationError{
			Subject:  "submission",
			Problems: []string{fmt.Sprintf("submitted_at falls on %s, before the last recorded mood on %s", day, *st.LastMoodDate)},
		}
	}
	return nil
}

// History returns the user's recent moods, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]domain.MoodRecord, error) {
	if userID == "" {
		return nil, domain.ErrUserIDRequired
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	moods, err := s.store.ListMoods(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list moods: %w", err)
	}
	if moods == nil {
		moods = []domain.MoodRecord{}
	}
	return moods, nil
}
