package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/moodi-app/moodi/internal/domain"
)

// ─── Game State ─────────────────────────────────────────────────────────────

// GameState returns the user's record, or domain.ErrStateNotFound.
func (d *DB) GameState(ctx context.Context, userID string) (domain.UserGameState, error) {
	return loadState(ctx, d.db, userID)
}

// UpdateGameState applies fn to the user's current state (zero state if none)
// and persists the result with its unlocks and ledger postings in one
// transaction.
func (d *DB) UpdateGameState(ctx context.Context, userID, reference string, fn domain.GameStateFunc) (domain.UserGameState, error) {
	if userID == "" {
		return domain.UserGameState{}, domain.ErrUserIDRequired
	}
	var out domain.UserGameState
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = d.applyTx(ctx, tx, userID, reference, fn)
		return err
	})
	return out, err
}

func (d *DB) applyTx(ctx context.Context, tx *sql.Tx, userID, reference string, fn domain.GameStateFunc) (domain.UserGameState, error) {
	cur, err := loadState(ctx, tx, userID)
	if errors.Is(err, domain.ErrStateNotFound) {
		cur = domain.NewUserGameState(userID)
	} else if err != nil {
		return domain.UserGameState{}, fmt.Errorf("load state: %w", err)
	}

	next, awards := fn(cur.Clone())
	now := d.now()
	next.UserID = userID
	next.UpdatedAt = now.Truncate(time.Second)

	if err := saveState(ctx, tx, cur, next, now); err != nil {
		return domain.UserGameState{}, err
	}
	if err := postAwards(ctx, tx, userID, reference, awards, now); err != nil {
		return domain.UserGameState{}, err
	}
	return next, nil
}

func loadState(ctx context.Context, q querier, userID string) (domain.UserGameState, error) {
	s := domain.NewUserGameState(userID)
	var lastDate sql.NullString
	var updated int64
	err := q.QueryRowContext(ctx,
		`SELECT streak_days, moodcoins, last_mood_date, updated_at FROM game_states WHERE user_id = ?`,
		userID,
	).Scan(&s.StreakDays, &s.Moodcoins, &lastDate, &updated)
	if err == sql.ErrNoRows {
		return s, domain.ErrStateNotFound
	}
	if err != nil {
		return s, err
	}
	s.UpdatedAt = time.Unix(updated, 0)
	if lastDate.Valid {
		d, err := domain.ParseDate(lastDate.String)
		if err != nil {
			return s, err
		}
		s.LastMoodDate = &d
	}

	rows, err := q.QueryContext(ctx,
		`SELECT unlock_id FROM unlocks WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		return s, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return s, err
		}
		s.Unlocks = append(s.Unlocks, id)
	}
	return s, rows.Err()
}

func saveState(ctx context.Context, q querier, prev, next domain.UserGameState, at time.Time) error {
	var lastDate sql.NullString
	if next.LastMoodDate != nil {
		lastDate = sql.NullString{String: next.LastMoodDate.String(), Valid: true}
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO game_states (user_id, streak_days, moodcoins, last_mood_date, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			streak_days=excluded.streak_days,
			moodcoins=excluded.moodcoins,
			last_mood_date=excluded.last_mood_date,
			updated_at=excluded.updated_at`,
		next.UserID, next.StreakDays, next.Moodcoins, lastDate, at.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	for _, id := range next.Unlocks {
		if prev.HasUnlock(id) {
			continue
		}
		_, err := q.ExecContext(ctx,
			`INSERT INTO unlocks (user_id, unlock_id, unlocked_at) VALUES (?, ?, ?)
			 ON CONFLICT(user_id, unlock_id) DO NOTHING`,
			next.UserID, id, at.Unix(),
		)
		if err != nil {
			return fmt.Errorf("grant unlock %s: %w", id, err)
		}
	}
	return nil
}
