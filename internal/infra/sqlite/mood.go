package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/moodi-app/moodi/internal/domain"
)

// ─── Mood History ───────────────────────────────────────────────────────────

// InsertMood stores a mood submission with its artifact.
func (d *DB) InsertMood(ctx context.Context, m domain.MoodRecord) error {
	artifact, err := json.Marshal(m.Artifact)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO moods (id, user_id, mood_date, mood_emoji, mood_color, intensity,
			time_bucket, user_locale, media_present, artifact, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.MoodDate.String(), m.MoodEmoji, m.MoodColor, m.Intensity,
		m.TimeBucket, m.UserLocale, m.MediaPresent, string(artifact), m.CreatedAt.Unix(),
	)
	return err
}

// ListMoods returns a user's most recent moods, newest first.
func (d *DB) ListMoods(ctx context.Context, userID string, limit int) ([]domain.MoodRecord, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, user_id, mood_date, mood_emoji, mood_color, intensity,
			time_bucket, user_locale, media_present, artifact, created_at
		 FROM moods WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var moods []domain.MoodRecord
	for rows.Next() {
		m, err := scanMood(rows)
		if err != nil {
			return nil, err
		}
		moods = append(moods, *m)
	}
	return moods, rows.Err()
}

func scanMood(s scanner) (*domain.MoodRecord, error) {
	var m domain.MoodRecord
	var date, artifact string
	var created int64
	err := s.Scan(&m.ID, &m.UserID, &date, &m.MoodEmoji, &m.MoodColor, &m.Intensity,
		&m.TimeBucket, &m.UserLocale, &m.MediaPresent, &artifact, &created)
	if err != nil {
		return nil, err
	}
	if m.MoodDate, err = domain.ParseDate(date); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(artifact), &m.Artifact); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	m.CreatedAt = time.Unix(created, 0)
	return &m, nil
}
