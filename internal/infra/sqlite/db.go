// Package sqlite provides SQLite-based persistent storage for MOODI.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/moodi-app/moodi/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
// It implements domain.GameStore.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

var _ domain.GameStore = (*DB)(nil)

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := "file:" + dbPath +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	d, err := newDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// newDB configures the pool and runs migrations on an open handle.
func newDB(db *sql.DB) (*DB, error) {
	// SQLite is single-writer; every transaction owns the only connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db, now: time.Now}
	if err := d.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Per-user gamification record
		`CREATE TABLE IF NOT EXISTS game_states (
			user_id        TEXT PRIMARY KEY,
			streak_days    INTEGER NOT NULL DEFAULT 0,
			moodcoins      INTEGER NOT NULL DEFAULT 0,
			last_mood_date TEXT,
			updated_at     INTEGER NOT NULL
		)`,

		// Granted unlocks, in grant order
		`CREATE TABLE IF NOT EXISTS unlocks (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id     TEXT NOT NULL REFERENCES game_states(user_id),
			unlock_id   TEXT NOT NULL,
			unlocked_at INTEGER NOT NULL,
			UNIQUE(user_id, unlock_id)
		)`,

		// MoodCoin ledger (double-entry bookkeeping)
		`CREATE TABLE IF NOT EXISTS coin_ledger (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			reason      TEXT NOT NULL,
			entry_type  TEXT NOT NULL,
			account     TEXT NOT NULL,
			amount      INTEGER NOT NULL,
			reference   TEXT,
			description TEXT,
			balance     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_coin_ts ON coin_ledger(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_coin_account ON coin_ledger(account)`,

		// Referrals: one per invitee, accepted at most once
		`CREATE TABLE IF NOT EXISTS referrals (
			id              TEXT PRIMARY KEY,
			inviter_user_id TEXT NOT NULL,
			invitee_user_id TEXT NOT NULL UNIQUE,
			accepted        BOOLEAN NOT NULL DEFAULT 0,
			created_at      INTEGER NOT NULL,
			accepted_at     INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_referrals_inviter ON referrals(inviter_user_id)`,

		// Mood history with generated artifacts
		`CREATE TABLE IF NOT EXISTS moods (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			mood_date     TEXT NOT NULL,
			mood_emoji    TEXT NOT NULL,
			mood_color    TEXT NOT NULL,
			intensity     INTEGER NOT NULL,
			time_bucket   TEXT NOT NULL,
			user_locale   TEXT NOT NULL,
			media_present BOOLEAN NOT NULL DEFAULT 0,
			artifact      TEXT NOT NULL,
			created_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_moods_user ON moods(user_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

// withTx runs fn in a transaction, rolling back on error.
func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
