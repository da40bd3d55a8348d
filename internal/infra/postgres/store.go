// Package postgres provides a PostgreSQL-backed domain.GameStore for
// multi-instance deployments. Per-user updates lock the game_states row with
// SELECT ... FOR UPDATE; ledger postings are serialized with a transaction
// advisory lock so running balances stay consistent.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moodi-app/moodi/internal/domain"
)

// ledgerLockKey is the pg_advisory_xact_lock key guarding coin_ledger appends.
const ledgerLockKey = 0x6d6f6f6469

// Options tunes the connection pool. Zero values keep pgx defaults.
type Options struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Store implements domain.GameStore on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ domain.GameStore = (*Store)(nil)

// Open connects to url, pings the server and runs migrations.
func Open(ctx context.Context, url string, opts Options) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{pool: pool, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS game_states (
			user_id        TEXT PRIMARY KEY,
			streak_days    INTEGER NOT NULL DEFAULT 0,
			moodcoins      BIGINT NOT NULL DEFAULT 0,
			last_mood_date DATE,
			updated_at     TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS unlocks (
			seq         BIGSERIAL PRIMARY KEY,
			user_id     TEXT NOT NULL REFERENCES game_states(user_id),
			unlock_id   TEXT NOT NULL,
			unlocked_at TIMESTAMPTZ NOT NULL,
			UNIQUE(user_id, unlock_id)
		)`,
		`CREATE TABLE IF NOT EXISTS coin_ledger (
			id          BIGSERIAL PRIMARY KEY,
			timestamp   TIMESTAMPTZ NOT NULL,
			reason      TEXT NOT NULL,
			entry_type  TEXT NOT NULL,
			account     TEXT NOT NULL,
			amount      BIGINT NOT NULL,
			reference   TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			balance     BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_coin_account ON coin_ledger(account)`,
		`CREATE TABLE IF NOT EXISTS referrals (
			id              TEXT PRIMARY KEY,
			inviter_user_id TEXT NOT NULL,
			invitee_user_id TEXT NOT NULL UNIQUE,
			accepted        BOOLEAN NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMPTZ NOT NULL,
			accepted_at     TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS moods (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			mood_date     DATE NOT NULL,
			mood_emoji    TEXT NOT NULL,
			mood_color    TEXT NOT NULL,
			intensity     INTEGER NOT NULL,
			time_bucket   TEXT NOT NULL,
			user_locale   TEXT NOT NULL,
			media_present BOOLEAN NOT NULL DEFAULT FALSE,
			artifact      JSONB NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_moods_user ON moods(user_id, created_at DESC)`,
	}
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Game State ─────────────────────────────────────────────────────────────

// GameState returns the user's record, or domain.ErrStateNotFound.
func (s *Store) GameState(ctx context.Context, userID string) (domain.UserGameState, error) {
	return loadState(ctx, s.pool, userID, false)
}

// UpdateGameState applies fn under a row lock on the user's record.
func (s *Store) UpdateGameState(ctx context.Context, userID, reference string, fn domain.GameStateFunc) (domain.UserGameState, error) {
	if userID == "" {
		return domain.UserGameState{}, domain.ErrUserIDRequired
	}
	var out domain.UserGameState
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		out, err = s.applyTx(ctx, tx, userID, reference, fn)
		return err
	})
	return out, err
}

func (s *Store) applyTx(ctx context.Context, tx pgx.Tx, userID, reference string, fn domain.GameStateFunc) (domain.UserGameState, error) {
	now := s.now()

	// Materialize the row so FOR UPDATE has something to lock.
	_, err := tx.Exec(ctx,
		`INSERT INTO game_states (user_id, updated_at) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		userID, now)
	if err != nil {
		return domain.UserGameState{}, fmt.Errorf("init state: %w", err)
	}
	cur, err := loadState(ctx, tx, userID, true)
	if err != nil {
		return domain.UserGameState{}, fmt.Errorf("load state: %w", err)
	}

	next, awards := fn(cur.Clone())
	next.UserID = userID
	next.UpdatedAt = now

	var lastDate *time.Time
	if next.LastMoodDate != nil {
		t := next.LastMoodDate.Time()
		lastDate = &t
	}
	_, err = tx.Exec(ctx,
		`UPDATE game_states SET streak_days = $2, moodcoins = $3, last_mood_date = $4, updated_at = $5
		 WHERE user_id = $1`,
		userID, next.StreakDays, next.Moodcoins, lastDate, now)
	if err != nil {
		return domain.UserGameState{}, fmt.Errorf("save state: %w", err)
	}

	for _, id := range next.Unlocks {
		if cur.HasUnlock(id) {
			continue
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO unlocks (user_id, unlock_id, unlocked_at) VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, unlock_id) DO NOTHING`,
			userID, id, now)
		if err != nil {
			return domain.UserGameState{}, fmt.Errorf("grant unlock %s: %w", id, err)
		}
	}

	if len(awards) > 0 {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(ledgerLockKey)); err != nil {
			return domain.UserGameState{}, fmt.Errorf("lock ledger: %w", err)
		}
		if err := postAwards(ctx, tx, userID, reference, awards, now); err != nil {
			return domain.UserGameState{}, err
		}
	}
	return next, nil
}

// dbtx is satisfied by *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadState(ctx context.Context, q dbtx, userID string, forUpdate bool) (domain.UserGameState, error) {
	st := domain.NewUserGameState(userID)
	query := `SELECT streak_days, moodcoins, last_mood_date, updated_at FROM game_states WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var lastDate *time.Time
	err := q.QueryRow(ctx, query, userID).Scan(&st.StreakDays, &st.Moodcoins, &lastDate, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, domain.ErrStateNotFound
	}
	if err != nil {
		return st, err
	}
	if lastDate != nil {
		d := domain.DateIn(*lastDate, time.UTC)
		st.LastMoodDate = &d
	}

	rows, err := q.Query(ctx, `SELECT unlock_id FROM unlocks WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return st, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return st, err
	}
	st.Unlocks = append(st.Unlocks, ids...)
	return st, nil
}

// ─── Coin Ledger ────────────────────────────────────────────────────────────

func ledgerBalance(ctx context.Context, q dbtx, account string) (int64, error) {
	var bal int64
	err := q.QueryRow(ctx,
		`SELECT balance FROM coin_ledger WHERE account = $1 ORDER BY id DESC LIMIT 1`, account,
	).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return bal, err
}

func postAwards(ctx context.Context, q dbtx, userID, reference string, awards []domain.CoinAward, at time.Time) error {
	for _, a := range awards {
		poolBal, err := ledgerBalance(ctx, q, domain.PoolAccount)
		if err != nil {
			return fmt.Errorf("get pool balance: %w", err)
		}
		userBal, err := ledgerBalance(ctx, q, domain.UserAccount(userID))
		if err != nil {
			return fmt.Errorf("get user balance: %w", err)
		}
		for _, e := range domain.PostAward(a, userID, reference, poolBal, userBal, at) {
			_, err := q.Exec(ctx,
				`INSERT INTO coin_ledger (timestamp, reason, entry_type, account, amount, reference, description, balance)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				e.Timestamp, string(e.Reason), string(e.EntryType), e.Account,
				e.Amount, e.Reference, e.Description, e.Balance)
			if err != nil {
				return fmt.Errorf("post %s %s: %w", e.EntryType, e.Account, err)
			}
		}
	}
	return nil
}

// LedgerBalance returns the running balance of an account (0 if unused).
func (s *Store) LedgerBalance(ctx context.Context, account string) (int64, error) {
	return ledgerBalance(ctx, s.pool, account)
}

// LedgerEntries returns recent ledger entries for an account, newest first.
func (s *Store) LedgerEntries(ctx context.Context, account string, limit int) ([]domain.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, timestamp, reason, entry_type, account, amount, reference, description, balance
		 FROM coin_ledger WHERE account = $1 ORDER BY id DESC LIMIT $2`, account, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.LedgerEntry, error) {
		var e domain.LedgerEntry
		var reason, entryType string
		err := row.Scan(&e.ID, &e.Timestamp, &reason, &entryType, &e.Account,
			&e.Amount, &e.Reference, &e.Description, &e.Balance)
		e.Reason = domain.AwardReason(reason)
		e.EntryType = domain.EntryType(entryType)
		return e, err
	})
}

// LedgerTotals sums every DEBIT and every CREDIT in the ledger.
func (s *Store) LedgerTotals(ctx context.Context) (domain.LedgerTotals, error) {
	var t domain.LedgerTotals
	err := s.pool.QueryRow(ctx,
		`SELECT
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'DEBIT'), 0),
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'CREDIT'), 0)
		 FROM coin_ledger`).Scan(&t.Debits, &t.Credits)
	return t, err
}

// ─── Referrals ──────────────────────────────────────────────────────────────

// CreateReferral stores a new pending referral.
func (s *Store) CreateReferral(ctx context.Context, r domain.Referral) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO referrals (id, inviter_user_id, invitee_user_id, accepted, created_at)
		 VALUES ($1, $2, $3, FALSE, $4)`,
		r.ID, r.InviterUserID, r.InviteeUserID, r.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrReferralExists
	}
	return err
}

// GetReferral retrieves a referral by id.
func (s *Store) GetReferral(ctx context.Context, id string) (*domain.Referral, error) {
	return getReferral(ctx, s.pool, id, false)
}

// AcceptReferral flips the referral under a row lock and credits the inviter
// in the same transaction.
func (s *Store) AcceptReferral(ctx context.Context, id string, at time.Time, fn domain.GameStateFunc) (domain.Referral, domain.UserGameState, error) {
	var ref domain.Referral
	var state domain.UserGameState
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		r, err := getReferral(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if r.Accepted {
			return domain.ErrReferralAlreadyAccepted
		}
		tag, err := tx.Exec(ctx,
			`UPDATE referrals SET accepted = TRUE, accepted_at = $2 WHERE id = $1 AND accepted = FALSE`,
			id, at)
		if err != nil {
			return fmt.Errorf("accept referral: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrReferralAlreadyAccepted
		}

		state, err = s.applyTx(ctx, tx, r.InviterUserID, "referral:"+id, fn)
		if err != nil {
			return err
		}
		r.Accepted = true
		r.AcceptedAt = &at
		ref = *r
		return nil
	})
	return ref, state, err
}

func getReferral(ctx context.Context, q dbtx, id string, forUpdate bool) (*domain.Referral, error) {
	query := `SELECT id, inviter_user_id, invitee_user_id, accepted, created_at, accepted_at
		FROM referrals WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var r domain.Referral
	err := q.QueryRow(ctx, query, id).Scan(
		&r.ID, &r.InviterUserID, &r.InviteeUserID, &r.Accepted, &r.CreatedAt, &r.AcceptedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReferralNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ─── Mood History ───────────────────────────────────────────────────────────

// InsertMood stores a mood submission with its artifact as JSONB.
func (s *Store) InsertMood(ctx context.Context, m domain.MoodRecord) error {
	artifact, err := json.Marshal(m.Artifact)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO moods (id, user_id, mood_date, mood_emoji, mood_color, intensity,
			time_bucket, user_locale, media_present, artifact, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.UserID, m.MoodDate.Time(), m.MoodEmoji, m.MoodColor, m.Intensity,
		m.TimeBucket, m.UserLocale, m.MediaPresent, artifact, m.CreatedAt)
	return err
}

// ListMoods returns a user's most recent moods, newest first.
func (s *Store) ListMoods(ctx context.Context, userID string, limit int) ([]domain.MoodRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, mood_date, mood_emoji, mood_color, intensity,
			time_bucket, user_locale, media_present, artifact, created_at
		 FROM moods WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.MoodRecord, error) {
		var m domain.MoodRecord
		var date time.Time
		var artifact []byte
		err := row.Scan(&m.ID, &m.UserID, &date, &m.MoodEmoji, &m.MoodColor, &m.Intensity,
			&m.TimeBucket, &m.UserLocale, &m.MediaPresent, &artifact, &m.CreatedAt)
		if err != nil {
			return m, err
		}
		m.MoodDate = domain.DateIn(date, time.UTC)
		if err := json.Unmarshal(artifact, &m.Artifact); err != nil {
			return m, fmt.Errorf("decode artifact: %w", err)
		}
		return m, nil
	})
}
