package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/moodi-app/moodi/internal/domain"
)

// ─── Referrals ──────────────────────────────────────────────────────────────

// CreateReferral stores a new pending referral.
// Returns domain.ErrReferralExists if the invitee already has one.
func (d *DB) CreateReferral(ctx context.Context, r domain.Referral) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO referrals (id, inviter_user_id, invitee_user_id, accepted, created_at)
		 VALUES (?, ?, ?, 0, ?)`,
		r.ID, r.InviterUserID, r.InviteeUserID, r.CreatedAt.Unix(),
	)
	if isUniqueViolation(err) {
		return domain.ErrReferralExists
	}
	return err
}

// GetReferral retrieves a referral by id.
func (d *DB) GetReferral(ctx context.Context, id string) (*domain.Referral, error) {
	return getReferral(ctx, d.db, id)
}

// AcceptReferral marks the referral accepted and applies fn to the inviter's
// state in the same transaction. The conditional UPDATE guarantees the
// inviter is credited at most once per referral.
func (d *DB) AcceptReferral(ctx context.Context, id string, at time.Time, fn domain.GameStateFunc) (domain.Referral, domain.UserGameState, error) {
	var ref domain.Referral
	var state domain.UserGameState
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		r, err := getReferral(ctx, tx, id)
		if err != nil {
			return err
		}
		if r.Accepted {
			return domain.ErrReferralAlreadyAccepted
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE referrals SET accepted = 1, accepted_at = ? WHERE id = ? AND accepted = 0`,
			at.Unix(), id,
		)
		if err != nil {
			return fmt.Errorf("accept referral: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrReferralAlreadyAccepted
		}

		state, err = d.applyTx(ctx, tx, r.InviterUserID, "referral:"+id, fn)
		if err != nil {
			return err
		}

		acceptedAt := at.Truncate(time.Second)
		r.Accepted = true
		r.AcceptedAt = &acceptedAt
		ref = *r
		return nil
	})
	return ref, state, err
}

func getReferral(ctx context.Context, q querier, id string) (*domain.Referral, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, inviter_user_id, invitee_user_id, accepted, created_at, accepted_at
		 FROM referrals WHERE id = ?`, id,
	)
	return scanReferral(row)
}

func scanReferral(s scanner) (*domain.Referral, error) {
	var r domain.Referral
	var created int64
	var accepted sql.NullInt64
	err := s.Scan(&r.ID, &r.InviterUserID, &r.InviteeUserID, &r.Accepted, &created, &accepted)
	if err == sql.ErrNoRows {
		return nil, domain.ErrReferralNotFound
	}
	if err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(created, 0)
	if accepted.Valid {
		t := time.Unix(accepted.Int64, 0)
		r.AcceptedAt = &t
	}
	return &r, nil
}
