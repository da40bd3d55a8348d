package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/moodi-app/moodi/internal/domain"
)

// ─── Coin Ledger ────────────────────────────────────────────────────────────

func insertLedgerEntry(ctx context.Context, q querier, e domain.LedgerEntry) (int64, error) {
	result, err := q.ExecContext(ctx,
		`INSERT INTO coin_ledger (timestamp, reason, entry_type, account, amount, reference, description, balance)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp.Unix(), string(e.Reason), string(e.EntryType),
		e.Account, e.Amount, nullStr(e.Reference), nullStr(e.Description), e.Balance,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func ledgerBalance(ctx context.Context, q querier, account string) (int64, error) {
	var balance sql.NullInt64
	err := q.QueryRowContext(ctx,
		`SELECT balance FROM coin_ledger WHERE account = ? ORDER BY id DESC LIMIT 1`,
		account,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance.Int64, nil
}

// postAwards writes the DEBIT/CREDIT pair for each award.
func postAwards(ctx context.Context, q querier, userID, reference string, awards []domain.CoinAward, at time.Time) error {
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
			if _, err := insertLedgerEntry(ctx, q, e); err != nil {
				return fmt.Errorf("post %s %s: %w", e.EntryType, e.Account, err)
			}
		}
	}
	return nil
}

// LedgerBalance returns the running balance of an account (0 if unused).
func (d *DB) LedgerBalance(ctx context.Context, account string) (int64, error) {
	return ledgerBalance(ctx, d.db, account)
}

// LedgerEntries returns recent ledger entries for an account, newest first.
func (d *DB) LedgerEntries(ctx context.Context, account string, limit int) ([]domain.LedgerEntry, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, timestamp, reason, entry_type, account, amount, reference, description, balance
		 FROM coin_ledger WHERE account = ? ORDER BY id DESC LIMIT ?`,
		account, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var ts int64
		var ref, desc sql.NullString
		err := rows.Scan(&e.ID, &ts, &e.Reason, &e.EntryType, &e.Account,
			&e.Amount, &ref, &desc, &e.Balance)
		if err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(ts, 0)
		e.Reference = ref.String
		e.Description = desc.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LedgerTotals sums every DEBIT and every CREDIT in the ledger.
func (d *DB) LedgerTotals(ctx context.Context) (domain.LedgerTotals, error) {
	var t domain.LedgerTotals
	err := d.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN entry_type = 'DEBIT' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN entry_type = 'CREDIT' THEN amount ELSE 0 END), 0)
		 FROM coin_ledger`,
	).Scan(&t.Debits, &t.Credits)
	return t, err
}
