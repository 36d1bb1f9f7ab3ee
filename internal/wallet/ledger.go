package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/greenmart/internal/voucher"
)

// ErrLedgerUnavailable indicates the ledger dependency is not configured.
var ErrLedgerUnavailable = errors.New("wallet: ledger unavailable")

// Ledger is the authoritative record of user wallets.
type Ledger interface {
	Owned(ctx context.Context, userID string) (OwnedSet, error)
	Holdings(ctx context.Context, userID string) ([]Holding, error)
	Grant(ctx context.Context, userID string, voucherID uuid.UUID) (int, error)
}

// NewLedger constructs a Ledger backed by Postgres.
func NewLedger(pool *pgxpool.Pool) Ledger {
	return &pgLedger{pool: pool}
}

type pgLedger struct {
	pool *pgxpool.Pool
}

// Owned returns the user's voucher quantities.
func (l *pgLedger) Owned(ctx context.Context, userID string) (OwnedSet, error) {
	if l == nil || l.pool == nil {
		return nil, ErrLedgerUnavailable
	}
	rows, err := l.pool.Query(ctx, `SELECT voucher_id, quantity FROM user_vouchers WHERE user_id = $1 AND quantity > 0`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	owned := OwnedSet{}
	for rows.Next() {
		var (
			id  uuid.UUID
			qty int
		)
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		owned[id] = qty
	}
	return owned, rows.Err()
}

// Holdings returns the wallet joined with voucher details, newest grant first.
func (l *pgLedger) Holdings(ctx context.Context, userID string) ([]Holding, error) {
	if l == nil || l.pool == nil {
		return nil, ErrLedgerUnavailable
	}
	rows, err := l.pool.Query(ctx, `SELECT v.id, v.code, v.discount_type, v.discount_value, v.min_order, v.expires_at, v.is_active, v.max_usage, v.current_usage, v.created_at, v.updated_at, uv.quantity
FROM user_vouchers uv JOIN vouchers v ON v.id = uv.voucher_id
WHERE uv.user_id = $1 AND uv.quantity > 0
ORDER BY uv.updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Holding, 0)
	for rows.Next() {
		var (
			h    Holding
			kind string
		)
		v := &h.Voucher
		if err := rows.Scan(&v.ID, &v.Code, &kind, &v.Value, &v.MinOrder, &v.ExpiresAt, &v.IsActive, &v.MaxUsage, &v.CurrentUsage, &v.CreatedAt, &v.UpdatedAt, &h.Quantity); err != nil {
			return nil, err
		}
		v.Kind = voucher.Kind(kind)
		out = append(out, h)
	}
	return out, rows.Err()
}

// Grant claims one use of the voucher and credits the user's wallet in a
// single transaction. It returns the user's new quantity.
func (l *pgLedger) Grant(ctx context.Context, userID string, voucherID uuid.UUID) (qty int, err error) {
	if l == nil || l.pool == nil {
		return 0, ErrLedgerUnavailable
	}
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin grant: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	var claimed uuid.UUID
	err = tx.QueryRow(ctx, `UPDATE vouchers
SET current_usage = current_usage + 1, updated_at = now()
WHERE id = $1 AND is_active AND (max_usage IS NULL OR current_usage < max_usage) AND expires_at >= now()
RETURNING id`, voucherID).Scan(&claimed)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrVoucherUnavailable
	}
	if err != nil {
		return 0, fmt.Errorf("claim voucher: %w", err)
	}

	err = tx.QueryRow(ctx, `INSERT INTO user_vouchers (user_id, voucher_id, quantity)
VALUES ($1, $2, 1)
ON CONFLICT (user_id, voucher_id) DO UPDATE SET quantity = user_vouchers.quantity + 1, updated_at = now()
RETURNING quantity`, userID, voucherID).Scan(&qty)
	if err != nil {
		return 0, fmt.Errorf("credit wallet: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit grant: %w", err)
	}
	return qty, nil
}
