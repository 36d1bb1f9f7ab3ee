package voucher

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable indicates the voucher store dependency is not configured.
var ErrStoreUnavailable = errors.New("voucher: store unavailable")

// Store provides persistence for the voucher catalog.
type Store interface {
	ListAll(ctx context.Context) ([]Voucher, error)
	List(ctx context.Context, limit, offset int) ([]Voucher, int, error)
	Get(ctx context.Context, id uuid.UUID) (Voucher, error)
	Create(ctx context.Context, v Voucher) (Voucher, error)
	Update(ctx context.Context, v Voucher) (Voucher, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const voucherColumns = `id, code, discount_type, discount_value, min_order, expires_at, is_active, max_usage, current_usage, created_at, updated_at`

// ListAll returns the whole catalog ordered by creation time.
func (s *pgStore) ListAll(ctx context.Context) ([]Voucher, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+voucherColumns+` FROM vouchers ORDER BY created_at, code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Voucher, 0)
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// List returns one page of the catalog and the total number of vouchers.
func (s *pgStore) List(ctx context.Context, limit, offset int) ([]Voucher, int, error) {
	if s == nil || s.pool == nil {
		return nil, 0, ErrStoreUnavailable
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM vouchers`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, `SELECT `+voucherColumns+` FROM vouchers ORDER BY created_at DESC, code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]Voucher, 0, limit)
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

// Get fetches a voucher by ID.
func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (Voucher, error) {
	if s == nil || s.pool == nil {
		return Voucher{}, ErrStoreUnavailable
	}
	v, err := scanVoucher(s.pool.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Voucher{}, ErrNotFound
	}
	return v, err
}

// Create inserts a voucher. CurrentUsage always starts at zero.
func (s *pgStore) Create(ctx context.Context, v Voucher) (Voucher, error) {
	if s == nil || s.pool == nil {
		return Voucher{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO vouchers (code, discount_type, discount_value, min_order, expires_at, is_active, max_usage)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+voucherColumns,
		v.Code, string(v.Kind), v.Value, v.MinOrder, v.ExpiresAt, v.IsActive, v.MaxUsage)
	created, err := scanVoucher(row)
	if isUniqueViolation(err) {
		return Voucher{}, ErrDuplicateCode
	}
	return created, err
}

// Update replaces the mutable fields of a voucher. CurrentUsage is owned by the wallet ledger.
func (s *pgStore) Update(ctx context.Context, v Voucher) (Voucher, error) {
	if s == nil || s.pool == nil {
		return Voucher{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE vouchers
SET code = $2, discount_type = $3, discount_value = $4, min_order = $5, expires_at = $6, is_active = $7, max_usage = $8, updated_at = now()
WHERE id = $1 RETURNING `+voucherColumns,
		v.ID, v.Code, string(v.Kind), v.Value, v.MinOrder, v.ExpiresAt, v.IsActive, v.MaxUsage)
	updated, err := scanVoucher(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Voucher{}, ErrNotFound
	case isUniqueViolation(err):
		return Voucher{}, ErrDuplicateCode
	}
	return updated, err
}

func scanVoucher(row pgx.Row) (Voucher, error) {
	var (
		v    Voucher
		kind string
	)
	if err := row.Scan(&v.ID, &v.Code, &kind, &v.Value, &v.MinOrder, &v.ExpiresAt, &v.IsActive, &v.MaxUsage, &v.CurrentUsage, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return Voucher{}, err
	}
	v.Kind = Kind(kind)
	return v, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
