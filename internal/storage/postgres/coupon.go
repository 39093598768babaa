package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/shopkart/internal/domain/coupon"
)

// usageCountSQL counts non-cancelled orders carrying the coupon code given
// as the correlated expression substituted for %s.
const usageCountSQL = `(SELECT count(*) FROM orders o
		WHERE UPPER(BTRIM(o.coupon_code)) = %s AND lower(BTRIM(o.status)) <> 'cancelled')`

const couponColumns = `code, discount_type, discount_value::text, min_order_value, max_discount,
		valid_until, is_active, usage_limit, created_at`

var (
	getCouponByCodeSQL = `SELECT ` + couponColumns + `, 0
		FROM coupons WHERE code = $1`

	countCouponUsageSQL = `SELECT ` + fmt.Sprintf(usageCountSQL, "$1")

	listCouponsSQL = `SELECT ` + couponColumns + `, ` + fmt.Sprintf(usageCountSQL, "coupons.code") + `
		FROM coupons ORDER BY created_at DESC, code`
)

const (
	createCouponSQL = `INSERT INTO coupons
		(code, discount_type, discount_value, min_order_value, max_discount, valid_until, is_active, usage_limit)
		VALUES ($1, $2, $3::text::numeric, $4, $5, $6, $7, $8)
		RETURNING created_at`

	upsertCouponSQL = `INSERT INTO coupons
		(code, discount_type, discount_value, min_order_value, max_discount, valid_until, is_active, usage_limit)
		VALUES ($1, $2, $3::text::numeric, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			min_order_value = EXCLUDED.min_order_value,
			max_discount = EXCLUDED.max_discount,
			valid_until = EXCLUDED.valid_until,
			is_active = EXCLUDED.is_active,
			usage_limit = EXCLUDED.usage_limit`

	setCouponActiveSQL = `UPDATE coupons SET is_active = $2 WHERE code = $1`

	deleteCouponSQL = `DELETE FROM coupons WHERE code = $1`
)

var _ coupon.AdminRepository = (*CouponRepository)(nil)

// CouponRepository implements coupon.AdminRepository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code regardless of its
// active flag. Returns coupon.ErrNotFound when no coupon matches.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// CountUsage returns the number of non-cancelled orders that used code.
func (r *CouponRepository) CountUsage(ctx context.Context, code string) (int, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countCouponUsageSQL, code).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting usage of coupon %q: %w", code, err)
	}
	return int(n), nil
}

// List returns every coupon, newest first, with TimesUsed populated.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// Create inserts c. Returns coupon.ErrDuplicateCode when the code is taken.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	err := r.pool.QueryRow(ctx, createCouponSQL, couponArgs(c)...).Scan(&c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Upsert inserts c or overwrites the rules of an existing coupon with the
// same code.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	if _, err := r.pool.Exec(ctx, upsertCouponSQL, couponArgs(c)...); err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

// UpsertBatch upserts all coupons in a single round trip.
func (r *CouponRepository) UpsertBatch(ctx context.Context, coupons []coupon.Coupon) error {
	batch := &pgx.Batch{}
	for i := range coupons {
		batch.Queue(upsertCouponSQL, couponArgs(&coupons[i])...)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d coupons: %w", len(coupons), err)
	}
	return nil
}

// SetActive toggles the active flag. Returns coupon.ErrNotFound for unknown
// codes.
func (r *CouponRepository) SetActive(ctx context.Context, code string, active bool) error {
	tag, err := r.pool.Exec(ctx, setCouponActiveSQL, code, active)
	if err != nil {
		return fmt.Errorf("setting coupon %q active: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// Delete removes a coupon. Returns coupon.ErrNotFound for unknown codes.
func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, code)
	if err != nil {
		return fmt.Errorf("deleting coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func couponArgs(c *coupon.Coupon) []any {
	var limit *int32
	if c.UsageLimit != nil {
		v := int32(*c.UsageLimit)
		limit = &v
	}
	value := "NaN"
	if c.Value.Valid {
		value = c.Value.Decimal.String()
	}
	return []any{
		c.Code, string(c.DiscountType), value, c.MinOrderValue,
		c.MaxDiscount, c.ValidUntil, c.IsActive, limit,
	}
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		value        string
		minOrder     decimal.Decimal
		validUntil   *time.Time
		usageLimit   *int32
		timesUsed    int64
	)
	err := row.Scan(
		&c.Code, &discountType, &value, &minOrder, &c.MaxDiscount,
		&validUntil, &c.IsActive, &usageLimit, &c.CreatedAt, &timesUsed,
	)
	c.DiscountType = coupon.NormalizeDiscountType(discountType)
	c.Value = coupon.ParseValue(value)
	c.MinOrderValue = minOrder
	c.ValidUntil = validUntil
	if usageLimit != nil {
		limit := int(*usageLimit)
		c.UsageLimit = &limit
	}
	c.TimesUsed = int(timesUsed)
	return c, err
}
