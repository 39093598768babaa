package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopkart/internal/domain/order"
)

const orderColumns = `id, customer_name, email, address, city, zip_code,
		subtotal, discount_amount, shipping, total_amount, COALESCE(coupon_code, ''),
		status, created_at, updated_at`

// normalizedStatusSQL mirrors order.NormalizeStatus.
const normalizedStatusSQL = `CASE WHEN lower(BTRIM(COALESCE(status, ''))) IN
		('processing', 'shipped', 'delivered', 'cancelled')
		THEN lower(BTRIM(status)) ELSE 'pending' END`

var (
	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1::text = '' OR ` + normalizedStatusSQL + ` = $1::text)
		  AND ($2::text = '' OR id LIKE $2::text || '%' OR customer_name ILIKE '%' || $2::text || '%')
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND ` + normalizedStatusSQL + ` = $2
		RETURNING ` + orderColumns
)

const (
	createOrderSQL = `INSERT INTO orders
		(id, customer_name, email, address, city, zip_code,
		 subtotal, discount_amount, shipping, total_amount, coupon_code, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11::text, ''), $12, $13, $14)`

	createOrderItemSQL = `INSERT INTO order_items (order_id, product_id, title, quantity, price_at_purchase)
		VALUES ($1, $2, $3, $4, $5)`

	getOrderItemsSQL = `SELECT product_id, title, quantity, price_at_purchase
		FROM order_items WHERE order_id = $1 ORDER BY id`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and its items in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		c := o.Customer
		if _, err := tx.Exec(ctx, createOrderSQL,
			o.ID, c.Name, c.Email, c.Address, c.City, c.Zip,
			o.Subtotal, o.Discount, o.Shipping, o.Total, o.CouponCode,
			string(o.Status), o.CreatedAt, o.UpdatedAt,
		); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, it := range o.Items {
			batch.Queue(createOrderItemSQL, o.ID, it.ProductID, it.Title, it.Quantity, it.PriceAtPurchase)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns an order with its items. Returns order.ErrNotFound for an
// unknown ID.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	if o.Items, err = r.items(ctx, id); err != nil {
		return nil, err
	}
	return &o, nil
}

// List returns orders matching f without their items.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, string(f.Status), f.Search, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus performs a compare-and-set on the normalized stored status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, updateOrderStatusSQL, id, string(from), string(to))
	if err != nil {
		return nil, fmt.Errorf("updating order %q status: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err == nil {
		if o.Items, err = r.items(ctx, id); err != nil {
			return nil, err
		}
		return &o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("updating order %q status: %w", id, err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return nil, order.ErrNotFound
	}
	return nil, order.ErrStatusConflict
}

func (r *OrderRepository) items(ctx context.Context, id string) ([]order.Item, error) {
	rows, err := r.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %q: %w", id, err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var (
			it  order.Item
			qty int32
		)
		err := row.Scan(&it.ProductID, &it.Title, &qty, &it.PriceAtPurchase)
		it.Quantity = int(qty)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting items of order %q: %w", id, err)
	}
	return items, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.Customer.Name, &o.Customer.Email, &o.Customer.Address, &o.Customer.City, &o.Customer.Zip,
		&o.Subtotal, &o.Discount, &o.Shipping, &o.Total, &o.CouponCode,
		&status, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.NormalizeStatus(status)
	return o, err
}
