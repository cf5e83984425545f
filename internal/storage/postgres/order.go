package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tiffin/internal/domain/basket"
	"github.com/xenking/tiffin/internal/domain/order"
	"github.com/xenking/tiffin/internal/domain/promotion"
)

const (
	orderColumns = `id, account_id, vendor_id, lines, subtotal, delivery_fee, tax, discount, total,
		promotion_code, address, payment_method, status, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByAccountSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`

	claimRedemptionSQL = `INSERT INTO promotion_redemptions (account_id, code, order_id)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING RETURNING account_id`
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

// Create persists a new order. Lines are stored as JSONB. A claim is inserted
// first in the same transaction, so two orders can never share one
// single-use redemption.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, claim *promotion.Redemption) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if claim != nil {
			var owner string
			err := tx.QueryRow(ctx, claimRedemptionSQL, claim.AccountID, claim.Code, o.ID).Scan(&owner)
			if errors.Is(err, pgx.ErrNoRows) {
				return promotion.ErrAlreadyRedeemed
			}
			if err != nil {
				return fmt.Errorf("claiming %q: %w", claim.Code, err)
			}
		}

		b := o.Breakdown
		_, err := tx.Exec(ctx, createOrderSQL,
			o.ID, o.AccountID, o.VendorID, basket.EncodeLines(o.Lines),
			b.Subtotal, b.DeliveryFee, b.Tax, b.Discount, b.Total,
			o.PromotionCode, o.Address, string(o.PaymentMethod), string(o.Status),
			o.CreatedAt, o.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("creating order %s: %w", o.ID, err)
	}
	return nil
}

// Get returns an order or order.ErrNotFound.
func (r *OrderRepository) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %s: %w", id, err)
	}
	return &o, nil
}

// ListByAccount returns up to limit orders of an account, newest first.
func (r *OrderRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByAccountSQL, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus performs a compare-and-set on the order status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to order.Status, at time.Time) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("updating order %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrStatusConflict
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o       order.Order
		lines   []byte
		payment string
		status  string
	)
	b := &o.Breakdown
	err := row.Scan(
		&o.ID, &o.AccountID, &o.VendorID, &lines,
		&b.Subtotal, &b.DeliveryFee, &b.Tax, &b.Discount, &b.Total,
		&o.PromotionCode, &o.Address, &payment, &status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.PaymentMethod = order.PaymentMethod(payment)
	o.Status = order.Status(status)
	o.Lines, err = basket.DecodeLines(lines)
	return o, err
}
