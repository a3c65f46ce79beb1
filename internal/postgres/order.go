package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terangacraft/marketplace/internal/domain/order"
)

const (
	getOrderByIDSQL = `SELECT id, cart_id, attempt_id, buyer_key, lines,
			subtotal, delivery_fee, promo_discount, total, promo_code, created_at
		FROM orders WHERE id = $1`

	listOrdersByBuyerSQL = `SELECT id, cart_id, attempt_id, buyer_key, lines,
			subtotal, delivery_fee, promo_discount, total, promo_code, created_at
		FROM orders WHERE buyer_key = $1 ORDER BY created_at DESC`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements the read side of order.Repository backed by
// PostgreSQL. Orders are only ever written by the checkout store.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID returns an order, or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
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
	return &o, nil
}

// ListByBuyer returns a buyer's orders, newest first.
func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerKey string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByBuyerSQL, buyerKey)
	if err != nil {
		return nil, fmt.Errorf("listing orders for buyer: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	var lines []byte
	err := row.Scan(&o.ID, &o.CartID, &o.AttemptID, &o.BuyerKey, &lines,
		&o.Subtotal, &o.DeliveryFee, &o.PromoDiscount, &o.Total, &o.PromoCode, &o.CreatedAt)
	if err != nil {
		return order.Order{}, err
	}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return order.Order{}, fmt.Errorf("decoding order lines: %w", err)
	}
	return o, nil
}
