package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terangacraft/marketplace/internal/domain/cart"
	"github.com/terangacraft/marketplace/internal/domain/payment"
)

const (
	insertCartSQL = `INSERT INTO carts (id, owner_key) VALUES ($1, $2)
		ON CONFLICT (owner_key) DO NOTHING`

	getCartByOwnerSQL = `SELECT id, owner_key, checkout_blocked, attempts, created_at, updated_at
		FROM carts WHERE owner_key = $1`

	getCartByIDSQL = `SELECT id, owner_key, checkout_blocked, attempts, created_at, updated_at
		FROM carts WHERE id = $1`

	getCartLinesSQL = `SELECT id, cart_id, product_id, qty, unit_price
		FROM cart_lines WHERE cart_id = $1 ORDER BY id`

	upsertLineSQL = `INSERT INTO cart_lines (id, cart_id, product_id, qty, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET qty = EXCLUDED.qty, unit_price = EXCLUDED.unit_price`

	deleteLineSQL  = `DELETE FROM cart_lines WHERE cart_id = $1 AND id = $2`
	deleteLinesSQL = `DELETE FROM cart_lines WHERE cart_id = $1`

	touchCartSQL = `UPDATE carts SET updated_at = now() WHERE id = $1`

	incrementAttemptsSQL = `UPDATE carts SET attempts = attempts + 1, updated_at = now()
		WHERE id = $1 RETURNING attempts`

	blockCheckoutSQL = `UPDATE carts SET checkout_blocked = true, updated_at = now()
		WHERE id = $1`
)

var (
	_ cart.Repository   = (*CartRepository)(nil)
	_ payment.CartFlags = (*CartRepository)(nil)
)

// CartRepository implements cart.Repository and payment.CartFlags backed by
// PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// GetOrCreateByOwner returns the owner's cart, creating an empty one on first
// use. The insert races safely against concurrent callers via ON CONFLICT.
func (r *CartRepository) GetOrCreateByOwner(ctx context.Context, ownerKey string) (*cart.Cart, error) {
	if _, err := r.pool.Exec(ctx, insertCartSQL, uuid.NewString(), ownerKey); err != nil {
		return nil, fmt.Errorf("creating cart for owner: %w", err)
	}
	return r.GetByOwner(ctx, ownerKey)
}

// GetByOwner returns the owner's cart with its lines, or cart.ErrNotFound.
func (r *CartRepository) GetByOwner(ctx context.Context, ownerKey string) (*cart.Cart, error) {
	return r.getCart(ctx, getCartByOwnerSQL, ownerKey)
}

// GetByID returns a cart by ID with its lines, or cart.ErrNotFound.
func (r *CartRepository) GetByID(ctx context.Context, id string) (*cart.Cart, error) {
	return r.getCart(ctx, getCartByIDSQL, id)
}

// getCart reads the cart header and its lines inside one transaction, so the
// snapshot cannot be torn by a concurrent mutation between the two reads.
func (r *CartRepository) getCart(ctx context.Context, query, arg string) (*cart.Cart, error) {
	var c cart.Cart
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, query, arg).Scan(
			&c.ID, &c.OwnerKey, &c.CheckoutBlocked, &c.Attempts, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return cart.ErrNotFound
			}
			return fmt.Errorf("getting cart: %w", err)
		}

		rows, err := tx.Query(ctx, getCartLinesSQL, c.ID)
		if err != nil {
			return fmt.Errorf("getting cart lines: %w", err)
		}
		c.Lines, err = pgx.CollectRows(rows, scanCartLine)
		if err != nil {
			return fmt.Errorf("getting cart lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertLine inserts or replaces a line keyed by (cart, product) and bumps
// the cart's updated timestamp.
func (r *CartRepository) UpsertLine(ctx context.Context, line cart.Line) error {
	if line.ID == "" {
		line.ID = uuid.NewString()
	}
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, upsertLineSQL,
			line.ID, line.CartID, line.ProductID, line.Qty, line.UnitPrice)
		if err != nil {
			return fmt.Errorf("upserting cart line: %w", err)
		}
		if _, err := tx.Exec(ctx, touchCartSQL, line.CartID); err != nil {
			return fmt.Errorf("touching cart: %w", err)
		}
		return nil
	})
}

// DeleteLine removes a line, or returns cart.ErrLineNotFound.
func (r *CartRepository) DeleteLine(ctx context.Context, cartID, lineID string) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, deleteLineSQL, cartID, lineID)
		if err != nil {
			return fmt.Errorf("deleting cart line: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return cart.ErrLineNotFound
		}
		if _, err := tx.Exec(ctx, touchCartSQL, cartID); err != nil {
			return fmt.Errorf("touching cart: %w", err)
		}
		return nil
	})
}

// DeleteLines empties a cart.
func (r *CartRepository) DeleteLines(ctx context.Context, cartID string) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deleteLinesSQL, cartID); err != nil {
			return fmt.Errorf("emptying cart: %w", err)
		}
		if _, err := tx.Exec(ctx, touchCartSQL, cartID); err != nil {
			return fmt.Errorf("touching cart: %w", err)
		}
		return nil
	})
}

// IncrementAttempts bumps the failed-attempt counter and returns the new
// value.
func (r *CartRepository) IncrementAttempts(ctx context.Context, cartID string) (int, error) {
	var attempts int
	err := r.pool.QueryRow(ctx, incrementAttemptsSQL, cartID).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("incrementing attempts for cart %q: %w", cartID, err)
	}
	return attempts, nil
}

// SetCheckoutBlocked flags the cart as terminal for checkout.
func (r *CartRepository) SetCheckoutBlocked(ctx context.Context, cartID string) error {
	if _, err := r.pool.Exec(ctx, blockCheckoutSQL, cartID); err != nil {
		return fmt.Errorf("blocking checkout for cart %q: %w", cartID, err)
	}
	return nil
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var l cart.Line
	err := row.Scan(&l.ID, &l.CartID, &l.ProductID, &l.Qty, &l.UnitPrice)
	return l, err
}
