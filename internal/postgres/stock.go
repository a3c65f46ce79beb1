package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terangacraft/marketplace/internal/domain/stock"
)

const (
	// The WHERE clause is the oversell guard: the decrement only happens when
	// enough units remain on an active product, and concurrent executions
	// serialize on the row lock. The is_active check closes the window where
	// a product is deactivated between the catalog read and the reserve.
	decrementStockSQL = `UPDATE products SET available_qty = available_qty - $2
		WHERE id = $1 AND is_active AND available_qty >= $2`

	incrementStockSQL = `UPDATE products SET available_qty = available_qty + $2
		WHERE id = $1`

	insertReservationSQL = `INSERT INTO reservations (id, product_id, cart_id, qty, state, expires_at, created_at)
		VALUES ($1, $2, $3, $4, 'held', $5, $6)`

	closeReservationSQL = `UPDATE reservations SET state = 'released'
		WHERE id = $1 AND state = 'held'
		RETURNING product_id, qty`

	heldByCartSQL = `SELECT id, product_id, cart_id, qty, state, expires_at, created_at
		FROM reservations WHERE cart_id = $1 AND state = 'held'
		ORDER BY created_at`

	extendHoldSQL = `UPDATE reservations SET expires_at = $2
		WHERE cart_id = $1 AND state = 'held'`

	lockExpiredSQL = `SELECT id, product_id, qty FROM reservations
		WHERE state = 'held' AND expires_at < $1
		FOR UPDATE SKIP LOCKED`

	releaseByIDSQL = `UPDATE reservations SET state = 'released' WHERE id = $1`
)

var _ stock.Ledger = (*StockLedger)(nil)

// StockLedger implements stock.Ledger on PostgreSQL. Each Reserve and Release
// pairs the product counter update with the reservation row in one
// transaction, so a crash can never leave units decremented without a hold
// recording who owns them.
type StockLedger struct {
	pool *pgxpool.Pool
}

// NewStockLedger returns a StockLedger that uses the given pool.
func NewStockLedger(pool *pgxpool.Pool) *StockLedger {
	return &StockLedger{pool: pool}
}

// Reserve atomically decrements available quantity and records a held
// reservation valid until now+ttl. Returns stock.ErrOutOfStock without any
// mutation when fewer than qty units are available.
func (l *StockLedger) Reserve(ctx context.Context, productID, cartID string, qty int, ttl time.Duration) (*stock.Reservation, error) {
	now := time.Now().UTC()
	res := &stock.Reservation{
		ID:        uuid.NewString(),
		ProductID: productID,
		CartID:    cartID,
		Qty:       qty,
		State:     stock.StateHeld,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	err := inTx(ctx, l.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, decrementStockSQL, productID, qty)
		if err != nil {
			return fmt.Errorf("decrementing stock for %q: %w", productID, err)
		}
		if tag.RowsAffected() == 0 {
			return stock.ErrOutOfStock
		}

		_, err = tx.Exec(ctx, insertReservationSQL,
			res.ID, res.ProductID, res.CartID, res.Qty, res.ExpiresAt, res.CreatedAt)
		if err != nil {
			return fmt.Errorf("recording reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Release closes a held reservation and returns its units to the product.
func (l *StockLedger) Release(ctx context.Context, reservationID string) error {
	return inTx(ctx, l.pool, func(tx pgx.Tx) error {
		var productID string
		var qty int
		err := tx.QueryRow(ctx, closeReservationSQL, reservationID).Scan(&productID, &qty)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return stock.ErrReservationNotFound
			}
			return fmt.Errorf("closing reservation %q: %w", reservationID, err)
		}

		if _, err := tx.Exec(ctx, incrementStockSQL, productID, qty); err != nil {
			return fmt.Errorf("returning %d units to %q: %w", qty, productID, err)
		}
		return nil
	})
}

// HeldByCart returns the open reservations belonging to a cart.
func (l *StockLedger) HeldByCart(ctx context.Context, cartID string) ([]stock.Reservation, error) {
	rows, err := l.pool.Query(ctx, heldByCartSQL, cartID)
	if err != nil {
		return nil, fmt.Errorf("listing holds for cart %q: %w", cartID, err)
	}
	return pgx.CollectRows(rows, scanReservation)
}

// ExtendHold pushes the expiry of all of a cart's open reservations.
func (l *StockLedger) ExtendHold(ctx context.Context, cartID string, until time.Time) error {
	if _, err := l.pool.Exec(ctx, extendHoldSQL, cartID, until); err != nil {
		return fmt.Errorf("extending holds for cart %q: %w", cartID, err)
	}
	return nil
}

// ReleaseExpired sweeps reservations whose hold window elapsed before now.
// Rows are taken with SKIP LOCKED so multiple sweeper instances never contend.
func (l *StockLedger) ReleaseExpired(ctx context.Context, now time.Time) (int, error) {
	swept := 0
	err := inTx(ctx, l.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, lockExpiredSQL, now)
		if err != nil {
			return fmt.Errorf("locking expired reservations: %w", err)
		}

		type expired struct {
			id        string
			productID string
			qty       int
		}
		batch, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (expired, error) {
			var e expired
			err := row.Scan(&e.id, &e.productID, &e.qty)
			return e, err
		})
		if err != nil {
			return fmt.Errorf("collecting expired reservations: %w", err)
		}

		for _, e := range batch {
			if _, err := tx.Exec(ctx, releaseByIDSQL, e.id); err != nil {
				return fmt.Errorf("releasing reservation %q: %w", e.id, err)
			}
			if _, err := tx.Exec(ctx, incrementStockSQL, e.productID, e.qty); err != nil {
				return fmt.Errorf("returning %d units to %q: %w", e.qty, e.productID, err)
			}
		}
		swept = len(batch)
		return nil
	})
	return swept, err
}

func scanReservation(row pgx.CollectableRow) (stock.Reservation, error) {
	var r stock.Reservation
	err := row.Scan(&r.ID, &r.ProductID, &r.CartID, &r.Qty, &r.State, &r.ExpiresAt, &r.CreatedAt)
	return r, err
}
