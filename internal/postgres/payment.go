package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terangacraft/marketplace/internal/domain/order"
	"github.com/terangacraft/marketplace/internal/domain/payment"
)

const (
	insertAttemptSQL = `INSERT INTO payment_attempts (id, cart_id, method, state, amount, created_at)
		VALUES ($1, $2, $3, 'processing', $4, $5)`

	markAttemptFailedSQL = `UPDATE payment_attempts
		SET state = 'failed', settled_at = $2
		WHERE id = $1 AND state = 'processing'`

	markAttemptSucceededSQL = `UPDATE payment_attempts
		SET state = 'succeeded', settled_at = $2
		WHERE id = $1 AND state = 'processing'`

	setAttemptDetachedSQL = `UPDATE payment_attempts SET detached = true WHERE id = $1`

	getAttemptByIDSQL = `SELECT id, cart_id, method, state, amount, detached, created_at, settled_at
		FROM payment_attempts WHERE id = $1`

	commitCartHoldsSQL = `UPDATE reservations SET state = 'committed'
		WHERE cart_id = $1 AND state = 'held'
		RETURNING product_id, qty`

	insertOrderSQL = `INSERT INTO orders
		(id, cart_id, attempt_id, buyer_key, lines, subtotal, delivery_fee, promo_discount, total, promo_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
)

// pgUniqueViolation is the SQLSTATE for a unique constraint violation.
const pgUniqueViolation = "23505"

var (
	_ payment.Repository    = (*AttemptRepository)(nil)
	_ payment.CheckoutStore = (*CheckoutStore)(nil)
)

// AttemptRepository implements payment.Repository backed by PostgreSQL.
// The one-in-flight-attempt-per-cart rule is enforced by a partial unique
// index on processing attempts, so a race between two submissions is decided
// by the database, not by application locks.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository returns an AttemptRepository that uses the given pool.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// CreateProcessing inserts a new processing attempt. Returns
// payment.ErrPaymentInProgress when the cart already has one in flight.
func (r *AttemptRepository) CreateProcessing(ctx context.Context, a *payment.Attempt) error {
	_, err := r.pool.Exec(ctx, insertAttemptSQL, a.ID, a.CartID, a.Method, a.Amount, a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return payment.ErrPaymentInProgress
		}
		return fmt.Errorf("creating payment attempt: %w", err)
	}
	return nil
}

// MarkFailed transitions a processing attempt to failed.
func (r *AttemptRepository) MarkFailed(ctx context.Context, id string, settledAt time.Time) error {
	tag, err := r.pool.Exec(ctx, markAttemptFailedSQL, id, settledAt)
	if err != nil {
		return fmt.Errorf("marking attempt %q failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

// SetDetached flags an attempt as detached from buyer-facing views. The
// attempt's state never changes here.
func (r *AttemptRepository) SetDetached(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, setAttemptDetachedSQL, id)
	if err != nil {
		return fmt.Errorf("detaching attempt %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

// GetByID returns an attempt, or payment.ErrNotFound.
func (r *AttemptRepository) GetByID(ctx context.Context, id string) (*payment.Attempt, error) {
	var a payment.Attempt
	err := r.pool.QueryRow(ctx, getAttemptByIDSQL, id).Scan(
		&a.ID, &a.CartID, &a.Method, &a.State, &a.Amount, &a.Detached, &a.CreatedAt, &a.SettledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("getting attempt %q: %w", id, err)
	}
	return &a, nil
}

// CheckoutStore finalizes a successful payment attempt in one transaction.
type CheckoutStore struct {
	pool *pgxpool.Pool
}

// NewCheckoutStore returns a CheckoutStore that uses the given pool.
func NewCheckoutStore(pool *pgxpool.Pool) *CheckoutStore {
	return &CheckoutStore{pool: pool}
}

// CommitSuccess makes a settled payment permanent: the cart's held
// reservations become committed, the order is recorded, the attempt is
// marked succeeded and the cart is emptied. The whole unit commits or rolls
// back together; a partial checkout can never be observed.
func (s *CheckoutStore) CommitSuccess(ctx context.Context, attemptID string, o *order.Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("encoding order lines: %w", err)
	}

	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, commitCartHoldsSQL, o.CartID)
		if err != nil {
			return fmt.Errorf("committing holds for cart %q: %w", o.CartID, err)
		}
		committed, err := pgx.CollectRows(rows, scanCommittedHold)
		if err != nil {
			return fmt.Errorf("committing holds for cart %q: %w", o.CartID, err)
		}
		if err := verifyHoldCoverage(o.Lines, committed); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, insertOrderSQL,
			o.ID, o.CartID, o.AttemptID, o.BuyerKey, lines,
			o.Subtotal, o.DeliveryFee, o.PromoDiscount, o.Total, o.PromoCode, o.CreatedAt)
		if err != nil {
			return fmt.Errorf("recording order %q: %w", o.ID, err)
		}

		tag, err := tx.Exec(ctx, markAttemptSucceededSQL, attemptID, o.CreatedAt)
		if err != nil {
			return fmt.Errorf("marking attempt %q succeeded: %w", attemptID, err)
		}
		if tag.RowsAffected() == 0 {
			return payment.ErrNotFound
		}

		if _, err := tx.Exec(ctx, deleteLinesSQL, o.CartID); err != nil {
			return fmt.Errorf("emptying cart %q: %w", o.CartID, err)
		}
		if _, err := tx.Exec(ctx, touchCartSQL, o.CartID); err != nil {
			return fmt.Errorf("touching cart %q: %w", o.CartID, err)
		}
		return nil
	})
}

// committedHold is a reservation flipped to committed by the checkout
// transaction.
type committedHold struct {
	ProductID string
	Qty       int
}

func scanCommittedHold(row pgx.CollectableRow) (committedHold, error) {
	var h committedHold
	err := row.Scan(&h.ProductID, &h.Qty)
	return h, err
}

// verifyHoldCoverage fails the commit when the committed holds no longer
// cover every order line, which happens when the TTL sweeper released a hold
// between the orchestrator's pre-checks and this transaction. Returning an
// error rolls the whole checkout back, so units are never recorded as sold
// while also returned to available stock.
func verifyHoldCoverage(lines []order.Line, committed []committedHold) error {
	covered := make(map[string]int, len(committed))
	for _, h := range committed {
		covered[h.ProductID] += h.Qty
	}
	for _, l := range lines {
		if covered[l.ProductID] < l.Qty {
			return payment.ErrStaleCart
		}
	}
	return nil
}
