// Package stock holds the authoritative available-quantity ledger.
//
// Every unit of stock is in exactly one of three places: available on the
// product, held by an open reservation, or committed into an order. All
// mutation of available quantity goes through a Ledger implementation, which
// guarantees at most one decrement per unit.
package stock

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for ledger operations.
var (
	// ErrOutOfStock is returned when a reservation asks for more units than
	// the product currently has available. No mutation happens in that case.
	ErrOutOfStock = errors.New("out of stock")
	// ErrReservationNotFound is returned when releasing an unknown or
	// already-closed reservation.
	ErrReservationNotFound = errors.New("reservation not found")
)

// ReservationState enumerates the lifecycle of a stock hold.
type ReservationState string

const (
	// StateHeld marks an open, time-bounded hold on stock units.
	StateHeld ReservationState = "held"
	// StateCommitted marks a hold made permanent by a successful payment.
	StateCommitted ReservationState = "committed"
	// StateReleased marks a hold whose units were returned to the product.
	StateReleased ReservationState = "released"
)

// Reservation is a time-bounded hold on stock units pending commit or release.
type Reservation struct {
	ID        string
	ProductID string
	CartID    string
	Qty       int
	State     ReservationState
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the hold window has elapsed at the given instant.
func (r *Reservation) Expired(now time.Time) bool {
	return r.State == StateHeld && now.After(r.ExpiresAt)
}

// Ledger is the single mutation point for product available quantity.
//
// Reserve must be atomic with respect to all other Reserve calls on the same
// product: it either decrements available quantity by qty and returns a held
// Reservation, or fails with ErrOutOfStock and mutates nothing. Committing a
// cart's reservations is done transactionally with order recording and is
// therefore owned by the checkout store, not the ledger.
type Ledger interface {
	// Reserve places a hold of qty units on the product for the given cart,
	// valid until now+ttl.
	Reserve(ctx context.Context, productID, cartID string, qty int, ttl time.Duration) (*Reservation, error)
	// Release returns a held reservation's units to the product.
	Release(ctx context.Context, reservationID string) error
	// HeldByCart returns the open reservations belonging to a cart.
	HeldByCart(ctx context.Context, cartID string) ([]Reservation, error)
	// ExtendHold pushes the expiry of all of a cart's open reservations to
	// the given instant. Used on cart mutation and on payment submission.
	ExtendHold(ctx context.Context, cartID string, until time.Time) error
	// ReleaseExpired releases every reservation whose hold window elapsed
	// before now and reports how many were swept.
	ReleaseExpired(ctx context.Context, now time.Time) (int, error)
}
