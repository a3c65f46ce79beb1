package stock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger is a mutex-guarded in-process Ledger. It backs unit tests and
// local development; production uses the PostgreSQL ledger.
type MemoryLedger struct {
	mu           sync.Mutex
	available    map[string]int
	inactive     map[string]bool
	reservations map[string]*Reservation
	now          func() time.Time
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates a MemoryLedger seeded with per-product available
// quantities.
func NewMemoryLedger(available map[string]int) *MemoryLedger {
	avail := make(map[string]int, len(available))
	for id, qty := range available {
		avail[id] = qty
	}
	return &MemoryLedger{
		available:    avail,
		inactive:     make(map[string]bool),
		reservations: make(map[string]*Reservation),
		now:          time.Now,
	}
}

// SetActive flips a product's reservation eligibility, mirroring the
// is_active guard of the PostgreSQL ledger. Existing holds are untouched.
func (l *MemoryLedger) SetActive(productID string, active bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inactive[productID] = !active
}

// Available returns the current available quantity for a product.
func (l *MemoryLedger) Available(productID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.available[productID]
}

// Reserve atomically decrements available quantity and opens a hold.
func (l *MemoryLedger) Reserve(_ context.Context, productID, cartID string, qty int, ttl time.Duration) (*Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inactive[productID] || l.available[productID] < qty {
		return nil, ErrOutOfStock
	}
	l.available[productID] -= qty

	now := l.now()
	r := &Reservation{
		ID:        uuid.New().String(),
		ProductID: productID,
		CartID:    cartID,
		Qty:       qty,
		State:     StateHeld,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	l.reservations[r.ID] = r

	cp := *r
	return &cp, nil
}

// Release returns a held reservation's units to the product.
func (l *MemoryLedger) Release(_ context.Context, reservationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.release(reservationID)
}

// release closes a hold and restores its quantity. Caller holds l.mu.
func (l *MemoryLedger) release(reservationID string) error {
	r, ok := l.reservations[reservationID]
	if !ok || r.State != StateHeld {
		return ErrReservationNotFound
	}
	r.State = StateReleased
	l.available[r.ProductID] += r.Qty
	return nil
}

// Commit makes a cart's held reservations permanent. The memory ledger owns
// this directly since there is no surrounding transaction to join.
func (l *MemoryLedger) Commit(_ context.Context, cartID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range l.reservations {
		if r.CartID == cartID && r.State == StateHeld {
			r.State = StateCommitted
		}
	}
	return nil
}

// HeldByCart returns the open reservations belonging to a cart.
func (l *MemoryLedger) HeldByCart(_ context.Context, cartID string) ([]Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var held []Reservation
	for _, r := range l.reservations {
		if r.CartID == cartID && r.State == StateHeld {
			held = append(held, *r)
		}
	}
	return held, nil
}

// ExtendHold pushes the expiry of a cart's open reservations.
func (l *MemoryLedger) ExtendHold(_ context.Context, cartID string, until time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range l.reservations {
		if r.CartID == cartID && r.State == StateHeld && r.ExpiresAt.Before(until) {
			r.ExpiresAt = until
		}
	}
	return nil
}

// ReleaseExpired sweeps holds whose window elapsed before now.
func (l *MemoryLedger) ReleaseExpired(_ context.Context, now time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	swept := 0
	for id, r := range l.reservations {
		if r.State == StateHeld && now.After(r.ExpiresAt) {
			if err := l.release(id); err == nil {
				swept++
			}
		}
	}
	return swept, nil
}

// SetNow overrides the ledger clock. Test hook.
func (l *MemoryLedger) SetNow(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
