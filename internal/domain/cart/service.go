package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/terangacraft/marketplace/internal/domain/product"
	"github.com/terangacraft/marketplace/internal/domain/stock"
)

// Service coordinates cart mutations with the stock ledger. Every mutation
// reserves or releases the quantity delta before touching the cart itself,
// and resets the hold TTL for all of the cart's reservations.
type Service struct {
	carts    Repository
	products product.Repository
	ledger   stock.Ledger
	holdTTL  time.Duration
	now      func() time.Time
}

// NewService creates a cart Service. holdTTL is the reservation hold window
// reset on every cart mutation.
func NewService(carts Repository, products product.Repository, ledger stock.Ledger, holdTTL time.Duration) *Service {
	return &Service{
		carts:    carts,
		products: products,
		ledger:   ledger,
		holdTTL:  holdTTL,
		now:      time.Now,
	}
}

// AddItem adds qty units of a product to the owner's cart, merging into an
// existing line for the same product. The quantity delta is reserved on the
// ledger first; ErrOutOfStock propagates untouched so callers can surface it
// line-scoped.
func (s *Service) AddItem(ctx context.Context, ownerKey, productID string, qty int) (*Cart, error) {
	if qty < MinLineQty || qty > MaxLineQty {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %s", productID)
	}

	c, err := s.carts.GetOrCreateByOwner(ctx, ownerKey)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	line := c.LineForProduct(productID)
	newQty := qty
	if line != nil {
		newQty = line.Qty + qty
	}
	if newQty > MaxLineQty {
		return nil, ErrInvalidQuantity
	}

	// Reserve only the delta over what this line already holds.
	res, err := s.ledger.Reserve(ctx, productID, c.ID, qty, s.holdTTL)
	if err != nil {
		return nil, err
	}

	updated := Line{
		ID:        uuid.New().String(),
		CartID:    c.ID,
		ProductID: productID,
		Qty:       newQty,
		UnitPrice: p.Price,
	}
	if line != nil {
		updated.ID = line.ID
		updated.UnitPrice = line.UnitPrice
	}

	if err := s.carts.UpsertLine(ctx, updated); err != nil {
		// Never leak the hold when the line write fails.
		s.compensate(ctx, res.ID)
		return nil, errors.Wrap(err, "upsert line")
	}

	s.refreshHolds(ctx, c.ID)
	return s.carts.GetByID(ctx, c.ID)
}

// UpdateQuantity changes a line's quantity, reserving the positive delta or
// releasing the negative one. Quantities below MinLineQty are rejected;
// RemoveItem is the way to drop a line.
func (s *Service) UpdateQuantity(ctx context.Context, ownerKey, lineID string, newQty int) (*Cart, error) {
	if newQty < MinLineQty || newQty > MaxLineQty {
		return nil, ErrInvalidQuantity
	}

	c, err := s.carts.GetByOwner(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	line := c.Line(lineID)
	if line == nil {
		return nil, ErrLineNotFound
	}

	delta := newQty - line.Qty
	switch {
	case delta > 0:
		res, err := s.ledger.Reserve(ctx, line.ProductID, c.ID, delta, s.holdTTL)
		if err != nil {
			return nil, err
		}
		if err := s.writeLineQty(ctx, c, *line, newQty); err != nil {
			s.compensate(ctx, res.ID)
			return nil, err
		}
	case delta < 0:
		if err := s.releaseQty(ctx, c.ID, line.ProductID, -delta); err != nil {
			return nil, err
		}
		if err := s.writeLineQty(ctx, c, *line, newQty); err != nil {
			return nil, err
		}
	default:
		// No quantity change; still a mutation for TTL purposes.
	}

	s.refreshHolds(ctx, c.ID)
	return s.carts.GetByID(ctx, c.ID)
}

// RemoveItem drops a line and releases its reservations fully.
func (s *Service) RemoveItem(ctx context.Context, ownerKey, lineID string) (*Cart, error) {
	c, err := s.carts.GetByOwner(ctx, ownerKey)
	if err != nil {
		return nil, err
	}
	line := c.Line(lineID)
	if line == nil {
		return nil, ErrLineNotFound
	}

	if err := s.releaseQty(ctx, c.ID, line.ProductID, line.Qty); err != nil {
		return nil, err
	}
	if err := s.carts.DeleteLine(ctx, c.ID, lineID); err != nil {
		return nil, errors.Wrap(err, "delete line")
	}

	s.refreshHolds(ctx, c.ID)
	return s.carts.GetByID(ctx, c.ID)
}

// Get returns the owner's cart snapshot, consistent at read time.
func (s *Service) Get(ctx context.Context, ownerKey string) (*Cart, error) {
	return s.carts.GetByOwner(ctx, ownerKey)
}

// Empty releases every hold and drops all lines.
func (s *Service) Empty(ctx context.Context, ownerKey string) error {
	c, err := s.carts.GetByOwner(ctx, ownerKey)
	if err != nil {
		return err
	}

	held, err := s.ledger.HeldByCart(ctx, c.ID)
	if err != nil {
		return errors.Wrap(err, "list holds")
	}
	for _, r := range held {
		if err := s.ledger.Release(ctx, r.ID); err != nil && !errors.Is(err, stock.ErrReservationNotFound) {
			return errors.Wrapf(err, "release %s", r.ID)
		}
	}
	return s.carts.DeleteLines(ctx, c.ID)
}

// releaseQty releases qty units of a product from the cart's open holds,
// splitting a hold when it is larger than the remaining amount to release.
func (s *Service) releaseQty(ctx context.Context, cartID, productID string, qty int) error {
	held, err := s.ledger.HeldByCart(ctx, cartID)
	if err != nil {
		return errors.Wrap(err, "list holds")
	}

	remaining := qty
	for _, r := range held {
		if remaining <= 0 {
			break
		}
		if r.ProductID != productID {
			continue
		}
		if err := s.ledger.Release(ctx, r.ID); err != nil {
			return errors.Wrapf(err, "release %s", r.ID)
		}
		remaining -= r.Qty
		if remaining < 0 {
			// Released more than asked; re-reserve the difference so the
			// ledger still matches the line quantity.
			if _, err := s.ledger.Reserve(ctx, productID, cartID, -remaining, s.holdTTL); err != nil {
				return errors.Wrap(err, "re-reserve split")
			}
			remaining = 0
		}
	}
	return nil
}

func (s *Service) writeLineQty(ctx context.Context, c *Cart, line Line, qty int) error {
	line.Qty = qty
	if err := s.carts.UpsertLine(ctx, line); err != nil {
		return errors.Wrap(err, "upsert line")
	}
	return nil
}

// compensate releases a reservation taken earlier in a failed mutation.
// Failure here is logged, not returned: the sweeper reclaims the hold at TTL.
func (s *Service) compensate(ctx context.Context, reservationID string) {
	if err := s.ledger.Release(ctx, reservationID); err != nil {
		zctx.From(ctx).Warn("compensating release failed",
			zap.String("reservation_id", reservationID),
			zap.Error(err),
		)
	}
}

// refreshHolds resets the hold TTL after a successful mutation. Best effort:
// a failure only shortens the window, it cannot corrupt stock.
func (s *Service) refreshHolds(ctx context.Context, cartID string) {
	if err := s.ledger.ExtendHold(ctx, cartID, s.now().Add(s.holdTTL)); err != nil {
		zctx.From(ctx).Warn("extend hold failed",
			zap.String("cart_id", cartID),
			zap.Error(err),
		)
	}
}
