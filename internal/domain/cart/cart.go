// Package cart implements the per-buyer mutable item list bound to the stock
// ledger. A cart belongs to exactly one owner key: an authenticated buyer
// identity or an anonymous session token, both opaque to this package.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Quantity bounds for a single cart line.
const (
	MinLineQty = 1
	MaxLineQty = 10
)

// Sentinel errors for cart operations.
var (
	// ErrInvalidQuantity is returned when a line quantity falls outside
	// [MinLineQty, MaxLineQty], including after a merge on add.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrLineNotFound is returned when a line does not exist in the cart.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrNotFound is returned when no cart exists for the owner.
	ErrNotFound = errors.New("cart not found")
)

// Line is one product entry in a cart. A product appears in at most one line;
// adds merge into the existing line.
type Line struct {
	ID        string
	CartID    string
	ProductID string
	Qty       int
	// UnitPrice is the price snapshot taken when the line was created.
	UnitPrice decimal.Decimal
}

// Subtotal returns qty times the unit price snapshot.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty)))
}

// Cart is the mutable item list for one owner.
type Cart struct {
	ID       string
	OwnerKey string
	// CheckoutBlocked is set once the payment retry budget is exhausted;
	// the buyer needs a fresh cart afterwards.
	CheckoutBlocked bool
	// Attempts counts failed payment attempts against this cart.
	Attempts  int
	Lines     []Line
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Line returns the line with the given ID, or nil.
func (c *Cart) Line(lineID string) *Line {
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			return &c.Lines[i]
		}
	}
	return nil
}

// LineForProduct returns the line holding the given product, or nil.
func (c *Cart) LineForProduct(productID string) *Line {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return &c.Lines[i]
		}
	}
	return nil
}

// Repository defines persistence for carts and their lines. Get and
// GetByOwner return the cart with its lines as a snapshot consistent at read
// time.
type Repository interface {
	// GetOrCreateByOwner returns the owner's cart, creating it lazily.
	GetOrCreateByOwner(ctx context.Context, ownerKey string) (*Cart, error)
	// GetByOwner returns the owner's cart, or ErrNotFound.
	GetByOwner(ctx context.Context, ownerKey string) (*Cart, error)
	// GetByID returns a cart by ID, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Cart, error)
	// UpsertLine inserts or replaces a line and bumps the cart's UpdatedAt.
	UpsertLine(ctx context.Context, line Line) error
	// DeleteLine removes a line and bumps the cart's UpdatedAt.
	DeleteLine(ctx context.Context, cartID, lineID string) error
	// DeleteLines empties a cart.
	DeleteLines(ctx context.Context, cartID string) error
}
