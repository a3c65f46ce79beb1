// Package order holds the immutable record a successful payment commits to.
// An order is written exactly once, inside the checkout transaction, and is
// never mutated afterwards.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Line is a frozen copy of a cart line at commit time.
type Line struct {
	ProductID string          `json:"product_id"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Order references the cart snapshot and the final totals of a settled
// payment attempt.
type Order struct {
	ID            string
	CartID        string
	AttemptID     string
	BuyerKey      string
	Lines         []Line
	Subtotal      decimal.Decimal
	DeliveryFee   decimal.Decimal
	PromoDiscount decimal.Decimal
	Total         decimal.Decimal
	PromoCode     string
	CreatedAt     time.Time
}

// Repository defines read access to committed orders. Creation happens only
// through the checkout store's commit transaction.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByBuyer(ctx context.Context, buyerKey string) ([]Order, error)
}
