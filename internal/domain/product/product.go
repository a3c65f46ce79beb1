// Package product defines the catalog entities the transactional core reads.
// Display attributes and catalog curation belong to the catalog service; the
// core only needs prices, availability, and the active flag.
package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist or is
// inactive.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item as seen by the transactional core.
type Product struct {
	ID           string
	ArtisanID    string
	Name         string
	Price        decimal.Decimal
	AvailableQty int
	Active       bool
}

// Repository defines read operations over the catalog. Only active products
// are visible.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// Catalog is the collaborator that controls listing activation. The approval
// workflow deactivates a suspended artisan's products through it; products
// with order history are never deleted.
type Catalog interface {
	SetActiveForArtisan(ctx context.Context, artisanID string, active bool) error
}
