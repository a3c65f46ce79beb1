package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terangacraft/marketplace/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, COALESCE(artisan_id, ''), name, price, available_qty, is_active
		FROM products WHERE is_active ORDER BY name`

	getProductByIDSQL = `SELECT id, COALESCE(artisan_id, ''), name, price, available_qty, is_active
		FROM products WHERE id = $1 AND is_active`

	getProductsByIDsSQL = `SELECT id, COALESCE(artisan_id, ''), name, price, available_qty, is_active
		FROM products WHERE id = ANY($1) AND is_active`

	setActiveForArtisanSQL = `UPDATE products SET is_active = $2 WHERE artisan_id = $1`
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ product.Catalog    = (*ProductRepository)(nil)
)

// ProductRepository implements the catalog read side and the listing
// activation collaborator backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns every active product in the catalog.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single active product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns active products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// SetActiveForArtisan toggles every listing owned by an artisan. Used by the
// approval workflow; rows are updated, never deleted.
func (r *ProductRepository) SetActiveForArtisan(ctx context.Context, artisanID string, active bool) error {
	_, err := r.pool.Exec(ctx, setActiveForArtisanSQL, artisanID, active)
	if err != nil {
		return fmt.Errorf("setting listings active=%t for artisan %q: %w", active, artisanID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.ArtisanID, &p.Name, &p.Price, &p.AvailableQty, &p.Active)
	return p, err
}
