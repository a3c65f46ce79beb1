package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terangacraft/marketplace/internal/domain/promo"
)

const (
	getPromoByCodeSQL = `SELECT code, discount_type, value, min_items, description
		FROM promo_codes WHERE code = $1`

	listPromoCodesSQL = `SELECT code FROM promo_codes`

	upsertPromoSQL = `INSERT INTO promo_codes (code, discount_type, value, min_items, description)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code)
		DO UPDATE SET discount_type = EXCLUDED.discount_type, value = EXCLUDED.value,
			min_items = EXCLUDED.min_items, description = EXCLUDED.description`
)

var _ promo.Repository = (*PromoRepository)(nil)

// PromoRepository implements promo.Repository backed by PostgreSQL.
type PromoRepository struct {
	pool *pgxpool.Pool
}

// NewPromoRepository returns a PromoRepository that uses the given pool.
func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{pool: pool}
}

// FindByCode looks up a promo rule by its code. Codes are stored uppercase,
// so callers normalize before lookup. Returns promo.ErrInvalidPromoCode when
// no rule exists.
func (r *PromoRepository) FindByCode(ctx context.Context, code string) (*promo.Rule, error) {
	var rule promo.Rule
	err := r.pool.QueryRow(ctx, getPromoByCodeSQL, code).Scan(
		&rule.Code, &rule.DiscountType, &rule.Value, &rule.MinItems, &rule.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrInvalidPromoCode
		}
		return nil, fmt.Errorf("finding promo code %q: %w", code, err)
	}
	return &rule, nil
}

// ListCodes returns every stored promo code. Used once at startup to warm
// the bloom pre-filter.
func (r *PromoRepository) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listPromoCodesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing promo codes: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var code string
		err := row.Scan(&code)
		return code, err
	})
}

// UpsertBatch writes a batch of promo rules in one round trip. Used by the
// ingest command.
func (r *PromoRepository) UpsertBatch(ctx context.Context, rules []promo.Rule) error {
	batch := &pgx.Batch{}
	for _, rule := range rules {
		batch.Queue(upsertPromoSQL, rule.Code, rule.DiscountType, rule.Value, rule.MinItems, rule.Description)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d promo rules: %w", len(rules), err)
	}
	return nil
}
