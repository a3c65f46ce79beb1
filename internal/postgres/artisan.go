package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terangacraft/marketplace/internal/domain/artisan"
)

const (
	insertArtisanSQL = `INSERT INTO artisans
		(id, identity_key, boutique_name, status, version, documents, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`

	getArtisanByIDSQL = `SELECT id, identity_key, boutique_name, status, version, documents,
			submitted_at, reviewed_at, updated_at
		FROM artisans WHERE id = $1`

	getArtisanByIdentitySQL = `SELECT id, identity_key, boutique_name, status, version, documents,
			submitted_at, reviewed_at, updated_at
		FROM artisans WHERE identity_key = $1`

	listArtisansSQL = `SELECT id, identity_key, boutique_name, status, version, documents,
			submitted_at, reviewed_at, updated_at
		FROM artisans ORDER BY submitted_at`

	listArtisansByStatusSQL = `SELECT id, identity_key, boutique_name, status, version, documents,
			submitted_at, reviewed_at, updated_at
		FROM artisans WHERE status = $1 ORDER BY submitted_at`

	// The version predicate is the compare-and-set: a concurrent transition
	// that landed first makes this update match zero rows.
	transitionArtisanSQL = `UPDATE artisans
		SET status = $3, version = version + 1, reviewed_at = $4, updated_at = $4
		WHERE id = $1 AND version = $2`

	insertStatusChangeSQL = `INSERT INTO artisan_status_history
		(artisan_id, from_status, to_status, actor, changed_at)
		VALUES ($1, $2, $3, $4, $5)`

	artisanExistsSQL = `SELECT EXISTS (SELECT 1 FROM artisans WHERE id = $1)`
)

var _ artisan.Repository = (*ArtisanRepository)(nil)

// ArtisanRepository implements artisan.Repository backed by PostgreSQL.
// Documents live in a JSONB column; the blobs themselves sit in the document
// store and are only referenced here.
type ArtisanRepository struct {
	pool *pgxpool.Pool
}

// NewArtisanRepository returns an ArtisanRepository that uses the given pool.
func NewArtisanRepository(pool *pgxpool.Pool) *ArtisanRepository {
	return &ArtisanRepository{pool: pool}
}

// Create inserts a new record. Returns artisan.ErrAlreadyRegistered when the
// identity key is already taken.
func (r *ArtisanRepository) Create(ctx context.Context, a *artisan.Artisan) error {
	docs, err := json.Marshal(a.Documents)
	if err != nil {
		return fmt.Errorf("encoding documents: %w", err)
	}

	_, err = r.pool.Exec(ctx, insertArtisanSQL,
		a.ID, a.IdentityKey, a.BoutiqueName, a.Status, a.Version, docs, a.SubmittedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return artisan.ErrAlreadyRegistered
		}
		return fmt.Errorf("creating artisan: %w", err)
	}
	return nil
}

// GetByID returns a record, or artisan.ErrNotFound.
func (r *ArtisanRepository) GetByID(ctx context.Context, id string) (*artisan.Artisan, error) {
	return r.getArtisan(ctx, getArtisanByIDSQL, id)
}

// GetByIdentity returns the record owned by an identity, or artisan.ErrNotFound.
func (r *ArtisanRepository) GetByIdentity(ctx context.Context, identityKey string) (*artisan.Artisan, error) {
	return r.getArtisan(ctx, getArtisanByIdentitySQL, identityKey)
}

func (r *ArtisanRepository) getArtisan(ctx context.Context, query, arg string) (*artisan.Artisan, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting artisan: %w", err)
	}

	a, err := pgx.CollectExactlyOneRow(rows, scanArtisan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, artisan.ErrNotFound
		}
		return nil, fmt.Errorf("getting artisan: %w", err)
	}
	return &a, nil
}

// ListByStatus returns records in submission order. An empty status lists
// everything; the admin review queue passes under_review.
func (r *ArtisanRepository) ListByStatus(ctx context.Context, status artisan.Status) ([]artisan.Artisan, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if status == "" {
		rows, err = r.pool.Query(ctx, listArtisansSQL)
	} else {
		rows, err = r.pool.Query(ctx, listArtisansByStatusSQL, status)
	}
	if err != nil {
		return nil, fmt.Errorf("listing artisans: %w", err)
	}
	return pgx.CollectRows(rows, scanArtisan)
}

// TransitionStatus applies a compare-and-set status change and appends the
// audit entry in the same transaction.
func (r *ArtisanRepository) TransitionStatus(ctx context.Context, id string, fromVersion int64, change artisan.StatusChange) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, transitionArtisanSQL, id, fromVersion, change.To, change.ChangedAt)
		if err != nil {
			return fmt.Errorf("transitioning artisan %q: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, artisanExistsSQL, id).Scan(&exists); err != nil {
				return fmt.Errorf("checking artisan %q: %w", id, err)
			}
			if !exists {
				return artisan.ErrNotFound
			}
			return artisan.ErrStaleState
		}

		_, err = tx.Exec(ctx, insertStatusChangeSQL,
			id, change.From, change.To, change.Actor, change.ChangedAt)
		if err != nil {
			return fmt.Errorf("recording status change for %q: %w", id, err)
		}
		return nil
	})
}

func scanArtisan(row pgx.CollectableRow) (artisan.Artisan, error) {
	var (
		a    artisan.Artisan
		docs []byte
	)
	err := row.Scan(&a.ID, &a.IdentityKey, &a.BoutiqueName, &a.Status, &a.Version, &docs,
		&a.SubmittedAt, &a.ReviewedAt, &a.UpdatedAt)
	if err != nil {
		return artisan.Artisan{}, err
	}
	if err := json.Unmarshal(docs, &a.Documents); err != nil {
		return artisan.Artisan{}, fmt.Errorf("decoding documents: %w", err)
	}
	return a, nil
}
