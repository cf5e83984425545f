package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tiffin/internal/domain/account"
)

const (
	getProfileSQL = `SELECT account_id, display_name, vegetarian, cuisines, updated_at
		FROM profiles WHERE account_id = $1`

	saveProfileSQL = `INSERT INTO profiles (account_id, display_name, vegetarian, cuisines, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id) DO UPDATE SET
			display_name = EXCLUDED.display_name, vegetarian = EXCLUDED.vegetarian,
			cuisines = EXCLUDED.cuisines, updated_at = EXCLUDED.updated_at`

	listAddressesSQL = `SELECT id, account_id, label, full_address, created_at
		FROM addresses WHERE account_id = $1 ORDER BY created_at, id`

	// Inserts nothing once the account holds $6 addresses.
	addAddressSQL = `INSERT INTO addresses (id, account_id, label, full_address, created_at)
		SELECT $1::uuid, $2::text, $3::text, $4::text, $5::timestamptz
		WHERE (SELECT COUNT(*) FROM addresses WHERE account_id = $2::text) < $6::int`

	removeAddressSQL = `DELETE FROM addresses WHERE account_id = $1 AND id = $2`

	listFavoritesSQL = `SELECT vendor_id FROM favorites
		WHERE account_id = $1 ORDER BY created_at DESC, vendor_id`

	addFavoriteSQL = `INSERT INTO favorites (account_id, vendor_id, created_at)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`

	removeFavoriteSQL = `DELETE FROM favorites WHERE account_id = $1 AND vendor_id = $2`

	saveReviewSQL = `INSERT INTO reviews
		(id, vendor_id, account_id, author_name, rating, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (vendor_id, account_id) DO UPDATE SET
			author_name = EXCLUDED.author_name, rating = EXCLUDED.rating,
			comment = EXCLUDED.comment, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	listReviewsSQL = `SELECT id, vendor_id, account_id, author_name, rating, comment, created_at, updated_at
		FROM reviews WHERE vendor_id = $1 ORDER BY updated_at DESC LIMIT $2`

	reviewSummarySQL = `SELECT COUNT(*), COALESCE(ROUND(AVG(rating), 1), 0)
		FROM reviews WHERE vendor_id = $1`
)

var (
	_ account.ProfileRepository  = (*ProfileRepository)(nil)
	_ account.FavoriteRepository = (*FavoriteRepository)(nil)
	_ account.ReviewRepository   = (*ReviewRepository)(nil)
)

// ProfileRepository implements account.ProfileRepository backed by PostgreSQL.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository returns a ProfileRepository that uses the given pool.
func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// GetProfile returns the stored profile or account.ErrProfileNotFound.
func (r *ProfileRepository) GetProfile(ctx context.Context, accountID string) (*account.Profile, error) {
	var p account.Profile
	err := r.pool.QueryRow(ctx, getProfileSQL, accountID).Scan(
		&p.AccountID, &p.DisplayName, &p.Preferences.Vegetarian, &p.Preferences.Cuisines, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, account.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting profile %q: %w", accountID, err)
	}
	return &p, nil
}

// SaveProfile upserts the profile fields. Addresses are stored separately.
func (r *ProfileRepository) SaveProfile(ctx context.Context, p account.Profile) error {
	cuisines := p.Preferences.Cuisines
	if cuisines == nil {
		cuisines = []string{}
	}
	_, err := r.pool.Exec(ctx, saveProfileSQL,
		p.AccountID, p.DisplayName, p.Preferences.Vegetarian, cuisines, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving profile %q: %w", p.AccountID, err)
	}
	return nil
}

// ListAddresses returns the account's addresses, oldest first.
func (r *ProfileRepository) ListAddresses(ctx context.Context, accountID string) ([]account.Address, error) {
	rows, err := r.pool.Query(ctx, listAddressesSQL, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing addresses: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (account.Address, error) {
		var a account.Address
		err := row.Scan(&a.ID, &a.AccountID, &a.Label, &a.FullAddress, &a.CreatedAt)
		return a, err
	})
}

// AddAddress inserts a unless the account already holds limit addresses.
func (r *ProfileRepository) AddAddress(ctx context.Context, a account.Address, limit int) error {
	tag, err := r.pool.Exec(ctx, addAddressSQL, a.ID, a.AccountID, a.Label, a.FullAddress, a.CreatedAt, limit)
	if err != nil {
		return fmt.Errorf("adding address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrAddressLimit
	}
	return nil
}

// RemoveAddress deletes one of the account's addresses.
func (r *ProfileRepository) RemoveAddress(ctx context.Context, accountID string, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, removeAddressSQL, accountID, id)
	if err != nil {
		return fmt.Errorf("removing address %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrAddressNotFound
	}
	return nil
}

// FavoriteRepository implements account.FavoriteRepository backed by PostgreSQL.
type FavoriteRepository struct {
	pool *pgxpool.Pool
}

// NewFavoriteRepository returns a FavoriteRepository that uses the given pool.
func NewFavoriteRepository(pool *pgxpool.Pool) *FavoriteRepository {
	return &FavoriteRepository{pool: pool}
}

// ListFavorites returns favorite vendor ids, most recently added first.
func (r *FavoriteRepository) ListFavorites(ctx context.Context, accountID string) ([]int64, error) {
	rows, err := r.pool.Query(ctx, listFavoritesSQL, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing favorites: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// AddFavorite inserts the pair, keeping the original time on repeats.
func (r *FavoriteRepository) AddFavorite(ctx context.Context, accountID string, vendorID int64, at time.Time) error {
	if _, err := r.pool.Exec(ctx, addFavoriteSQL, accountID, vendorID, at); err != nil {
		return fmt.Errorf("adding favorite %d: %w", vendorID, err)
	}
	return nil
}

// RemoveFavorite deletes the pair if present.
func (r *FavoriteRepository) RemoveFavorite(ctx context.Context, accountID string, vendorID int64) error {
	if _, err := r.pool.Exec(ctx, removeFavoriteSQL, accountID, vendorID); err != nil {
		return fmt.Errorf("removing favorite %d: %w", vendorID, err)
	}
	return nil
}

// ReviewRepository implements account.ReviewRepository backed by PostgreSQL.
type ReviewRepository struct {
	pool *pgxpool.Pool
}

// NewReviewRepository returns a ReviewRepository that uses the given pool.
func NewReviewRepository(pool *pgxpool.Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// SaveReview upserts on (vendor, account) and reads back the kept id and
// creation time.
func (r *ReviewRepository) SaveReview(ctx context.Context, rv *account.Review) error {
	err := r.pool.QueryRow(ctx, saveReviewSQL,
		rv.ID, rv.VendorID, rv.AccountID, rv.AuthorName, rv.Rating, rv.Comment, rv.CreatedAt, rv.UpdatedAt,
	).Scan(&rv.ID, &rv.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving review of vendor %d: %w", rv.VendorID, err)
	}
	return nil
}

// ListReviews returns up to limit reviews of a vendor, newest first.
func (r *ReviewRepository) ListReviews(ctx context.Context, vendorID int64, limit int) ([]account.Review, error) {
	rows, err := r.pool.Query(ctx, listReviewsSQL, vendorID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing reviews: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (account.Review, error) {
		var rv account.Review
		err := row.Scan(&rv.ID, &rv.VendorID, &rv.AccountID, &rv.AuthorName,
			&rv.Rating, &rv.Comment, &rv.CreatedAt, &rv.UpdatedAt)
		return rv, err
	})
}

// Summary returns the review count and the average rating rounded to one
// decimal.
func (r *ReviewRepository) Summary(ctx context.Context, vendorID int64) (account.ReviewSummary, error) {
	var s account.ReviewSummary
	if err := r.pool.QueryRow(ctx, reviewSummarySQL, vendorID).Scan(&s.Count, &s.Average); err != nil {
		return s, fmt.Errorf("summarizing reviews of vendor %d: %w", vendorID, err)
	}
	return s, nil
}
