package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tiffin/internal/domain/catalog"
)

const (
	vendorColumns = `id, name, cuisines, rating, delivery_minutes, price_for_two,
		offer, promoted, vegetarian, jain_available, image`

	itemColumns = `id, vendor_id, name, description, unit_price, vegetarian, options, image`

	listVendorsSQL = `SELECT ` + vendorColumns + ` FROM vendors ORDER BY id`

	getVendorSQL = `SELECT ` + vendorColumns + ` FROM vendors WHERE id = $1`

	listMenuSQL = `SELECT ` + itemColumns + ` FROM menu_items WHERE vendor_id = $1 ORDER BY id`

	lookupItemSQL = `SELECT ` + itemColumns + ` FROM menu_items WHERE id = $1`

	menuNamesSQL = `SELECT vendor_id, name FROM menu_items ORDER BY vendor_id, id`

	upsertVendorSQL = `INSERT INTO vendors (` + vendorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, cuisines = EXCLUDED.cuisines, rating = EXCLUDED.rating,
			delivery_minutes = EXCLUDED.delivery_minutes, price_for_two = EXCLUDED.price_for_two,
			offer = EXCLUDED.offer, promoted = EXCLUDED.promoted, vegetarian = EXCLUDED.vegetarian,
			jain_available = EXCLUDED.jain_available, image = EXCLUDED.image`

	upsertItemSQL = `INSERT INTO menu_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			vendor_id = EXCLUDED.vendor_id, name = EXCLUDED.name, description = EXCLUDED.description,
			unit_price = EXCLUDED.unit_price, vegetarian = EXCLUDED.vegetarian,
			options = EXCLUDED.options, image = EXCLUDED.image`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// ListVendors returns all vendors ordered by id.
func (r *CatalogRepository) ListVendors(ctx context.Context) ([]catalog.Vendor, error) {
	rows, err := r.pool.Query(ctx, listVendorsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing vendors: %w", err)
	}
	return pgx.CollectRows(rows, scanVendor)
}

// GetVendor returns a single vendor or catalog.ErrNotFound.
func (r *CatalogRepository) GetVendor(ctx context.Context, id int64) (*catalog.Vendor, error) {
	rows, err := r.pool.Query(ctx, getVendorSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting vendor %d: %w", id, err)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVendor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting vendor %d: %w", id, err)
	}
	return &v, nil
}

// ListMenu returns a vendor's menu items ordered by id.
func (r *CatalogRepository) ListMenu(ctx context.Context, vendorID int64) ([]catalog.Item, error) {
	rows, err := r.pool.Query(ctx, listMenuSQL, vendorID)
	if err != nil {
		return nil, fmt.Errorf("listing menu of vendor %d: %w", vendorID, err)
	}
	return pgx.CollectRows(rows, scanItem)
}

// LookupItem returns a menu item or a *catalog.ItemNotFoundError.
func (r *CatalogRepository) LookupItem(ctx context.Context, id int64) (*catalog.Item, error) {
	rows, err := r.pool.Query(ctx, lookupItemSQL, id)
	if err != nil {
		return nil, fmt.Errorf("looking up item %d: %w", id, err)
	}

	it, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &catalog.ItemNotFoundError{ItemID: id}
		}
		return nil, fmt.Errorf("looking up item %d: %w", id, err)
	}
	return &it, nil
}

// MenuNames returns menu item names grouped by vendor id.
func (r *CatalogRepository) MenuNames(ctx context.Context) (map[int64][]string, error) {
	rows, err := r.pool.Query(ctx, menuNamesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing menu names: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]string)
	for rows.Next() {
		var (
			vendorID int64
			name     string
		)
		if err := rows.Scan(&vendorID, &name); err != nil {
			return nil, fmt.Errorf("scanning menu name: %w", err)
		}
		out[vendorID] = append(out[vendorID], name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing menu names: %w", err)
	}
	return out, nil
}

// UpsertVendor inserts or replaces a vendor.
func (r *CatalogRepository) UpsertVendor(ctx context.Context, v catalog.Vendor) error {
	_, err := r.pool.Exec(ctx, upsertVendorSQL,
		v.ID, v.Name, nonNil(v.Cuisines), v.Rating, v.DeliveryMinutes, v.PriceForTwo,
		v.Offer, v.Promoted, v.Vegetarian, v.JainAvailable, v.Image,
	)
	if err != nil {
		return fmt.Errorf("upserting vendor %d: %w", v.ID, err)
	}
	return nil
}

// UpsertItem inserts or replaces a menu item.
func (r *CatalogRepository) UpsertItem(ctx context.Context, it catalog.Item) error {
	_, err := r.pool.Exec(ctx, upsertItemSQL,
		it.ID, it.VendorID, it.Name, it.Description, it.UnitPrice, it.Vegetarian, nonNil(it.Options), it.Image,
	)
	if err != nil {
		return fmt.Errorf("upserting item %d: %w", it.ID, err)
	}
	return nil
}

func scanVendor(row pgx.CollectableRow) (catalog.Vendor, error) {
	var v catalog.Vendor
	err := row.Scan(
		&v.ID, &v.Name, &v.Cuisines, &v.Rating, &v.DeliveryMinutes, &v.PriceForTwo,
		&v.Offer, &v.Promoted, &v.Vegetarian, &v.JainAvailable, &v.Image,
	)
	return v, err
}

func scanItem(row pgx.CollectableRow) (catalog.Item, error) {
	var it catalog.Item
	err := row.Scan(
		&it.ID, &it.VendorID, &it.Name, &it.Description, &it.UnitPrice,
		&it.Vegetarian, &it.Options, &it.Image,
	)
	return it, err
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
