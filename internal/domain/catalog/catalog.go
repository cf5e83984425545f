// Package catalog holds the read-only vendor and menu reference data that
// baskets are built from.
package catalog

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested vendor or menu item does not exist.
var ErrNotFound = errors.New("not found")

// Item is a purchasable menu entry. Prices are integer minor-currency units.
type Item struct {
	ID          int64
	VendorID    int64
	Name        string
	Description string
	UnitPrice   int64
	Vegetarian  bool
	Options     []string
	Image       string
}

// Vendor is a restaurant owning a menu.
type Vendor struct {
	ID              int64
	Name            string
	Cuisines        []string
	Rating          decimal.Decimal
	DeliveryMinutes int
	PriceForTwo     int64
	Offer           string
	Promoted        bool
	Vegetarian      bool
	JainAvailable   bool
	Image           string
}

// ItemNotFoundError indicates a menu item lookup failed.
type ItemNotFoundError struct {
	ItemID int64
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("menu item %d not found", e.ItemID)
}

// Is reports ItemNotFoundError as ErrNotFound.
func (e *ItemNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Repository defines read operations for vendors and menus.
type Repository interface {
	ListVendors(ctx context.Context) ([]Vendor, error)
	GetVendor(ctx context.Context, id int64) (*Vendor, error)
	ListMenu(ctx context.Context, vendorID int64) ([]Item, error)
	LookupItem(ctx context.Context, id int64) (*Item, error)
	// MenuNames returns item names grouped by vendor, used by vendor search.
	MenuNames(ctx context.Context) (map[int64][]string, error)
}
