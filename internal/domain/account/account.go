// Package account holds per-account data: the profile with its saved
// delivery addresses, favorite vendors and vendor reviews.
package account

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Limits on account data.
const (
	MaxDisplayName = 60
	MaxCuisines    = 10
	MaxAddresses   = 10
	MaxLabel       = 40
	MaxAddress     = 300
	MaxComment     = 1000
	MinRating      = 1
	MaxRating      = 5
)

// Sentinel errors for account operations.
var (
	ErrAccountRequired  = errors.New("account required")
	ErrAddressNotFound  = errors.New("address not found")
	ErrAddressLimit     = errors.Errorf("at most %d addresses can be saved", MaxAddresses)
	// ErrProfileNotFound is returned by ProfileRepository.GetProfile for
	// accounts that never saved a profile.
	ErrProfileNotFound = errors.New("profile not found")
)

// ValidationError rejects a field of a profile, address or review.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Preferences are the account's browsing toggles.
type Preferences struct {
	Vegetarian bool
	Cuisines   []string
}

// Address is a saved delivery address.
type Address struct {
	ID          uuid.UUID
	AccountID   string
	Label       string
	FullAddress string
	CreatedAt   time.Time
}

// Profile is the account's display data.
type Profile struct {
	AccountID   string
	DisplayName string
	Preferences Preferences
	Addresses   []Address
	UpdatedAt   time.Time
}

// Review is one account's rating of a vendor. An account keeps at most one
// review per vendor; posting again replaces it.
type Review struct {
	ID         uuid.UUID
	VendorID   int64
	AccountID  string
	AuthorName string
	Rating     int
	Comment    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ReviewSummary aggregates the reviews of a vendor.
type ReviewSummary struct {
	Count   int
	Average decimal.Decimal
}

// ProfileRepository persists profiles and their addresses.
type ProfileRepository interface {
	// GetProfile returns the stored profile without addresses, or
	// ErrProfileNotFound.
	GetProfile(ctx context.Context, accountID string) (*Profile, error)
	SaveProfile(ctx context.Context, p Profile) error
	// ListAddresses returns the account's addresses, oldest first.
	ListAddresses(ctx context.Context, accountID string) ([]Address, error)
	// AddAddress stores a unless the account already has limit addresses,
	// in which case ErrAddressLimit is returned.
	AddAddress(ctx context.Context, a Address, limit int) error
	// RemoveAddress returns ErrAddressNotFound when the account has no
	// address with that id.
	RemoveAddress(ctx context.Context, accountID string, id uuid.UUID) error
}

// FavoriteRepository persists favorite vendors. Add and Remove are idempotent.
type FavoriteRepository interface {
	// ListFavorites returns vendor ids, most recently added first.
	ListFavorites(ctx context.Context, accountID string) ([]int64, error)
	AddFavorite(ctx context.Context, accountID string, vendorID int64, at time.Time) error
	RemoveFavorite(ctx context.Context, accountID string, vendorID int64) error
}

// ReviewRepository persists vendor reviews.
type ReviewRepository interface {
	// SaveReview inserts r or replaces the account's earlier review of the
	// same vendor. r.ID and r.CreatedAt are updated to the stored values.
	SaveReview(ctx context.Context, r *Review) error
	// ListReviews returns up to limit reviews of a vendor, newest first.
	ListReviews(ctx context.Context, vendorID int64, limit int) ([]Review, error)
	Summary(ctx context.Context, vendorID int64) (ReviewSummary, error)
}
