package account

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/tiffin/internal/domain/catalog"
)

// defaultReviewLimit bounds Reviews results.
const defaultReviewLimit = 50

// Vendors looks up vendors by id. It is implemented by catalog.Repository.
type Vendors interface {
	GetVendor(ctx context.Context, id int64) (*catalog.Vendor, error)
}

// ProfileUpdate is a partial profile change. Nil fields are left unchanged;
// a non-nil empty Cuisines clears the list.
type ProfileUpdate struct {
	DisplayName *string
	Vegetarian  *bool
	Cuisines    []string
}

// Service manages profiles, addresses, favorites and reviews.
type Service struct {
	profiles  ProfileRepository
	favorites FavoriteRepository
	reviews   ReviewRepository
	vendors   Vendors
	now       func() time.Time
}

// NewService creates an account Service.
func NewService(profiles ProfileRepository, favorites FavoriteRepository, reviews ReviewRepository, vendors Vendors) *Service {
	return &Service{
		profiles:  profiles,
		favorites: favorites,
		reviews:   reviews,
		vendors:   vendors,
		now:       time.Now,
	}
}

// Profile returns the account's profile with its addresses. Accounts that
// never saved one get an empty profile.
func (s *Service) Profile(ctx context.Context, accountID string) (*Profile, error) {
	if accountID == "" {
		return nil, ErrAccountRequired
	}
	p, err := s.profiles.GetProfile(ctx, accountID)
	switch {
	case errors.Is(err, ErrProfileNotFound):
		p = &Profile{AccountID: accountID}
	case err != nil:
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if p.Addresses, err = s.profiles.ListAddresses(ctx, accountID); err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	return p, nil
}

// UpdateProfile applies upd and returns the stored profile.
func (s *Service) UpdateProfile(ctx context.Context, accountID string, upd ProfileUpdate) (*Profile, error) {
	p, err := s.Profile(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if upd.DisplayName != nil {
		name := strings.TrimSpace(*upd.DisplayName)
		if utf8.RuneCountInString(name) > MaxDisplayName {
			return nil, &ValidationError{Field: "displayName", Reason: fmt.Sprintf("at most %d characters", MaxDisplayName)}
		}
		p.DisplayName = name
	}
	if upd.Vegetarian != nil {
		p.Preferences.Vegetarian = *upd.Vegetarian
	}
	if upd.Cuisines != nil {
		cuisines, err := normalizeCuisines(upd.Cuisines)
		if err != nil {
			return nil, err
		}
		p.Preferences.Cuisines = cuisines
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.profiles.SaveProfile(ctx, *p); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return p, nil
}

// normalizeCuisines trims entries and drops blanks and case-insensitive
// duplicates, keeping the first spelling.
func normalizeCuisines(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		key := strings.ToLower(c)
		if c == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	if len(out) > MaxCuisines {
		return nil, &ValidationError{Field: "cuisines", Reason: fmt.Sprintf("at most %d entries", MaxCuisines)}
	}
	return out, nil
}

// AddAddress saves a new delivery address.
func (s *Service) AddAddress(ctx context.Context, accountID, label, fullAddress string) (*Address, error) {
	if accountID == "" {
		return nil, ErrAccountRequired
	}
	label = strings.TrimSpace(label)
	fullAddress = strings.TrimSpace(fullAddress)
	switch {
	case label == "":
		return nil, &ValidationError{Field: "label", Reason: "required"}
	case utf8.RuneCountInString(label) > MaxLabel:
		return nil, &ValidationError{Field: "label", Reason: fmt.Sprintf("at most %d characters", MaxLabel)}
	case fullAddress == "":
		return nil, &ValidationError{Field: "address", Reason: "required"}
	case utf8.RuneCountInString(fullAddress) > MaxAddress:
		return nil, &ValidationError{Field: "address", Reason: fmt.Sprintf("at most %d characters", MaxAddress)}
	}

	a := Address{
		ID:          uuid.New(),
		AccountID:   accountID,
		Label:       label,
		FullAddress: fullAddress,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.profiles.AddAddress(ctx, a, MaxAddresses); err != nil {
		if errors.Is(err, ErrAddressLimit) {
			return nil, err
		}
		return nil, fmt.Errorf("add address: %w", err)
	}
	return &a, nil
}

// RemoveAddress deletes a saved address.
func (s *Service) RemoveAddress(ctx context.Context, accountID string, id uuid.UUID) error {
	if accountID == "" {
		return ErrAccountRequired
	}
	if err := s.profiles.RemoveAddress(ctx, accountID, id); err != nil {
		if errors.Is(err, ErrAddressNotFound) {
			return err
		}
		return fmt.Errorf("remove address: %w", err)
	}
	return nil
}

// Address returns one of the account's saved addresses.
func (s *Service) Address(ctx context.Context, accountID string, id uuid.UUID) (*Address, error) {
	if accountID == "" {
		return nil, ErrAccountRequired
	}
	addrs, err := s.profiles.ListAddresses(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	for _, a := range addrs {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, ErrAddressNotFound
}

// Favorites returns the account's favorite vendors, most recently added
// first. Vendors removed from the catalog are skipped.
func (s *Service) Favorites(ctx context.Context, accountID string) ([]catalog.Vendor, error) {
	if accountID == "" {
		return nil, ErrAccountRequired
	}
	ids, err := s.favorites.ListFavorites(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	out := make([]catalog.Vendor, 0, len(ids))
	for _, id := range ids {
		v, err := s.vendors.GetVendor(ctx, id)
		if errors.Is(err, catalog.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get vendor %d: %w", id, err)
		}
		out = append(out, *v)
	}
	return out, nil
}

// AddFavorite marks a vendor as a favorite.
func (s *Service) AddFavorite(ctx context.Context, accountID string, vendorID int64) error {
	if accountID == "" {
		return ErrAccountRequired
	}
	if _, err := s.vendors.GetVendor(ctx, vendorID); err != nil {
		return err
	}
	if err := s.favorites.AddFavorite(ctx, accountID, vendorID, s.now().UTC()); err != nil {
		return fmt.Errorf("add favorite: %w", err)
	}
	return nil
}

// RemoveFavorite unmarks a vendor. Removing a vendor that is not a favorite
// succeeds.
func (s *Service) RemoveFavorite(ctx context.Context, accountID string, vendorID int64) error {
	if accountID == "" {
		return ErrAccountRequired
	}
	if err := s.favorites.RemoveFavorite(ctx, accountID, vendorID); err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}
	return nil
}

// PostReview rates a vendor, replacing the account's earlier review of it.
// The author name is the profile display name, or the account id when the
// profile has none.
func (s *Service) PostReview(ctx context.Context, accountID string, vendorID int64, rating int, comment string) (*Review, error) {
	if accountID == "" {
		return nil, ErrAccountRequired
	}
	comment = strings.TrimSpace(comment)
	switch {
	case rating < MinRating || rating > MaxRating:
		return nil, &ValidationError{Field: "rating", Reason: fmt.Sprintf("must be between %d and %d", MinRating, MaxRating)}
	case comment == "":
		return nil, &ValidationError{Field: "comment", Reason: "required"}
	case utf8.RuneCountInString(comment) > MaxComment:
		return nil, &ValidationError{Field: "comment", Reason: fmt.Sprintf("at most %d characters", MaxComment)}
	}
	if _, err := s.vendors.GetVendor(ctx, vendorID); err != nil {
		return nil, err
	}

	author := accountID
	p, err := s.profiles.GetProfile(ctx, accountID)
	switch {
	case err == nil && p.DisplayName != "":
		author = p.DisplayName
	case err != nil && !errors.Is(err, ErrProfileNotFound):
		return nil, fmt.Errorf("get profile: %w", err)
	}

	now := s.now().UTC()
	r := &Review{
		ID:         uuid.New(),
		VendorID:   vendorID,
		AccountID:  accountID,
		AuthorName: author,
		Rating:     rating,
		Comment:    comment,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.reviews.SaveReview(ctx, r); err != nil {
		return nil, fmt.Errorf("save review: %w", err)
	}
	zctx.From(ctx).Info("Review posted",
		zap.String("account_id", accountID),
		zap.Int64("vendor_id", vendorID),
		zap.Int("rating", rating),
	)
	return r, nil
}

// Reviews returns a vendor's review summary and its newest reviews.
func (s *Service) Reviews(ctx context.Context, vendorID int64) (ReviewSummary, []Review, error) {
	if _, err := s.vendors.GetVendor(ctx, vendorID); err != nil {
		return ReviewSummary{}, nil, err
	}
	sum, err := s.reviews.Summary(ctx, vendorID)
	if err != nil {
		return ReviewSummary{}, nil, fmt.Errorf("review summary: %w", err)
	}
	list, err := s.reviews.ListReviews(ctx, vendorID, defaultReviewLimit)
	if err != nil {
		return ReviewSummary{}, nil, fmt.Errorf("list reviews: %w", err)
	}
	return sum, list, nil
}
