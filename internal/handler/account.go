package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/tiffin/internal/domain/account"
)

// signedIn resolves the caller's account and rejects guests.
func (h *Handler) signedIn(r *http.Request) (string, error) {
	accountID, err := h.account(r)
	if err != nil {
		return "", err
	}
	if accountID == "" {
		return "", account.ErrAccountRequired
	}
	return accountID, nil
}

// GetProfile returns the caller's profile with saved addresses.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.signedIn(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.accounts.Profile(r.Context(), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeProfile(&e, p)
	writeJSON(w, http.StatusOK, &e)
}

// UpdateProfile changes the fields present in
// {"displayName", "preferences": {"vegetarian", "cuisines"}}.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.signedIn(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var upd account.ProfileUpdate
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "displayName":
			name, err := d.Str()
			upd.DisplayName = &name
			return err
		case "preferences":
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "vegetarian":
					veg, err := d.Bool()
					upd.Vegetarian = &veg
					return err
				case "cuisines":
					upd.Cuisines = []string{}
					return d.Arr(func(d *jx.Decoder) error {
						c, err := d.Str()
						upd.Cuisines = append(upd.Cuisines, c)
						return err
					})
				default:
					return d.Skip()
				}
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.accounts.UpdateProfile(r.Context(), accountID, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeProfile(&e, p)
	writeJSON(w, http.StatusOK, &e)
}

// AddAddress saves {"label", "address"} to the caller's profile.
func (h *Handler) AddAddress(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.signedIn(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var label, full string
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "label":
			label, err = d.Str()
		case "address":
			full, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	a, err := h.accounts.AddAddress(r.Context(), accountID, label, full)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeAddress(&e, *a)
	writeJSON(w, http.StatusCreated, &e)
}

// RemoveAddress deletes a saved address.
func (h *Handler) RemoveAddress(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, badRequest("invalid address id"))
		return
	}
	accountID, err := h.signedIn(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.accounts.RemoveAddress(r.Context(), accountID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFavorites returns the caller's favorite vendors.
func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.signedIn(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vendors, err := h.accounts.Favorites(r.Context(), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for _, v := range vendors {
		h.encodeVendor(&e, v)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}

// AddFavorite marks the vendor in the path as a favorite.
func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	h.favoriteAction(w, r, h.accounts.AddFavorite)
}

// RemoveFavorite unmarks the vendor in the path.
func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	h.favoriteAction(w, r, h.accounts.RemoveFavorite)
}

func (h *Handler) favoriteAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, accountID string, vendorID int64) error) {
	vendorID, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	accountID, err := h.signedIn(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := action(r.Context(), accountID, vendorID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListReviews returns a vendor's rating summary and newest reviews.
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request) {
	vendorID, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum, reviews, err := h.accounts.Reviews(r.Context(), vendorID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("count")
	e.Int(sum.Count)
	e.FieldStart("average")
	e.Raw([]byte(sum.Average.StringFixed(1)))
	e.FieldStart("reviews")
	e.ArrStart()
	for _, rv := range reviews {
		encodeReview(&e, rv)
	}
	e.ArrEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// PostReview rates the vendor in the path: {"rating", "comment"}.
func (h *Handler) PostReview(w http.ResponseWriter, r *http.Request) {
	vendorID, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	accountID, err := h.signedIn(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var (
		rating  int
		comment string
	)
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "rating":
			rating, err = d.Int()
		case "comment":
			comment, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	rv, err := h.accounts.PostReview(r.Context(), accountID, vendorID, rating, comment)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeReview(&e, *rv)
	writeJSON(w, http.StatusCreated, &e)
}

func encodeAddress(e *jx.Encoder, a account.Address) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(a.ID.String())
	e.FieldStart("label")
	e.Str(a.Label)
	e.FieldStart("address")
	e.Str(a.FullAddress)
	e.FieldStart("createdAt")
	e.Str(a.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

func encodeProfile(e *jx.Encoder, p *account.Profile) {
	e.ObjStart()
	e.FieldStart("accountId")
	e.Str(p.AccountID)
	e.FieldStart("displayName")
	e.Str(p.DisplayName)
	e.FieldStart("preferences")
	e.ObjStart()
	e.FieldStart("vegetarian")
	e.Bool(p.Preferences.Vegetarian)
	e.FieldStart("cuisines")
	encodeStrings(e, p.Preferences.Cuisines)
	e.ObjEnd()
	e.FieldStart("addresses")
	e.ArrStart()
	for _, a := range p.Addresses {
		encodeAddress(e, a)
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeReview(e *jx.Encoder, rv account.Review) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(rv.ID.String())
	e.FieldStart("vendorId")
	e.Int64(rv.VendorID)
	e.FieldStart("author")
	e.Str(rv.AuthorName)
	e.FieldStart("rating")
	e.Int(rv.Rating)
	e.FieldStart("comment")
	e.Str(rv.Comment)
	e.FieldStart("createdAt")
	e.Str(rv.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("updatedAt")
	e.Str(rv.UpdatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}
