package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/tiffin/internal/domain/catalog"
)

// ListVendors returns the vendors matching the browse query parameters.
func (h *Handler) ListVendors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := r.URL.Query()
	q := catalog.VendorQuery{
		Search:   params.Get("search"),
		Quick:    catalog.QuickFilter(params.Get("quick")),
		Category: params.Get("category"),
		Price:    catalog.PriceBand(params.Get("price")),
		Sort:     catalog.VendorSort(params.Get("sort")),
	}
	if err := q.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	vendors, err := h.catalog.ListVendors(ctx)
	if err != nil {
		writeError(w, r, errors.Wrap(err, "list vendors"))
		return
	}
	var menus map[int64][]string
	if q.Search != "" {
		if menus, err = h.catalog.MenuNames(ctx); err != nil {
			writeError(w, r, errors.Wrap(err, "menu names"))
			return
		}
	}

	var e jx.Encoder
	e.ArrStart()
	for _, v := range catalog.FilterVendors(vendors, menus, q) {
		h.encodeVendor(&e, v)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}

// GetVendor returns a single vendor.
func (h *Handler) GetVendor(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.catalog.GetVendor(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	h.encodeVendor(&e, *v)
	writeJSON(w, http.StatusOK, &e)
}

// GetMenu returns a vendor's menu filtered by ?veg=true and sorted by ?sort=.
func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := catalog.MenuQuery{Sort: catalog.MenuSort(r.URL.Query().Get("sort"))}
	if raw := r.URL.Query().Get("veg"); raw != "" {
		if q.VegOnly, err = strconv.ParseBool(raw); err != nil {
			writeError(w, r, badRequest("invalid veg"))
			return
		}
	}
	if err := q.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	v, err := h.catalog.GetVendor(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := h.catalog.ListMenu(ctx, id)
	if err != nil {
		writeError(w, r, errors.Wrap(err, "list menu"))
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for _, it := range catalog.FilterMenu(*v, items, q) {
		h.encodeItem(&e, it)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}

func pathInt(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid " + name)
	}
	return id, nil
}
