package catalog

import (
	"cmp"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidQuery is returned by Validate for an unknown filter or sort value.
var ErrInvalidQuery = errors.New("invalid catalog query")

// QuickFilter narrows the vendor list to a preset.
type QuickFilter string

const (
	QuickNone   QuickFilter = ""
	QuickRating QuickFilter = "rating"
	QuickFast   QuickFilter = "fast"
	QuickJain   QuickFilter = "jain"
)

// PriceBand buckets vendors by their price for two.
type PriceBand string

const (
	PriceAny  PriceBand = ""
	PriceLow  PriceBand = "low"
	PriceMid  PriceBand = "mid"
	PriceHigh PriceBand = "high"
)

// VendorSort orders the vendor list.
type VendorSort string

const (
	SortDefault    VendorSort = ""
	SortRating     VendorSort = "rating"
	SortTime       VendorSort = "time"
	SortPrice      VendorSort = "price"
	SortPopularity VendorSort = "popularity"
)

// MenuSort orders a vendor's menu.
type MenuSort string

const (
	MenuDefault   MenuSort = ""
	MenuPriceAsc  MenuSort = "price_asc"
	MenuPriceDesc MenuSort = "price_desc"
)

// Thresholds in minor units (paise).
const (
	lowPriceCeiling  = 300_00
	midPriceCeiling  = 600_00
	fastDeliveryMins = 25
)

var topRated = decimal.RequireFromString("4.5")

// VendorQuery describes the browse pipeline applied to the vendor list.
type VendorQuery struct {
	Search   string
	Quick    QuickFilter
	Category string
	Price    PriceBand
	Sort     VendorSort
}

// MenuQuery describes the filters applied to a single vendor's menu.
type MenuQuery struct {
	VegOnly bool
	Sort    MenuSort
}

// Validate rejects quick filters, price bands and sorts that are not defined.
func (q VendorQuery) Validate() error {
	if !slices.Contains([]QuickFilter{QuickNone, QuickRating, QuickFast, QuickJain}, q.Quick) {
		return errors.Wrapf(ErrInvalidQuery, "unknown quick filter %q", q.Quick)
	}
	if !slices.Contains([]PriceBand{PriceAny, PriceLow, PriceMid, PriceHigh}, q.Price) {
		return errors.Wrapf(ErrInvalidQuery, "unknown price band %q", q.Price)
	}
	if !slices.Contains([]VendorSort{SortDefault, SortRating, SortTime, SortPrice, SortPopularity}, q.Sort) {
		return errors.Wrapf(ErrInvalidQuery, "unknown sort %q", q.Sort)
	}
	return nil
}

// Validate rejects an undefined menu sort.
func (q MenuQuery) Validate() error {
	if !slices.Contains([]MenuSort{MenuDefault, MenuPriceAsc, MenuPriceDesc}, q.Sort) {
		return errors.Wrapf(ErrInvalidQuery, "unknown sort %q", q.Sort)
	}
	return nil
}

// FilterVendors applies search, quick filter, category, price band and sort,
// in that order. menus maps vendor IDs to their item names for search.
// The input slice is not modified.
func FilterVendors(vendors []Vendor, menus map[int64][]string, q VendorQuery) []Vendor {
	out := make([]Vendor, 0, len(vendors))
	needle := squash(q.Search)
	category := strings.ToLower(strings.TrimSpace(q.Category))

	for _, v := range vendors {
		if needle != "" && !matchesSearch(v, menus[v.ID], needle) {
			continue
		}
		if !matchesQuick(v, q.Quick) {
			continue
		}
		if category != "" && !matchesCategory(v, category) {
			continue
		}
		if !matchesPrice(v, q.Price) {
			continue
		}
		out = append(out, v)
	}

	switch q.Sort {
	case SortRating:
		slices.SortStableFunc(out, func(a, b Vendor) int { return b.Rating.Cmp(a.Rating) })
	case SortTime:
		slices.SortStableFunc(out, func(a, b Vendor) int { return cmp.Compare(a.DeliveryMinutes, b.DeliveryMinutes) })
	case SortPrice:
		slices.SortStableFunc(out, func(a, b Vendor) int { return cmp.Compare(a.PriceForTwo, b.PriceForTwo) })
	case SortPopularity:
		slices.SortStableFunc(out, func(a, b Vendor) int { return cmp.Compare(boolRank(b.Promoted), boolRank(a.Promoted)) })
	}
	return out
}

// FilterMenu returns the vendor's menu as it should be listed. Vegetarian
// vendors never list non-vegetarian items.
func FilterMenu(v Vendor, items []Item, q MenuQuery) []Item {
	vegOnly := q.VegOnly || v.Vegetarian
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if vegOnly && !it.Vegetarian {
			continue
		}
		out = append(out, it)
	}

	switch q.Sort {
	case MenuPriceAsc:
		slices.SortStableFunc(out, func(a, b Item) int { return cmp.Compare(a.UnitPrice, b.UnitPrice) })
	case MenuPriceDesc:
		slices.SortStableFunc(out, func(a, b Item) int { return cmp.Compare(b.UnitPrice, a.UnitPrice) })
	}
	return out
}

func matchesSearch(v Vendor, menu []string, needle string) bool {
	if strings.Contains(squash(v.Name), needle) {
		return true
	}
	for _, c := range v.Cuisines {
		if strings.Contains(squash(c), needle) {
			return true
		}
	}
	for _, name := range menu {
		if strings.Contains(squash(name), needle) {
			return true
		}
	}
	return false
}

func matchesQuick(v Vendor, f QuickFilter) bool {
	switch f {
	case QuickRating:
		return v.Rating.GreaterThanOrEqual(topRated)
	case QuickFast:
		return v.DeliveryMinutes <= fastDeliveryMins
	case QuickJain:
		return v.JainAvailable || slices.Contains(v.Cuisines, "Jain")
	default:
		return true
	}
}

func matchesCategory(v Vendor, category string) bool {
	for _, c := range v.Cuisines {
		c = strings.ToLower(c)
		if strings.Contains(c, category) || strings.Contains(category, c) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(v.Name), category)
}

func matchesPrice(v Vendor, band PriceBand) bool {
	switch band {
	case PriceLow:
		return v.PriceForTwo <= lowPriceCeiling
	case PriceMid:
		return v.PriceForTwo > lowPriceCeiling && v.PriceForTwo <= midPriceCeiling
	case PriceHigh:
		return v.PriceForTwo > midPriceCeiling
	default:
		return true
	}
}

// squash lowercases s and drops all whitespace.
func squash(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "")
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}
