// Package basket implements the in-memory order basket: line identity,
// mutations and the single-vendor exclusivity rule.
package basket

import (
	"fmt"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/tiffin/internal/domain/catalog"
)

// MaxQuantity is the most units a single line may hold.
const MaxQuantity = 99

var (
	// ErrNoConflict is returned by ResolveConflict when no cross-vendor add is pending.
	ErrNoConflict = errors.New("no pending vendor conflict")
	// ErrQuantityLimit is returned by Add when the matching line already holds
	// MaxQuantity units.
	ErrQuantityLimit = errors.Errorf("line quantity is limited to %d", MaxQuantity)
)

// InvalidItemError indicates a malformed catalog item or option selection was
// passed to Add. The basket is left untouched.
type InvalidItemError struct {
	ItemID int64
	Reason string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("invalid item %d: %s", e.ItemID, e.Reason)
}

// Line is one distinct (item, options) pairing in the basket.
type Line struct {
	ItemID    int64
	VendorID  int64
	Name      string
	UnitPrice int64
	Options   OptionSet
	Note      string
	Quantity  int
}

// Key returns the line identity.
func (l Line) Key() Key {
	return KeyOf(l.ItemID, l.Options)
}

// Amount returns UnitPrice * Quantity.
func (l Line) Amount() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// Conflict describes an add that would mix vendors. The basket is not mutated
// until the caller resolves it with ResolveConflict.
type Conflict struct {
	CurrentVendorID  int64
	IncomingVendorID int64
	Item             catalog.Item
	Options          OptionSet
	Note             string
}

// Basket is an ordered collection of lines sharing a single vendor.
// It is not safe for concurrent use.
type Basket struct {
	lines   []Line
	pending *Conflict
}

// New returns an empty basket.
func New() *Basket {
	return &Basket{}
}

// FromSnapshot rebuilds a basket from persisted state. Lines that would break
// the quantity floor or the single-vendor rule are dropped, lines sharing an
// identity are merged and quantities are clamped to MaxQuantity.
func FromSnapshot(s Snapshot) *Basket {
	b := &Basket{lines: make([]Line, 0, len(s.Lines))}
	for _, l := range s.Lines {
		if l.Quantity < 1 || (!b.IsEmpty() && l.VendorID != b.VendorID()) {
			continue
		}
		l.Options = l.Options.canonical()
		if i := b.index(l.Key()); i >= 0 {
			b.lines[i].Quantity = addQuantity(b.lines[i].Quantity, l.Quantity)
			continue
		}
		l.Quantity = min(l.Quantity, MaxQuantity)
		b.lines = append(b.lines, l)
	}
	return b
}

// Lines returns a copy of the basket lines in insertion order.
func (b *Basket) Lines() []Line {
	out := make([]Line, len(b.lines))
	for i, l := range b.lines {
		l.Options = slices.Clone(l.Options)
		out[i] = l
	}
	return out
}

// Len returns the number of distinct lines.
func (b *Basket) Len() int {
	return len(b.lines)
}

// IsEmpty reports whether the basket has no lines.
func (b *Basket) IsEmpty() bool {
	return len(b.lines) == 0
}

// VendorID returns the vendor owning every line, or 0 for an empty basket.
func (b *Basket) VendorID() int64 {
	if len(b.lines) == 0 {
		return 0
	}
	return b.lines[0].VendorID
}

// TotalQuantity returns the sum of quantities across lines.
func (b *Basket) TotalQuantity() int {
	total := 0
	for _, l := range b.lines {
		total += l.Quantity
	}
	return total
}

// Pending returns the unresolved cross-vendor conflict, if any.
func (b *Basket) Pending() *Conflict {
	return b.pending
}

// Add puts one unit of item with the given options into the basket. When the
// basket holds another vendor's lines, Add returns a Conflict and leaves the
// basket unchanged; the caller must then call ResolveConflict. Adding to a
// line at MaxQuantity fails with ErrQuantityLimit.
func (b *Basket) Add(item catalog.Item, options OptionSet, note string) (*Conflict, error) {
	if err := validateItem(item, options); err != nil {
		return nil, err
	}
	b.pending = nil

	options = options.canonical()
	if i := b.index(KeyOf(item.ID, options)); i >= 0 && b.lines[i].Quantity >= MaxQuantity {
		return nil, ErrQuantityLimit
	}
	if !b.IsEmpty() && item.VendorID != b.VendorID() {
		b.pending = &Conflict{
			CurrentVendorID:  b.VendorID(),
			IncomingVendorID: item.VendorID,
			Item:             item,
			Options:          options,
			Note:             note,
		}
		return b.pending, nil
	}

	b.insert(item, options, note)
	return nil, nil
}

// ResolveConflict settles the pending conflict. With accept the basket is
// replaced by the pending line at quantity 1; otherwise the pending add is
// dropped and the basket stays as it was. It reports whether the basket changed.
func (b *Basket) ResolveConflict(accept bool) (bool, error) {
	c := b.pending
	if c == nil {
		return false, ErrNoConflict
	}
	b.pending = nil
	if !accept {
		return false, nil
	}

	b.lines = b.lines[:0]
	b.insert(c.Item, c.Options, c.Note)
	return true, nil
}

func (b *Basket) insert(item catalog.Item, options OptionSet, note string) {
	key := KeyOf(item.ID, options)
	if i := b.index(key); i >= 0 {
		b.lines[i].Quantity++
		return
	}
	b.lines = append(b.lines, Line{
		ItemID:    item.ID,
		VendorID:  item.VendorID,
		Name:      item.Name,
		UnitPrice: item.UnitPrice,
		Options:   options,
		Note:      note,
		Quantity:  1,
	})
}

// AdjustQuantity changes the matching line's quantity by delta, removing the
// line when the result drops below 1 and stopping at MaxQuantity. Missing
// lines are ignored. It reports whether the basket changed.
func (b *Basket) AdjustQuantity(itemID int64, options OptionSet, delta int) bool {
	i := b.index(KeyOf(itemID, options))
	if i < 0 || delta == 0 {
		return false
	}
	cur := b.lines[i].Quantity
	if delta <= -cur {
		b.lines = slices.Delete(b.lines, i, i+1)
		return true
	}
	qty := addQuantity(cur, delta)
	if qty == cur {
		return false
	}
	b.lines[i].Quantity = qty
	return true
}

// addQuantity returns cur+delta clamped to MaxQuantity without overflowing.
// cur must be within [1, MaxQuantity] and delta greater than -cur.
func addQuantity(cur, delta int) int {
	if delta >= MaxQuantity-cur {
		return MaxQuantity
	}
	return cur + delta
}

// RemoveLine deletes the matching line, if present.
func (b *Basket) RemoveLine(itemID int64, options OptionSet) bool {
	i := b.index(KeyOf(itemID, options))
	if i < 0 {
		return false
	}
	b.lines = slices.Delete(b.lines, i, i+1)
	return true
}

// UpdateNote replaces the free-text note on the matching line, if present.
func (b *Basket) UpdateNote(itemID int64, options OptionSet, note string) bool {
	i := b.index(KeyOf(itemID, options))
	if i < 0 {
		return false
	}
	b.lines[i].Note = note
	return true
}

// Clear empties the basket and drops any pending conflict.
func (b *Basket) Clear() {
	b.lines = nil
	b.pending = nil
}

// Snapshot returns an immutable copy of the basket contents.
func (b *Basket) Snapshot() Snapshot {
	return Snapshot{Lines: b.Lines()}
}

func (b *Basket) index(key Key) int {
	return slices.IndexFunc(b.lines, func(l Line) bool { return l.Key() == key })
}

func validateItem(item catalog.Item, options OptionSet) error {
	if item.ID == 0 {
		return &InvalidItemError{Reason: "missing id"}
	}
	if item.UnitPrice <= 0 {
		return &InvalidItemError{ItemID: item.ID, Reason: "missing price"}
	}
	for _, opt := range options {
		if !slices.Contains(item.Options, opt) {
			return &InvalidItemError{ItemID: item.ID, Reason: fmt.Sprintf("option %q not offered", opt)}
		}
	}
	return nil
}
