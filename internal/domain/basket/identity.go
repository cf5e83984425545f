package basket

import (
	"slices"
	"strings"
)

// optionDelimiter separates normalized option labels. It is a control
// character so it cannot collide with a printable label.
const optionDelimiter = "\x1f"

// OptionSet is the set of option labels chosen for one basket line. Equality
// ignores order and duplicates; a nil set equals the empty set.
type OptionSet []string

// Normalize returns the canonical string form of the set: labels sorted
// lexicographically, deduplicated and joined with a fixed delimiter.
func (s OptionSet) Normalize() string {
	return strings.Join(s.canonical(), optionDelimiter)
}

// Equal reports whether both sets contain the same labels.
func (s OptionSet) Equal(other OptionSet) bool {
	return s.Normalize() == other.Normalize()
}

func (s OptionSet) canonical() OptionSet {
	if len(s) == 0 {
		return nil
	}
	out := slices.Clone(s)
	slices.Sort(out)
	return slices.Compact(out)
}

// Key identifies a basket line: one catalog item with one option set.
type Key struct {
	ItemID  int64
	Options string
}

// KeyOf returns the identity of the (item, options) pairing.
func KeyOf(itemID int64, options OptionSet) Key {
	return Key{ItemID: itemID, Options: options.Normalize()}
}

// SameLine reports whether two (item, options) pairings denote the same line.
func SameLine(aID int64, aOpts OptionSet, bID int64, bOpts OptionSet) bool {
	return KeyOf(aID, aOpts) == KeyOf(bID, bOpts)
}
