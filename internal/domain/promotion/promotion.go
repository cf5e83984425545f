// Package promotion evaluates promotion codes against a basket quote.
package promotion

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported promotion strategies.
type Kind string

const (
	// KindPercentageCapped takes a percentage of the subtotal, capped at Cap.
	KindPercentageCapped Kind = "percentage_capped"
	// KindFlatPercentage takes an uncapped percentage of the subtotal.
	KindFlatPercentage Kind = "flat_percentage"
	// KindFreeDelivery waives the delivery fee above MinSubtotal.
	KindFreeDelivery Kind = "free_delivery"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPercentageCapped, KindFlatPercentage, KindFreeDelivery:
		return true
	default:
		return false
	}
}

var (
	// ErrUnknownCode is returned by Repository.FindByCode when no rule matches.
	ErrUnknownCode = errors.New("unknown promotion code")
	// ErrAlreadyRedeemed is returned when a single-use claim loses to an
	// earlier redemption by the same account.
	ErrAlreadyRedeemed = errors.New("promotion already redeemed")
)

// Rule defines a promotion's discount behaviour and eligibility constraints.
// Percentage is expressed out of 100.
type Rule struct {
	Code                string
	Kind                Kind
	Percentage          decimal.Decimal
	Cap                 int64
	MinSubtotal         int64
	SingleUsePerAccount bool
	Description         string
	ValidFrom           *time.Time
	ValidUntil          *time.Time
}

// State is the lifecycle of one code application attempt.
type State int

const (
	Unapplied State = iota
	Validating
	Applied
	Rejected
)

func (s State) String() string {
	switch s {
	case Unapplied:
		return "unapplied"
	case Validating:
		return "validating"
	case Applied:
		return "applied"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// CanTransition reports whether an attempt may move from s to next.
func (s State) CanTransition(next State) bool {
	switch s {
	case Unapplied:
		return next == Validating
	case Validating:
		return next == Applied || next == Rejected
	default:
		return false
	}
}

// Quote is the part of a price breakdown a promotion depends on.
type Quote struct {
	Subtotal    int64
	DeliveryFee int64
}

// Result is the outcome of evaluating a code. Rejections are results, not errors.
type Result struct {
	Code    string
	State   State
	Amount  int64
	Message string
	Rule    *Rule
}

// Active reports whether the result carries a discount.
func (r Result) Active() bool {
	return r.State == Applied
}

// Redemption is one account's use of a single-use code.
type Redemption struct {
	AccountID string
	Code      string
}

// Claim returns the redemption that placing an order with r must record for
// accountID. Guests, reusable rules and inactive results claim nothing.
func (r Result) Claim(accountID string) (Redemption, bool) {
	if !r.Active() || r.Rule == nil || !r.Rule.SingleUsePerAccount || accountID == "" {
		return Redemption{}, false
	}
	return Redemption{AccountID: accountID, Code: r.Code}, true
}

// Repository provides lookup of promotion rules by code.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
}

// UsageHistory reports single-use redemptions per account. Redemptions are
// recorded together with the order that claims them.
type UsageHistory interface {
	HasRedeemed(ctx context.Context, accountID, code string) (bool, error)
}

// NormalizeCode trims and upper-cases a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
