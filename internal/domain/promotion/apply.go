package promotion

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/tiffin/internal/domain/pricing"
)

// Rejection messages.
const (
	MsgInvalidCode = "invalid code"
	MsgEmptyBasket = "empty basket"
	MsgAlreadyUsed = "already used"
	MsgExpired     = "code expired"
)

var hundred = decimal.NewFromInt(100)

// Apply computes the discount of rule for quote. redeemed reports whether the
// account has already used a single-use rule. The amount is clamped to
// [0, Subtotal+DeliveryFee].
func Apply(rule *Rule, q Quote, redeemed bool) Result {
	r := Result{Code: rule.Code, Rule: rule}

	switch rule.Kind {
	case KindPercentageCapped:
		if q.Subtotal <= 0 {
			return reject(r, MsgEmptyBasket)
		}
		amount := percentOf(q.Subtotal, rule.Percentage)
		if rule.Cap > 0 {
			amount = min(amount, rule.Cap)
		}
		r.Amount = amount
		r.Message = fmt.Sprintf("coupon applied, you saved %d", amount)
	case KindFlatPercentage:
		if rule.SingleUsePerAccount && redeemed {
			return reject(r, MsgAlreadyUsed)
		}
		r.Amount = percentOf(q.Subtotal, rule.Percentage)
		r.Message = fmt.Sprintf("coupon applied, you saved %d", r.Amount)
	case KindFreeDelivery:
		if q.Subtotal <= rule.MinSubtotal {
			shortfall := rule.MinSubtotal - q.Subtotal + 1
			return reject(r, fmt.Sprintf("add items worth %d more to avail free delivery", shortfall))
		}
		r.Amount = q.DeliveryFee
		r.Message = "free delivery applied"
	default:
		return reject(r, MsgInvalidCode)
	}

	r.State = Applied
	r.Amount = clamp(r.Amount, 0, q.Subtotal+q.DeliveryFee)
	return r
}

func reject(r Result, msg string) Result {
	r.State = Rejected
	r.Amount = 0
	r.Message = msg
	return r
}

func percentOf(amount int64, pct decimal.Decimal) int64 {
	return pricing.RoundHalfUp(decimal.NewFromInt(amount).Mul(pct).Div(hundred))
}

func clamp(v, lo, hi int64) int64 {
	return max(lo, min(v, hi))
}
