package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Evaluator validates codes against a quote and the account's usage history.
type Evaluator struct {
	rules   Repository
	history UsageHistory
	now     func() time.Time
}

// NewEvaluator creates an Evaluator. history may be nil, in which case no
// account is ever considered to have redeemed a code.
func NewEvaluator(rules Repository, history UsageHistory) *Evaluator {
	return &Evaluator{rules: rules, history: history, now: time.Now}
}

// Evaluate looks up code and applies it to q. An empty accountID is a guest.
// The returned error is reserved for infrastructure failures while looking up
// the rule; every business rejection is reported through Result.
func (e *Evaluator) Evaluate(ctx context.Context, code string, q Quote, accountID string) (Result, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Result{State: Unapplied}, nil
	}

	rule, err := e.rules.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrUnknownCode) {
			return settle(Result{Code: code, State: Rejected, Message: MsgInvalidCode})
		}
		return Result{Code: code, State: Unapplied}, errors.Wrap(err, "lookup promotion")
	}

	now := e.now()
	if (rule.ValidFrom != nil && now.Before(*rule.ValidFrom)) ||
		(rule.ValidUntil != nil && now.After(*rule.ValidUntil)) {
		return settle(reject(Result{Code: rule.Code, Rule: rule}, MsgExpired))
	}

	return settle(Apply(rule, q, e.redeemed(ctx, rule, accountID)))
}

// settle finishes a Validating attempt with r.
func settle(r Result) (Result, error) {
	if !Validating.CanTransition(r.State) {
		return Result{Code: r.Code, State: Unapplied}, errors.Errorf("promotion %s: cannot settle as %s", r.Code, r.State)
	}
	return r, nil
}

// redeemed treats lookup failures as no prior usage.
func (e *Evaluator) redeemed(ctx context.Context, rule *Rule, accountID string) bool {
	if !rule.SingleUsePerAccount || accountID == "" || e.history == nil {
		return false
	}
	used, err := e.history.HasRedeemed(ctx, accountID, rule.Code)
	if err != nil {
		zctx.From(ctx).Warn("Redemption lookup failed",
			zap.String("code", rule.Code),
			zap.Error(err),
		)
		return false
	}
	return used
}
