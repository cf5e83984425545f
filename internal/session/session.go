// Package session owns one basket per client session and serializes every
// mutation on it.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/tiffin/internal/domain/basket"
	"github.com/xenking/tiffin/internal/domain/catalog"
	"github.com/xenking/tiffin/internal/domain/pricing"
	"github.com/xenking/tiffin/internal/domain/promotion"
)

// ErrEmptyBasket is returned by Checkout when there is nothing to order.
var ErrEmptyBasket = errors.New("basket is empty")

var errEvicted = errors.New("session evicted")

// View is a consistent read of a session: lines, prices and promotion all
// derived in the same step.
type View struct {
	Lines     []basket.Line
	Breakdown pricing.Breakdown
	Promotion promotion.Result
	Conflict  *basket.Conflict
}

// Finalized is the immutable output handed to the order sink on checkout.
type Finalized struct {
	VendorID  int64
	Lines     []basket.Line
	Breakdown pricing.Breakdown
	Promotion promotion.Result
}

// Session is a single client's basket plus its applied promotion.
// Every method is safe for concurrent use; calls are applied one at a time.
//
// Mutating methods persist the basket before returning. A persistence failure
// is reported as a *basket.StorageError, which callers should treat as a
// warning: the in-memory state has already changed.
type Session struct {
	mu       sync.Mutex
	id       string
	basket   *basket.Basket
	applied  promotion.Result
	lastSeen time.Time
	evicted  bool

	store  basket.Store
	calc   *pricing.Calculator
	promos *promotion.Evaluator
	now    func() time.Time
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// View returns the current basket with its price breakdown.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

// Add puts one unit of item into the basket. A non-nil Conflict means nothing
// changed and ResolveConflict must be called to proceed.
func (s *Session) Add(ctx context.Context, item catalog.Item, options basket.OptionSet, note string) (*basket.Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.basket.Add(item, options, note)
	if err != nil || c != nil {
		return c, err
	}
	return nil, s.save(ctx)
}

// ResolveConflict replaces the basket with the pending item when accept is
// set, otherwise discards the pending item.
func (s *Session) ResolveConflict(ctx context.Context, accept bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed, err := s.basket.ResolveConflict(accept)
	if err != nil || !changed {
		return err
	}
	return s.save(ctx)
}

// AdjustQuantity changes a line's quantity by delta.
func (s *Session) AdjustQuantity(ctx context.Context, itemID int64, options basket.OptionSet, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.basket.AdjustQuantity(itemID, options, delta) {
		return nil
	}
	return s.save(ctx)
}

// RemoveLine deletes a line.
func (s *Session) RemoveLine(ctx context.Context, itemID int64, options basket.OptionSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.basket.RemoveLine(itemID, options) {
		return nil
	}
	return s.save(ctx)
}

// UpdateNote replaces a line's note.
func (s *Session) UpdateNote(ctx context.Context, itemID int64, options basket.OptionSet, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.basket.UpdateNote(itemID, options, note) {
		return nil
	}
	return s.save(ctx)
}

// Clear empties the basket and drops the applied promotion.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.basket.Clear()
	s.applied = promotion.Result{}
	return s.save(ctx)
}

// ApplyPromotion evaluates code against the current basket and makes the
// outcome the session's only promotion, replacing any previous one even when
// the new code is rejected. A *basket.StorageError comes with a valid result.
func (s *Session) ApplyPromotion(ctx context.Context, code, accountID string) (promotion.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.promos.Evaluate(ctx, code, s.quote(s.basket.Lines()), accountID)
	if err != nil {
		return promotion.Result{}, err
	}
	s.applied = res
	return res, s.save(ctx)
}

// ClearPromotion removes the applied promotion.
func (s *Session) ClearPromotion(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.applied.State == promotion.Unapplied {
		return nil
	}
	s.applied = promotion.Result{}
	return s.save(ctx)
}

// Checkout finalizes the basket and passes it to submit. The promotion is
// re-evaluated for accountID first and dropped if it no longer applies. When
// submit succeeds the basket is cleared; a non-nil error from submit leaves
// the session untouched.
func (s *Session) Checkout(ctx context.Context, accountID string, submit func(context.Context, Finalized) error) (Finalized, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.basket.IsEmpty() {
		return Finalized{}, ErrEmptyBasket
	}

	lines := s.basket.Lines()
	promo := promotion.Result{}
	if s.applied.Active() {
		res, err := s.promos.Evaluate(ctx, s.applied.Code, s.quote(lines), accountID)
		if err != nil {
			return Finalized{}, errors.Wrap(err, "re-evaluate promotion")
		}
		promo = res
	}

	var discount int64
	if promo.Active() {
		discount = promo.Amount
	}
	f := Finalized{
		VendorID:  s.basket.VendorID(),
		Lines:     lines,
		Breakdown: s.calc.Breakdown(lines, discount),
		Promotion: promo,
	}
	if err := submit(ctx, f); err != nil {
		return Finalized{}, err
	}

	s.basket.Clear()
	s.applied = promotion.Result{}
	return f, s.save(ctx)
}

func (s *Session) view() View {
	lines := s.basket.Lines()
	promo := s.current(lines)

	var discount int64
	if promo.Active() {
		discount = promo.Amount
	}
	return View{
		Lines:     lines,
		Breakdown: s.calc.Breakdown(lines, discount),
		Promotion: promo,
		Conflict:  s.basket.Pending(),
	}
}

// current re-derives an applied promotion against the current lines so the
// discount tracks basket changes without another lookup.
func (s *Session) current(lines []basket.Line) promotion.Result {
	if !s.applied.Active() || s.applied.Rule == nil {
		return s.applied
	}
	return promotion.Apply(s.applied.Rule, s.quote(lines), false)
}

// restorePromotion re-evaluates a code loaded with the basket. The caller is
// treated as a guest here; single-use rules are checked again at checkout.
func (s *Session) restorePromotion(ctx context.Context, code string) {
	if code == "" || s.basket.IsEmpty() {
		return
	}
	res, err := s.promos.Evaluate(ctx, code, s.quote(s.basket.Lines()), "")
	if err != nil {
		zctx.From(ctx).Warn("Restore promotion failed",
			zap.String("session_id", s.id),
			zap.String("code", code),
			zap.Error(err),
		)
		return
	}
	s.applied = res
}

func (s *Session) quote(lines []basket.Line) promotion.Quote {
	sub := s.calc.Subtotal(lines)
	return promotion.Quote{Subtotal: sub, DeliveryFee: s.calc.DeliveryFeeFor(sub)}
}

// save writes the basket and the applied code. An evicted session no longer
// owns its stored copy and is never written.
func (s *Session) save(ctx context.Context) error {
	if s.evicted {
		return &basket.StorageError{Op: "save", Err: errEvicted}
	}
	snap := s.basket.Snapshot()
	snap.SavedAt = s.now()
	if s.applied.Active() {
		snap.PromotionCode = s.applied.Code
	}
	if err := s.store.Save(ctx, s.id, snap); err != nil {
		return &basket.StorageError{Op: "save", Err: err}
	}
	return nil
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

// evictIdle marks the session evicted when it has not been used since cutoff.
// A session busy with another call is left alone.
func (s *Session) evictIdle(cutoff time.Time) bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()
	if !s.lastSeen.Before(cutoff) {
		return false
	}
	s.evicted = true
	return true
}
