package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/tiffin/internal/domain/basket"
	"github.com/xenking/tiffin/internal/domain/promotion"
	"github.com/xenking/tiffin/internal/session"
)

// ErrEmptyBasket is returned by Checkout when the basket has no lines.
var ErrEmptyBasket = session.ErrEmptyBasket

// defaultHistoryLimit bounds History results.
const defaultHistoryLimit = 50

// Checkouter finalizes a basket. It is implemented by *session.Session.
type Checkouter interface {
	Checkout(ctx context.Context, accountID string, submit func(context.Context, session.Finalized) error) (session.Finalized, error)
}

// CheckoutRequest holds the delivery and payment metadata of a checkout.
type CheckoutRequest struct {
	AccountID     string
	Address       string
	PaymentMethod string
}

// Service encapsulates order placement and tracking.
type Service struct {
	orders Repository
	now    func() time.Time
}

// NewService creates an order Service.
func NewService(orders Repository) *Service {
	return &Service{orders: orders, now: time.Now}
}

// Checkout submits the basket as a new order. On success the basket is empty.
//
// A single-use promotion is claimed together with the order. When a concurrent
// checkout claimed it first, the basket is finalized once more, which drops
// the promotion, and the order is placed without the discount.
//
// A *basket.StorageError may be returned together with a non-nil order: the
// order was placed but the emptied basket could not be persisted.
func (s *Service) Checkout(ctx context.Context, b Checkouter, req CheckoutRequest) (*Order, error) {
	address := strings.TrimSpace(req.Address)
	if address == "" {
		return nil, ErrAddressRequired
	}
	method, err := ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	o, err := s.place(ctx, b, req.AccountID, address, method)
	if errors.Is(err, promotion.ErrAlreadyRedeemed) {
		zctx.From(ctx).Info("Promotion claimed concurrently, retrying checkout",
			zap.String("account_id", req.AccountID),
		)
		o, err = s.place(ctx, b, req.AccountID, address, method)
	}
	return o, err
}

func (s *Service) place(ctx context.Context, b Checkouter, accountID, address string, method PaymentMethod) (*Order, error) {
	var placed *Order
	_, err := b.Checkout(ctx, accountID, func(ctx context.Context, f session.Finalized) error {
		now := s.now().UTC()
		o := &Order{
			ID:            uuid.New(),
			AccountID:     accountID,
			VendorID:      f.VendorID,
			Lines:         f.Lines,
			Breakdown:     f.Breakdown,
			Address:       address,
			PaymentMethod: method,
			Status:        StatusPlaced,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if f.Promotion.Active() {
			o.PromotionCode = f.Promotion.Code
		}
		var claim *promotion.Redemption
		if c, ok := f.Promotion.Claim(accountID); ok {
			claim = &c
		}
		if err := s.orders.Create(ctx, o, claim); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		placed = o
		return nil
	})

	var storageErr *basket.StorageError
	if err != nil && (placed == nil || !errors.As(err, &storageErr)) {
		return nil, err
	}
	return placed, err
}

// Get returns the order with the given id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// History lists an account's orders, newest first.
func (s *Service) History(ctx context.Context, accountID string) ([]Order, error) {
	if accountID == "" {
		return nil, ErrAccountRequired
	}
	orders, err := s.orders.ListByAccount(ctx, accountID, defaultHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Advance moves an order to the next delivery status.
func (s *Service) Advance(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, ok := o.Status.Next()
	if !ok {
		return nil, ErrTerminalStatus
	}
	return s.transition(ctx, o, next)
}

// Cancel cancels an order that has not left the kitchen.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Status.Cancellable() {
		return nil, ErrNotCancellable
	}
	return s.transition(ctx, o, StatusCancelled)
}

func (s *Service) transition(ctx context.Context, o *Order, to Status) (*Order, error) {
	now := s.now().UTC()
	if err := s.orders.UpdateStatus(ctx, o.ID, o.Status, to, now); err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	o.Status = to
	o.UpdatedAt = now
	return o, nil
}
