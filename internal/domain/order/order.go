package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/tiffin/internal/domain/basket"
	"github.com/xenking/tiffin/internal/domain/pricing"
	"github.com/xenking/tiffin/internal/domain/promotion"
)

// Status is the delivery progress of an order.
type Status string

const (
	StatusPlaced         Status = "placed"
	StatusPreparing      Status = "preparing"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

var progression = []Status{StatusPlaced, StatusPreparing, StatusOutForDelivery, StatusDelivered}

// Next returns the status that follows s. It reports false for terminal statuses.
func (s Status) Next() (Status, bool) {
	for i, st := range progression[:len(progression)-1] {
		if st == s {
			return progression[i+1], true
		}
	}
	return s, false
}

// StepIndex returns the position of s in the delivery progression, 0 when unknown.
func (s Status) StepIndex() int {
	for i, st := range progression {
		if st == s {
			return i
		}
	}
	return 0
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Cancellable reports whether an order in status s may still be cancelled.
func (s Status) Cancellable() bool {
	return s == StatusPlaced || s == StatusPreparing
}

// PaymentMethod is how the customer pays on delivery or upfront.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cod"
	PaymentUPI  PaymentMethod = "upi"
	PaymentCard PaymentMethod = "card"
)

// ParsePaymentMethod validates m, defaulting to cash on delivery when empty.
func ParsePaymentMethod(m string) (PaymentMethod, error) {
	switch pm := PaymentMethod(m); pm {
	case "":
		return PaymentCash, nil
	case PaymentCash, PaymentUPI, PaymentCard:
		return pm, nil
	default:
		return "", ErrInvalidPaymentMethod
	}
}

// Sentinel errors for order operations.
var (
	ErrNotFound             = errors.New("order not found")
	ErrAddressRequired      = errors.New("delivery address required")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrAccountRequired      = errors.New("account required")
	ErrTerminalStatus       = errors.New("order already completed")
	ErrNotCancellable       = errors.New("order can no longer be cancelled")
	// ErrStatusConflict is returned by Repository.UpdateStatus when the order
	// is no longer in the expected status.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

// Order is a submitted basket.
type Order struct {
	ID            uuid.UUID
	AccountID     string
	VendorID      int64
	Lines         []basket.Line
	Breakdown     pricing.Breakdown
	PromotionCode string
	Address       string
	PaymentMethod PaymentMethod
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists o. A non-nil claim is recorded in the same transaction;
	// when the account already redeemed the code nothing is written and
	// promotion.ErrAlreadyRedeemed is returned.
	Create(ctx context.Context, o *Order, claim *promotion.Redemption) error
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	// ListByAccount returns the account's orders, newest first.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]Order, error)
	// UpdateStatus moves the order from one status to another, returning
	// ErrStatusConflict when the stored status is not from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) error
}
