package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/tiffin/internal/domain/account"
	"github.com/xenking/tiffin/internal/domain/auth"
	"github.com/xenking/tiffin/internal/domain/order"
)

// Checkout places the session basket as an order:
// {"address" | "addressId", "paymentMethod"}. A saved addressId replaces the
// address text.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	accountID, err := h.account(r, auth.ScopeOrdersWrite)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req := order.CheckoutRequest{AccountID: accountID}
	var addressID string
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "address":
			req.Address, err = d.Str()
		case "addressId":
			addressID, err = d.Str()
		case "paymentMethod":
			req.PaymentMethod, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if addressID != "" {
		if req.Address, err = h.savedAddress(r, accountID, addressID); err != nil {
			writeError(w, r, err)
			return
		}
	}

	o, err := h.orders.Checkout(ctx, s, req)
	if err = warn(w, r, err); err != nil {
		writeError(w, r, err)
		return
	}
	h.placed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("payment_method", string(o.PaymentMethod)),
		attribute.Bool("promotion", o.PromotionCode != ""),
	))

	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusCreated, &e)
}

func (h *Handler) savedAddress(r *http.Request, accountID, rawID string) (string, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return "", badRequest("invalid addressId")
	}
	if accountID == "" {
		return "", account.ErrAccountRequired
	}
	a, err := h.accounts.Address(r.Context(), accountID, id)
	if err != nil {
		return "", err
	}
	return a.FullAddress, nil
}

// ListOrders returns the authenticated account's order history.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	accountID, err := h.account(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orders, err := h.orders.History(r.Context(), accountID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ArrStart()
	for i := range orders {
		encodeOrder(&e, &orders[i])
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}

// GetOrder returns one order with its delivery progress.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, func(o *order.Order) (*order.Order, error) {
		return o, nil
	})
}

// AdvanceOrder moves an order to its next delivery status.
func (h *Handler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, func(o *order.Order) (*order.Order, error) {
		return h.orders.Advance(r.Context(), o.ID)
	})
}

// CancelOrder cancels an order that is still placed or preparing.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, func(o *order.Order) (*order.Order, error) {
		return h.orders.Cancel(r.Context(), o.ID)
	})
}

// orderAction loads the order named in the path and runs action on it. Orders
// placed by an account are only visible to that account.
func (h *Handler) orderAction(w http.ResponseWriter, r *http.Request, action func(*order.Order) (*order.Order, error)) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, badRequest("invalid order id"))
		return
	}
	accountID, err := h.account(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if o.AccountID != "" && o.AccountID != accountID {
		writeError(w, r, order.ErrNotFound)
		return
	}
	if o, err = action(o); err != nil {
		writeError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusOK, &e)
}
