package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/tiffin/internal/domain/account"
	"github.com/xenking/tiffin/internal/domain/auth"
	"github.com/xenking/tiffin/internal/domain/basket"
	"github.com/xenking/tiffin/internal/domain/catalog"
	"github.com/xenking/tiffin/internal/domain/order"
	"github.com/xenking/tiffin/internal/domain/pricing"
	"github.com/xenking/tiffin/internal/domain/promotion"
	"github.com/xenking/tiffin/internal/session"
)

// HeaderBasketWarning reports that a basket change was applied but not persisted.
const HeaderBasketWarning = "X-Basket-Warning"

const maxBodyBytes = 64 << 10

// requestError is a client error with a fixed status.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &requestError{status: http.StatusBadRequest, msg: msg}
}

// decodeBody reads a JSON object body, calling field for every key.
func decodeBody(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		return badRequest("request body too large")
	}
	if len(data) == 0 {
		return badRequest("request body required")
	}
	if err := jx.DecodeBytes(data).Obj(field); err != nil {
		return badRequest("malformed request body: " + err.Error())
	}
	return nil
}

func decodeOptions(d *jx.Decoder) (basket.OptionSet, error) {
	var out basket.OptionSet
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, &e)
}

// writeError maps domain errors to HTTP statuses. Unknown errors are logged
// and reported as 500 without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		reqErr     *requestError
		invalidErr *basket.InvalidItemError
		fieldErr   *account.ValidationError
	)
	switch {
	case errors.As(err, &reqErr):
		writeMessage(w, reqErr.status, reqErr.msg)
	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, order.ErrAccountRequired),
		errors.Is(err, account.ErrAccountRequired):
		writeMessage(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeMessage(w, http.StatusForbidden, err.Error())
	case errors.Is(err, errSessionRequired),
		errors.Is(err, session.ErrEmptyBasket),
		errors.Is(err, catalog.ErrInvalidQuery):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &invalidErr),
		errors.As(err, &fieldErr),
		errors.Is(err, account.ErrAddressLimit),
		errors.Is(err, basket.ErrQuantityLimit),
		errors.Is(err, order.ErrAddressRequired),
		errors.Is(err, order.ErrInvalidPaymentMethod):
		writeMessage(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "order not found")
	case errors.Is(err, account.ErrAddressNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, basket.ErrNoConflict),
		errors.Is(err, order.ErrTerminalStatus),
		errors.Is(err, order.ErrNotCancellable),
		errors.Is(err, order.ErrStatusConflict),
		errors.Is(err, promotion.ErrAlreadyRedeemed):
		writeMessage(w, http.StatusConflict, err.Error())
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

// warn downgrades a *basket.StorageError to a response header and returns any
// other error unchanged.
func warn(w http.ResponseWriter, r *http.Request, err error) error {
	var storageErr *basket.StorageError
	if !errors.As(err, &storageErr) {
		return err
	}
	zctx.From(r.Context()).Warn("Basket not persisted", zap.Error(err))
	w.Header().Set(HeaderBasketWarning, "basket changes may not survive a restart")
	return nil
}

func encodeBreakdown(e *jx.Encoder, b pricing.Breakdown) {
	e.ObjStart()
	e.FieldStart("subtotal")
	e.Int64(b.Subtotal)
	e.FieldStart("deliveryFee")
	e.Int64(b.DeliveryFee)
	e.FieldStart("tax")
	e.Int64(b.Tax)
	e.FieldStart("discount")
	e.Int64(b.Discount)
	e.FieldStart("total")
	e.Int64(b.Total)
	e.ObjEnd()
}

func encodeLines(e *jx.Encoder, lines []basket.Line) {
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("itemId")
		e.Int64(l.ItemID)
		e.FieldStart("vendorId")
		e.Int64(l.VendorID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("unitPrice")
		e.Int64(l.UnitPrice)
		e.FieldStart("options")
		encodeStrings(e, l.Options)
		e.FieldStart("note")
		e.Str(l.Note)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.FieldStart("amount")
		e.Int64(l.Amount())
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeStrings(e *jx.Encoder, ss []string) {
	e.ArrStart()
	for _, s := range ss {
		e.Str(s)
	}
	e.ArrEnd()
}

func encodePromotion(e *jx.Encoder, r promotion.Result) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(r.Code)
	e.FieldStart("state")
	e.Str(r.State.String())
	e.FieldStart("amount")
	e.Int64(r.Amount)
	e.FieldStart("message")
	e.Str(r.Message)
	e.ObjEnd()
}

func encodeConflict(e *jx.Encoder, c *basket.Conflict) {
	e.ObjStart()
	e.FieldStart("currentVendorId")
	e.Int64(c.CurrentVendorID)
	e.FieldStart("incomingVendorId")
	e.Int64(c.IncomingVendorID)
	e.FieldStart("itemId")
	e.Int64(c.Item.ID)
	e.FieldStart("itemName")
	e.Str(c.Item.Name)
	e.ObjEnd()
}

func encodeView(e *jx.Encoder, id string, v session.View) {
	e.ObjStart()
	e.FieldStart("sessionId")
	e.Str(id)
	e.FieldStart("lines")
	encodeLines(e, v.Lines)
	e.FieldStart("breakdown")
	encodeBreakdown(e, v.Breakdown)
	if v.Promotion.State != promotion.Unapplied {
		e.FieldStart("promotion")
		encodePromotion(e, v.Promotion)
	}
	if v.Conflict != nil {
		e.FieldStart("conflict")
		encodeConflict(e, v.Conflict)
	}
	e.ObjEnd()
}

func (h *Handler) encodeVendor(e *jx.Encoder, v catalog.Vendor) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(v.ID)
	e.FieldStart("name")
	e.Str(v.Name)
	e.FieldStart("cuisines")
	encodeStrings(e, v.Cuisines)
	e.FieldStart("rating")
	e.Raw([]byte(v.Rating.StringFixed(1)))
	e.FieldStart("deliveryMinutes")
	e.Int(v.DeliveryMinutes)
	e.FieldStart("priceForTwo")
	e.Int64(v.PriceForTwo)
	if v.Offer != "" {
		e.FieldStart("offer")
		e.Str(v.Offer)
	}
	e.FieldStart("promoted")
	e.Bool(v.Promoted)
	e.FieldStart("vegetarian")
	e.Bool(v.Vegetarian)
	e.FieldStart("jainAvailable")
	e.Bool(v.JainAvailable)
	e.FieldStart("image")
	e.Str(h.imageURL(v.Image))
	e.ObjEnd()
}

func (h *Handler) encodeItem(e *jx.Encoder, it catalog.Item) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(it.ID)
	e.FieldStart("vendorId")
	e.Int64(it.VendorID)
	e.FieldStart("name")
	e.Str(it.Name)
	e.FieldStart("description")
	e.Str(it.Description)
	e.FieldStart("price")
	e.Int64(it.UnitPrice)
	e.FieldStart("vegetarian")
	e.Bool(it.Vegetarian)
	e.FieldStart("options")
	encodeStrings(e, it.Options)
	e.FieldStart("image")
	e.Str(h.imageURL(it.Image))
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID.String())
	e.FieldStart("vendorId")
	e.Int64(o.VendorID)
	e.FieldStart("lines")
	encodeLines(e, o.Lines)
	e.FieldStart("breakdown")
	encodeBreakdown(e, o.Breakdown)
	if o.PromotionCode != "" {
		e.FieldStart("promotionCode")
		e.Str(o.PromotionCode)
	}
	e.FieldStart("address")
	e.Str(o.Address)
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("step")
	e.Int(o.Status.StepIndex())
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("updatedAt")
	e.Str(o.UpdatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}
