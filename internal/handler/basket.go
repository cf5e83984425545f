package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/tiffin/internal/domain/basket"
	"github.com/xenking/tiffin/internal/domain/promotion"
	"github.com/xenking/tiffin/internal/session"
	"github.com/xenking/tiffin/pkg/httpmiddleware"
)

// lineRequest is the body shared by the basket line endpoints.
type lineRequest struct {
	ItemID  int64
	Options basket.OptionSet
	Note    string
	Delta   int
}

func decodeLineRequest(r *http.Request) (lineRequest, error) {
	var req lineRequest
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "itemId":
			req.ItemID, err = d.Int64()
		case "options":
			req.Options, err = decodeOptions(d)
		case "note":
			req.Note, err = d.Str()
		case "delta":
			req.Delta, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return req, err
	}
	if req.ItemID <= 0 {
		return req, badRequest("itemId is required")
	}
	if req.Delta > basket.MaxQuantity || req.Delta < -basket.MaxQuantity {
		return req, badRequest(fmt.Sprintf("delta must be between -%d and %d", basket.MaxQuantity, basket.MaxQuantity))
	}
	return req, nil
}

func (h *Handler) writeBasket(w http.ResponseWriter, status int, s *session.Session) {
	var e jx.Encoder
	encodeView(&e, s.ID(), s.View())
	writeJSON(w, status, &e)
}

// GetBasket returns the session basket with its price breakdown.
func (h *Handler) GetBasket(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeBasket(w, http.StatusOK, s)
}

// AddItem adds one unit of a menu item. When the basket belongs to another
// vendor nothing changes and 409 describes the conflict.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeLineRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	item, err := h.catalog.LookupItem(ctx, req.ItemID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conflict, err := s.Add(ctx, *item, req.Options, req.Note)
	if err = warn(w, r, err); err != nil {
		writeError(w, r, err)
		return
	}
	if conflict != nil {
		h.countMutation(ctx, "conflict")
		var e jx.Encoder
		e.ObjStart()
		e.FieldStart("code")
		e.Int(http.StatusConflict)
		e.FieldStart("message")
		e.Str("basket holds items from another vendor")
		e.FieldStart("conflict")
		encodeConflict(&e, conflict)
		e.ObjEnd()
		writeJSON(w, http.StatusConflict, &e)
		return
	}
	h.countMutation(ctx, "add")
	h.writeBasket(w, http.StatusOK, s)
}

// ResolveConflict settles a pending cross-vendor add: {"accept": true}
// replaces the basket, false keeps it.
func (h *Handler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var accept bool
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "accept" {
			return d.Skip()
		}
		v, err := d.Bool()
		accept = v
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := warn(w, r, s.ResolveConflict(r.Context(), accept)); err != nil {
		writeError(w, r, err)
		return
	}
	op := "conflict_abort"
	if accept {
		op = "conflict_replace"
	}
	h.countMutation(r.Context(), op)
	h.writeBasket(w, http.StatusOK, s)
}

// AdjustItem changes a line's quantity by delta; the line goes away below 1.
func (h *Handler) AdjustItem(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, "adjust", func(s *session.Session, req lineRequest) error {
		if req.Delta == 0 {
			return badRequest("delta must be non-zero")
		}
		return s.AdjustQuantity(r.Context(), req.ItemID, req.Options, req.Delta)
	})
}

// RemoveItem deletes a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, "remove", func(s *session.Session, req lineRequest) error {
		return s.RemoveLine(r.Context(), req.ItemID, req.Options)
	})
}

// UpdateNote replaces a line's cooking note.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, "note", func(s *session.Session, req lineRequest) error {
		return s.UpdateNote(r.Context(), req.ItemID, req.Options, req.Note)
	})
}

func (h *Handler) mutateLine(w http.ResponseWriter, r *http.Request, op string, mutate func(*session.Session, lineRequest) error) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := decodeLineRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := warn(w, r, mutate(s, req)); err != nil {
		writeError(w, r, err)
		return
	}
	h.countMutation(r.Context(), op)
	h.writeBasket(w, http.StatusOK, s)
}

// ClearBasket empties the basket and drops the promotion.
func (h *Handler) ClearBasket(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := warn(w, r, s.Clear(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	h.countMutation(r.Context(), "clear")
	h.writeBasket(w, http.StatusOK, s)
}

// ApplyPromotion evaluates {"code"} against the basket. A rejected code is a
// normal 200 response carrying the rejection message.
func (h *Handler) ApplyPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	accountID, err := h.account(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var code string
	err = decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		v, err := d.Str()
		code = v
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.ApplyPromotion(ctx, code, accountID)
	if err = warn(w, r, err); err != nil {
		writeError(w, r, err)
		return
	}
	h.countEvaluation(r, res)

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("promotion")
	encodePromotion(&e, res)
	e.FieldStart("basket")
	encodeView(&e, s.ID(), s.View())
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// ClearPromotion removes the applied promotion.
func (h *Handler) ClearPromotion(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := warn(w, r, s.ClearPromotion(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeBasket(w, http.StatusOK, s)
}

// EndSession discards the session and its stored basket (logout).
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	id := httpmiddleware.SessionIDFromContext(r.Context())
	if id == "" {
		writeError(w, r, errSessionRequired)
		return
	}
	if err := h.sessions.End(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) countEvaluation(r *http.Request, res promotion.Result) {
	h.evaluations.Add(r.Context(), 1, metric.WithAttributes(attribute.String("state", res.State.String())))
}
