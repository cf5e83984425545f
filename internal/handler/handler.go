// Package handler exposes the basket, catalog, order and account operations
// over HTTP.
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/tiffin/internal/domain/account"
	"github.com/xenking/tiffin/internal/domain/auth"
	"github.com/xenking/tiffin/internal/domain/catalog"
	"github.com/xenking/tiffin/internal/domain/order"
	"github.com/xenking/tiffin/internal/session"
)

// Authenticator resolves an API key to its account.
type Authenticator interface {
	Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error)
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in catalog responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
}

// Handler serves the JSON API, delegating to the session manager, the order
// and account services and the catalog.
type Handler struct {
	catalog      catalog.Repository
	sessions     *session.Manager
	orders       *order.Service
	accounts     *account.Service
	auth         Authenticator
	imageBaseURL string

	mutations   metric.Int64Counter
	evaluations metric.Int64Counter
	placed      metric.Int64Counter
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	items catalog.Repository,
	sessions *session.Manager,
	orders *order.Service,
	accounts *account.Service,
	authn Authenticator,
	meter metric.Meter,
) (*Handler, error) {
	h := &Handler{
		catalog:      items,
		sessions:     sessions,
		orders:       orders,
		accounts:     accounts,
		auth:         authn,
		imageBaseURL: strings.TrimSuffix(cfg.ImageBaseURL, "/"),
	}

	var err error
	if h.mutations, err = meter.Int64Counter("tiffin.basket.mutations",
		metric.WithDescription("Basket mutations by operation"),
	); err != nil {
		return nil, errors.Wrap(err, "basket mutations counter")
	}
	if h.evaluations, err = meter.Int64Counter("tiffin.promotion.evaluations",
		metric.WithDescription("Promotion code evaluations by resulting state"),
	); err != nil {
		return nil, errors.Wrap(err, "promotion evaluations counter")
	}
	if h.placed, err = meter.Int64Counter("tiffin.checkout.orders",
		metric.WithDescription("Orders placed by payment method"),
	); err != nil {
		return nil, errors.Wrap(err, "checkout orders counter")
	}
	return h, nil
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/vendors", h.ListVendors)
	mux.HandleFunc("GET /api/vendors/{id}", h.GetVendor)
	mux.HandleFunc("GET /api/vendors/{id}/menu", h.GetMenu)
	mux.HandleFunc("GET /api/vendors/{id}/reviews", h.ListReviews)
	mux.HandleFunc("POST /api/vendors/{id}/reviews", h.PostReview)

	mux.HandleFunc("GET /api/basket", h.GetBasket)
	mux.HandleFunc("DELETE /api/basket", h.ClearBasket)
	mux.HandleFunc("POST /api/basket/items", h.AddItem)
	mux.HandleFunc("PATCH /api/basket/items", h.AdjustItem)
	mux.HandleFunc("DELETE /api/basket/items", h.RemoveItem)
	mux.HandleFunc("PUT /api/basket/items/note", h.UpdateNote)
	mux.HandleFunc("POST /api/basket/conflict", h.ResolveConflict)
	mux.HandleFunc("POST /api/basket/promotion", h.ApplyPromotion)
	mux.HandleFunc("DELETE /api/basket/promotion", h.ClearPromotion)

	mux.HandleFunc("POST /api/checkout", h.Checkout)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{id}/advance", h.AdvanceOrder)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.CancelOrder)

	mux.HandleFunc("GET /api/profile", h.GetProfile)
	mux.HandleFunc("PATCH /api/profile", h.UpdateProfile)
	mux.HandleFunc("POST /api/profile/addresses", h.AddAddress)
	mux.HandleFunc("DELETE /api/profile/addresses/{id}", h.RemoveAddress)
	mux.HandleFunc("GET /api/favorites", h.ListFavorites)
	mux.HandleFunc("PUT /api/favorites/{id}", h.AddFavorite)
	mux.HandleFunc("DELETE /api/favorites/{id}", h.RemoveFavorite)

	mux.HandleFunc("DELETE /api/session", h.EndSession)
}

func (h *Handler) countMutation(ctx context.Context, op string) {
	h.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (h *Handler) imageURL(path string) string {
	if path == "" || h.imageBaseURL == "" || strings.Contains(path, "://") {
		return path
	}
	return h.imageBaseURL + "/" + strings.TrimPrefix(path, "/")
}
