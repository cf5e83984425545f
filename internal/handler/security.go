package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/tiffin/internal/domain/auth"
	"github.com/xenking/tiffin/internal/session"
	"github.com/xenking/tiffin/pkg/httpmiddleware"
)

// HeaderAPIKey carries the optional account credential.
const HeaderAPIKey = "api_key"

var errSessionRequired = errors.New("session id required")

// account resolves the caller's account id. Requests without a key are guests
// and yield ""; a key that fails authentication is auth.ErrUnauthorized and a
// key missing one of scopes is auth.ErrForbidden.
func (h *Handler) account(r *http.Request, scopes ...string) (string, error) {
	key := r.Header.Get(HeaderAPIKey)
	if key == "" {
		return "", nil
	}
	info, err := h.auth.Authenticate(r.Context(), key)
	if err != nil {
		return "", auth.ErrUnauthorized
	}
	for _, s := range scopes {
		if !info.HasScope(s) {
			return "", auth.ErrForbidden
		}
	}
	return info.AccountID, nil
}

// session returns the caller's session, loading it on first use.
func (h *Handler) session(r *http.Request) (*session.Session, error) {
	id := httpmiddleware.SessionIDFromContext(r.Context())
	if id == "" {
		return nil, errSessionRequired
	}
	return h.sessions.Get(r.Context(), id), nil
}
