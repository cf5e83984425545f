package httpmiddleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Headers carrying request and session identifiers.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderSessionID = "X-Session-ID"
)

type (
	requestIDKey struct{}
	sessionIDKey struct{}
)

// RequestIDFromContext returns the request id, or "" outside RequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// SessionIDFromContext returns the session id, or "" outside SessionID.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}

// RequestID reuses a printable X-Request-ID of at most 128 bytes or generates
// a new one, echoes it on the response and stores it in the context.
func RequestID() Middleware {
	return identify(HeaderRequestID, requestIDKey{}, isPrintableID)
}

// SessionID reuses a UUID X-Session-ID or starts a new session, echoes the id
// on the response and stores it in the context.
func SessionID() Middleware {
	return identify(HeaderSessionID, sessionIDKey{}, func(id string) bool {
		_, err := uuid.Parse(id)
		return err == nil
	})
}

func identify(header string, key any, valid func(string) bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(header)
			if !valid(id) {
				id = uuid.NewString()
			}
			w.Header().Set(header, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), key, id)))
		})
	}
}

func isPrintableID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for i := range len(id) {
		if id[i] < 0x20 || id[i] > 0x7E {
			return false
		}
	}
	return true
}
