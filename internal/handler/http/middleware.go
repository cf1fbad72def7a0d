package http

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/ecobazaar/storefront/internal/store"
	"github.com/ecobazaar/storefront/pkg/httputil"
	"github.com/ecobazaar/storefront/pkg/logger"
)

// SessionHeader identifies the browser session whose cart a request acts on.
const SessionHeader = "X-Session-ID"

// sessionQueryParam is accepted where a client cannot set headers, such as
// EventSource.
const sessionQueryParam = "session"

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Session reads the session id from X-Session-ID (or the "session" query
// parameter), defaulting to store.DefaultSession, and stores it in the
// request context. Malformed ids are rejected with 400.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(SessionHeader)
		if id == "" {
			id = r.URL.Query().Get(sessionQueryParam)
		}
		if id == "" {
			id = store.DefaultSession
		}
		if !validID.MatchString(id) {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{
					Code:      "INVALID_INPUT",
					Message:   SessionHeader + " must be 1-64 letters, digits, '_' or '-'",
					RequestID: logger.CorrelationIDFromContext(r.Context()),
				},
			})
			return
		}

		w.Header().Set(SessionHeader, id)
		ctx := logger.WithSessionID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFromRequest returns the session id stored by Session.
func sessionFromRequest(r *http.Request) string {
	if id := logger.SessionIDFromContext(r.Context()); id != "" {
		return id
	}
	return store.DefaultSession
}

// SellerHeader names the seller a seller-dashboard request acts for. It is
// not authenticated.
const SellerHeader = "X-Seller-ID"

// DefaultSeller is used when a request names no seller.
const DefaultSeller = "default"

type sellerKey struct{}

// Seller reads X-Seller-ID, defaulting to DefaultSeller, and stores it in the
// request context. Malformed ids are rejected with 400.
func Seller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(SellerHeader)
		if id == "" {
			id = DefaultSeller
		}
		if !validID.MatchString(id) {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{
					Code:      "INVALID_INPUT",
					Message:   SellerHeader + " must be 1-64 letters, digits, '_' or '-'",
					RequestID: logger.CorrelationIDFromContext(r.Context()),
				},
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sellerKey{}, id)))
	})
}

func sellerFromRequest(r *http.Request) string {
	if id, ok := r.Context().Value(sellerKey{}).(string); ok {
		return id
	}
	return DefaultSeller
}

// ContentTypeJSON rejects request bodies that declare a non-JSON content type.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json",
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
