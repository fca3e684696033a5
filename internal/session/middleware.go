package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/wishlist"
)

const maxIDLength = 128

type ctxKey struct{}

// WithSession stores s on the context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session attached by Middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}

// CartFor resolves the request's cart. It satisfies cart.StoreFunc.
func CartFor(r *http.Request) (*cart.Store, error) {
	s, ok := FromContext(r.Context())
	if !ok {
		return nil, ErrNoSession
	}
	return s.Cart, nil
}

// WishlistFor resolves the request's wishlist. It satisfies wishlist.StoreFunc.
func WishlistFor(r *http.Request) (*wishlist.Store, error) {
	s, ok := FromContext(r.Context())
	if !ok {
		return nil, ErrNoSession
	}
	return s.Wishlist, nil
}

// CookieOptions controls the session cookie.
type CookieOptions struct {
	Secure bool
	MaxAge time.Duration
}

// Middleware resolves the session from the X-Session-ID header or the
// session cookie, minting a new id when neither is usable. State changes are
// persisted after every non-safe request.
func (m *Manager) Middleware(opts CookieOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, fromClient := requestID(r)
			if !fromClient {
				id = uuid.NewString()
			}
			s, err := m.Get(r.Context(), id)
			if err != nil {
				common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to resolve session", nil)
				return
			}
			w.Header().Set(common.SessionHeader, id)
			if !fromClient || !hasCookie(r, id) {
				cookie := &http.Cookie{
					Name:     common.SessionCookie,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   opts.Secure,
					SameSite: http.SameSiteLaxMode,
				}
				if opts.MaxAge > 0 {
					cookie.MaxAge = int(opts.MaxAge.Seconds())
				}
				http.SetCookie(w, cookie)
			}

			ctx := common.WithSessionID(WithSession(r.Context(), s), id)
			next.ServeHTTP(w, r.WithContext(ctx))

			if isSafeMethod(r.Method) {
				return
			}
			if err := m.Save(context.WithoutCancel(ctx), id); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("session_id", id).Msg("session_save_failed")
			}
		})
	}
}

func requestID(r *http.Request) (string, bool) {
	if id := strings.TrimSpace(r.Header.Get(common.SessionHeader)); validID(id) {
		return id, true
	}
	if c, err := r.Cookie(common.SessionCookie); err == nil {
		if id := strings.TrimSpace(c.Value); validID(id) {
			return id, true
		}
	}
	return "", false
}

func hasCookie(r *http.Request, id string) bool {
	c, err := r.Cookie(common.SessionCookie)
	return err == nil && c.Value == id
}

func validID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
