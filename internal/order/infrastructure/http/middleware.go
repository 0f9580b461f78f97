package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/arcube/ancillary-orders/internal/order/domain"
)

type ctxKey int

const requesterKey ctxKey = iota

// RequesterFromHeaders trusts the identity headers set by the gateway in
// front of this service. Requests without an identity are rejected.
func RequesterFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := domain.Requester{
			UserID: r.Header.Get("X-User-ID"),
			Role:   domain.Role(r.Header.Get("X-User-Role")),
			Email:  r.Header.Get("X-User-Email"),
		}
		if req.UserID == "" || req.Role == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing identity headers"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requesterKey, req)))
	})
}

func requesterFrom(r *http.Request) domain.Requester {
	req, _ := r.Context().Value(requesterKey).(domain.Requester)
	return req
}

// RequireRole guards a subtree to the given roles.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	allowed := map[domain.Role]bool{}
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed[requesterFrom(r).Role] {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient role"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DuplicateChecker is the slice of the redis idempotency store the HTTP
// layer needs.
type DuplicateChecker interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// Idempotency short-circuits replays carrying the same X-Idempotency-Key.
// Redis errors fail open: a duplicate write is preferable to a dropped
// cancellation.
func Idempotency(log *slog.Logger, store DuplicateChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-Idempotency-Key")
			if key == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			seen, err := store.Seen(r.Context(), "idem:http:"+key)
			if err != nil {
				log.Warn("idempotency check failed", "key", key, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if seen {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "duplicate request", "idempotencyKey": key})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
