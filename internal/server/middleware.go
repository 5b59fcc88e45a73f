// Package server provides the HTTP API server, middleware, and handlers
// for the governor.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/demewebsolutions/truai/internal/requestctx"
)

// AuthMiddleware validates X-TruAi-Key or Authorization: Bearer <key> and
// sets the user ID in context. apiKeys maps key → user ID; adminKey, when
// non-empty, additionally marks the request as admin-authenticated.
func AuthMiddleware(apiKeys map[string]string, adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-TruAi-Key")
			if key == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					key = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if key == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
				return
			}

			ctx := r.Context()
			if adminKey != "" && subtle.ConstantTimeCompare([]byte(adminKey), []byte(key)) == 1 {
				ctx = requestctx.SetAdmin(ctx)
				ctx = requestctx.SetUserID(ctx, "admin")
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			var userID string
			for k, u := range apiKeys {
				if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					userID = u
					break
				}
			}
			if userID == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(requestctx.SetUserID(ctx, userID)))
		})
	}
}

// AdminOnly rejects requests that are not admin-authenticated. Mounted on
// the override route so LOCKED tasks cannot be unlocked with an ordinary
// user key.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requestctx.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "admin_required", "Admin key required for this operation")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// keyedLimiter hands out a token-bucket limiter per user.
type keyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newKeyedLimiter(rps, burst int) *keyedLimiter {
	return &keyedLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (k *keyedLimiter) allow(userID string) bool {
	k.mu.Lock()
	lim, ok := k.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(k.rps, k.burst)
		k.limiters[userID] = lim
	}
	k.mu.Unlock()
	return lim.Allow()
}

// RateLimitMiddleware applies a per-user token bucket and returns 429 with
// a Retry-After header when exceeded. rps <= 0 disables limiting.
func RateLimitMiddleware(rps, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := newKeyedLimiter(rps, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := requestctx.UserID(r.Context())
			if userID == "" || limiter.allow(userID) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "rate_limit_exceeded",
				"message": "request rate exceeded, retry shortly",
			})
		})
	}
}

// writeError writes the JSON error envelope used across all handlers.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
