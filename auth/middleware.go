package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Middleware authenticates every request with a. Rejected requests get a
// 401 JSON body; the identity of accepted ones is attached to the request
// context. A nil authenticator attaches AnonymousIdentity.
func Middleware(a Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if a == nil {
				next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, AnonymousIdentity())))
				return
			}

			req := RequestFromHTTP(r)
			if !a.Supports(ctx, req) {
				unauthorized(w, ErrMissingCredentials)
				return
			}

			result, err := a.Authenticate(ctx, req)
			if err != nil {
				logger.Error("authentication failed", zap.String("authenticator", a.Name()), zap.Error(err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication unavailable"})
				return
			}
			if !result.Authenticated {
				logger.Debug("credentials rejected",
					zap.String("method", string(result.Method)),
					zap.Error(result.Error))
				unauthorized(w, result.Error)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, result.Identity)))
		})
	}
}

func unauthorized(w http.ResponseWriter, err error) {
	msg := ErrInvalidCredentials.Error()
	switch {
	case errors.Is(err, ErrMissingCredentials):
		msg = ErrMissingCredentials.Error()
	case errors.Is(err, ErrTokenExpired):
		msg = ErrTokenExpired.Error()
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="tariffd"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
