package middleware

import (
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"stash-backend/pkg/auth"
	"stash-backend/pkg/common"
	"stash-backend/pkg/errors"
)

// Authenticate validates the bearer token and attaches the user context.
// With a nil validator (development without a configured secret) it accepts
// an X-User-ID header instead, so local runs work without minting tokens.
func Authenticate(validator *auth.JWTValidator, logger *zap.Logger) func(next http.Handler) http.Handler {
	errHandler := errors.NewErrorHandler(logger, false)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validator == nil {
				userID := r.Header.Get("X-User-ID")
				if userID == "" {
					errHandler.Handle(w, r, errors.NewUnauthorizedError("missing X-User-ID header"))
					return
				}
				ctx := auth.WithUser(r.Context(), &auth.UserContext{
					UserID:   userID,
					AuthType: "header",
				})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				errHandler.Handle(w, r, errors.NewUnauthorizedError("missing authorization header"))
				return
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				errHandler.Handle(w, r, errors.NewUnauthorizedError("authorization header must be a bearer token"))
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				errHandler.Handle(w, r, err)
				return
			}

			ctx := auth.WithUser(r.Context(), &auth.UserContext{
				UserID:      claims.Subject,
				Email:       claims.Email,
				AuthType:    "bearer",
				TokenPrefix: auth.TokenPrefix(token),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit rejects callers that exceed their per-user budget. It runs after
// Authenticate so the key is the user, not the connection.
func RateLimit(limiter *auth.UserRateLimiter, logger *zap.Logger) func(next http.Handler) http.Handler {
	errHandler := errors.NewErrorHandler(logger, false)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := auth.GetUserFromContext(r.Context())
			if err != nil {
				errHandler.Handle(w, r, err)
				return
			}

			allowed, err := limiter.Allow(r.Context(), user.UserID)
			if err != nil {
				errHandler.Handle(w, r, err)
				return
			}
			if !allowed {
				logger.Warn("Rate limit exceeded",
					zap.String("userID", user.UserID),
					zap.String("path", r.URL.Path),
				)
				common.RespondError(w, http.StatusTooManyRequests, "rate_limit", "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP throttles by client address before authentication runs, so
// unauthenticated probes cannot burn token validation. RealIP must run
// earlier in the chain for the key to be the real client.
func RateLimitByIP(limiter *auth.IPRateLimiter, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			if host, _, err := net.SplitHostPort(ip); err == nil {
				ip = host
			}

			allowed, err := limiter.Allow(r.Context(), ip)
			if err == nil && !allowed {
				logger.Warn("IP rate limit exceeded",
					zap.String("ip", ip),
					zap.String("path", r.URL.Path),
				)
				common.RespondError(w, http.StatusTooManyRequests, "rate_limit", "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
