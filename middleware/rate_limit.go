package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/longevity/longevity-backend/services/ratelimit"
	"github.com/longevity/longevity-backend/utils"
)

// RateLimiter decides whether a client may issue another request
type RateLimiter interface {
	Allow(ctx context.Context, client string) (*ratelimit.Result, error)
}

// RateLimit rejects clients over their request budget with 429.
// Limiter failures let the request through.
func RateLimit(limiter RateLimiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := LoggerFromContext(ctx, logger)
			client := clientAddress(r)

			result, err := limiter.Allow(ctx, client)
			if err != nil {
				log.Warn("rate limit check failed, allowing request",
					zap.String("client", client),
					zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				retryAfter := int(math.Ceil(time.Until(result.ResetAt).Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Remaining", "0")

				log.Info("rate limit exceeded",
					zap.String("client", client),
					zap.String("window", string(result.ViolatedWindow)))

				_ = utils.WriteError(w, http.StatusTooManyRequests, "Troppe richieste, riprova più tardi",
					map[string]interface{}{"window": string(result.ViolatedWindow)})
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.RequestsRemaining))
			next.ServeHTTP(w, r)
		})
	}
}

// clientAddress strips the port from RemoteAddr, which RealIP may already
// have replaced with a bare address.
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
