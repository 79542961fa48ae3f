package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// LoggerFromContext annotates logger with the request ID carried by ctx.
func LoggerFromContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id := GetRequestIDFromContext(ctx); id != "" {
		return logger.With(zap.String("request_id", id))
	}
	return logger
}
