package store

import (
	"fmt"
	"log/slog"
	"time"
)

// LoggingMiddleware logs every mutation at debug level once it has been
// applied (or vetoed further down the chain).
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return func(mc *MutationContext) {
			start := time.Now()
			next(mc)
			logger.Debug("mutation",
				"type", mc.Type,
				"path", mc.Path,
				"epoch", mc.Epoch,
				"applied", mc.Applied(),
				"changed", mc.Changed(),
				"duration", time.Since(start),
			)
		}
	}
}

// VetoMiddleware drops every mutation for which reject returns true.
func VetoMiddleware(reject func(mc *MutationContext) bool) Middleware {
	return func(next Handler) Handler {
		return func(mc *MutationContext) {
			if reject != nil && reject(mc) {
				return
			}
			next(mc)
		}
	}
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
