package restapi

import (
	"net/http"
	"os"

	"go.uber.org/zap"
)

// stateCriticalRoute wraps a handler that mutates the Manager Facade's
// instance registry. A panic here means the registry's internal maps
// (instances, names) may be left inconsistent with each other — unlike a
// read or commit failure, there is no safe way to keep serving requests
// once that invariant is broken, so the process exits rather than risk a
// corrupted registry silently diverging from reality.
func stateCriticalRoute(h http.HandlerFunc, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("state critical route panicked", zap.Any("recovered", err), zap.String("path", r.URL.Path))
				os.Exit(1)
			}
		}()
		h(w, r)
	}
}
