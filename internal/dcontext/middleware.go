package dcontext

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// Middleware attaches a request-scoped logger carrying method and path
// fields to every incoming request's context, the same shape as
// GetLogger expects to find via WithLogger.
func Middleware(next http.Handler) http.Handler {
	base := logrus.StandardLogger()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry := base.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		ctx := WithLogger(r.Context(), entry)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
