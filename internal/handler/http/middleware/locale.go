package middleware

import (
	"net/http"

	"github.com/cmlabs-hris/timecard-backend-go/internal/pkg/i18n"
)

// Locale stores the negotiated Accept-Language locale on the request context.
func Locale(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale := i18n.Negotiate(r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Language", locale)
		next.ServeHTTP(w, r.WithContext(i18n.WithLocale(r.Context(), locale)))
	})
}
