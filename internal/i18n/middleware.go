package i18n

import "net/http"

// Middleware resolves the request language and injects its localizer into the
// request context. preferred returns the stored preference of the caller, if any.
func Middleware(preferred func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var pref string
			if preferred != nil {
				pref = preferred(r)
			}
			lang := Resolve(pref, r.Header.Get("Accept-Language"))
			ctx := WithLang(r.Context(), lang)
			ctx = WithLocalizer(ctx, NewLocalizer(lang))
			w.Header().Set("Content-Language", lang)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
