package frame

import (
	"net/http"
)

// Ancestors may embed the relay pages as a Bitrix24 application.
var Ancestors = []string{
	"'self'",
	"https://*.bitrix24.com",
	"https://*.bitrix24.com.br",
	"https://*.bitrix24.ru",
	"https://*.bitrix24.de",
	"https://*.bitrix24.es",
}

func New() func(next http.Handler) http.Handler {
	policy := "frame-ancestors"
	for _, a := range Ancestors {
		policy += " " + a
	}
	policy += ";"

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Frame-Options", "ALLOWALL")
			w.Header().Set("Content-Security-Policy", policy)
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}
