// Package security sets response headers on the local HTTP surfaces: the
// sign-in callback page and the metrics endpoint.
package security

import (
	"fmt"
	"net/http"
)

// HeadersConfig holds the response headers to apply.
type HeadersConfig struct {
	CSP            string
	XFrameOptions  string
	ReferrerPolicy string
	CacheControl   string

	// HSTS is only sent over TLS.
	HSTSMaxAge int
}

// CallbackHeadersConfig is used for the sign-in callback. The page is plain
// text, may not be framed and must not leak the authorization code through
// the referrer or a cache.
func CallbackHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP:            "default-src 'none'; frame-ancestors 'none'",
		XFrameOptions:  "DENY",
		ReferrerPolicy: "no-referrer",
		CacheControl:   "no-store",
	}
}

// MetricsHeadersConfig is used for the scrape endpoint.
func MetricsHeadersConfig() HeadersConfig {
	return HeadersConfig{
		XFrameOptions:  "DENY",
		ReferrerPolicy: "no-referrer",
		CacheControl:   "no-cache",
	}
}

// Headers returns middleware applying config to every response.
func Headers(config HeadersConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			setIf(h, "X-Frame-Options", config.XFrameOptions)
			setIf(h, "Content-Security-Policy", config.CSP)
			setIf(h, "Referrer-Policy", config.ReferrerPolicy)
			setIf(h, "Cache-Control", config.CacheControl)
			if r.TLS != nil && config.HSTSMaxAge > 0 {
				h.Set("Strict-Transport-Security", fmt.Sprintf("max-age=%d", config.HSTSMaxAge))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setIf(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}
