// Package security holds HTTP hardening middleware.
package security

import (
	"net/http"
	"strconv"

	"github.com/noah-isme/resto-billing/internal/common"
)

// BodyLimit caps request payload size. Requests whose declared length exceeds
// Max are rejected with 413 before the handler runs; undeclared bodies are
// wrapped so that reads past Max fail.
type BodyLimit struct {
	Max int64
}

// Middleware implements the limit.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			WriteTooLarge(w, b.Max)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		next.ServeHTTP(w, r)
	})
}

// WriteTooLarge renders the canonical 413 body.
func WriteTooLarge(w http.ResponseWriter, limit int64) {
	common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
		"request body exceeds "+strconv.FormatInt(limit, 10)+" bytes", nil)
}

// Headers sets conservative response headers for a JSON API.
type Headers struct {
	HSTS bool
}

// Middleware implements the headers.
func (h Headers) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("X-Content-Type-Options", "nosniff")
		hdr.Set("X-Frame-Options", "DENY")
		hdr.Set("Referrer-Policy", "no-referrer")
		hdr.Set("Cache-Control", "no-store")
		if h.HSTS && r.TLS != nil {
			hdr.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
