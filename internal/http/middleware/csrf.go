package middleware

import (
	"crypto/subtle"
	"net/http"
	"regexp"

	"github.com/mt-platform/admission-service/internal/http/httperr"
)

const (
	csrfHeader = "X-Csrf-Token"
	csrfCookie = "csrf-token"
)

// csrfTokenPattern — 64 строчных hex-символа.
var csrfTokenPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// checkCsrf сверяет CSRF-токен заголовка с companion-cookie.
// Оба значения обязаны соответствовать формату; сравнение — constant-time.
func checkCsrf(r *http.Request) error {
	header := r.Header.Get(csrfHeader)

	cookie, err := r.Cookie(csrfCookie)
	if header == "" || err != nil || cookie.Value == "" {
		return httperr.ErrCsrfMissing
	}

	if !csrfTokenPattern.MatchString(header) || !csrfTokenPattern.MatchString(cookie.Value) {
		return httperr.ErrCsrfInvalid
	}

	if subtle.ConstantTimeCompare([]byte(header), []byte(cookie.Value)) != 1 {
		return httperr.ErrCsrfInvalid
	}

	return nil
}
