package http

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// TrustCookieName carries the device-trust token between logins.
const TrustCookieName = "cl_device_trust"

// setTrustCookie installs or refreshes the device-trust cookie.
func setTrustCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     TrustCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires) / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearTrustCookie removes the device-trust cookie.
func clearTrustCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     TrustCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// trustCookieToken reads the device-trust token from the request cookie,
// returning "" when absent.
func trustCookieToken(r *http.Request) string {
	c, err := r.Cookie(TrustCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// clientIP extracts the remote IP, honouring X-Forwarded-For from the
// reverse proxy in front of the service.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
