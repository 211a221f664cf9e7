package auth

import (
	"net/http"
	"strings"
)

const tokenQueryParam = "token"

// ExtractTokenFromRequest returns the bearer credential of r. Browsers cannot
// set headers on a websocket handshake, so the query parameter wins.
func ExtractTokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get(tokenQueryParam)); token != "" {
		return token
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, credential, found := strings.Cut(header, " ")
	if !found {
		return header
	}
	if !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(credential)
}
